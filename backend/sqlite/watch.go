package sqlite

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"gosyncmovies/backend"
	"gosyncmovies/internal/utils"
)

// broadcaster wakes live streams after committed writes. Wake-ups coalesce:
// a stream that is busy re-querying sees at most one pending signal.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]chan struct{}
	nextID uint64

	done      chan struct{}
	closeOnce sync.Once
}

func newBroadcaster() *broadcaster {
	return &broadcaster{
		subs: make(map[uint64]chan struct{}),
		done: make(chan struct{}),
	}
}

func (b *broadcaster) subscribe() (uint64, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	ch := make(chan struct{}, 1)
	b.subs[b.nextID] = ch
	return b.nextID, ch
}

func (b *broadcaster) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

func (b *broadcaster) notify() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (b *broadcaster) close() {
	b.closeOnce.Do(func() { close(b.done) })
}

// subscribers returns the number of live streams.
func (b *broadcaster) subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// WatchFlag streams the records matching flag until ctx is done.
func (s *Store) WatchFlag(ctx context.Context, flag backend.Flag) (<-chan []backend.MovieRecord, error) {
	if _, ok := flagPredicates[string(flag)]; !ok {
		return nil, fmt.Errorf("unknown flag %q", flag)
	}

	// Subscribe before the first read so no commit slips between them.
	id, signal := s.watchers.subscribe()
	current, err := s.List(ctx, flag)
	if err != nil {
		s.watchers.unsubscribe(id)
		return nil, err
	}

	out := make(chan []backend.MovieRecord)
	go func() {
		defer close(out)
		defer s.watchers.unsubscribe(id)

		log := utils.Component("sqlite").With().Str("flag", string(flag)).Logger()
		last := current
		pending := current
		var send chan<- []backend.MovieRecord = out

		for {
			select {
			case send <- pending:
				send = nil
			case <-signal:
				next, err := s.List(ctx, flag)
				if err != nil {
					if ctx.Err() == nil {
						log.Warn().Err(err).Msg("watch refresh failed")
					}
					continue
				}
				if !sameRecords(last, next) {
					last = next
					pending = next
					send = out
				}
			case <-ctx.Done():
				return
			case <-s.watchers.done:
				return
			}
		}
	}()
	return out, nil
}

func sameRecords(a, b []backend.MovieRecord) bool {
	return slices.EqualFunc(a, b, func(x, y backend.MovieRecord) bool { return x.Equal(y) })
}
