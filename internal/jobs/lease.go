package jobs

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// ErrLeaseHeld is returned when another runner owns the queue.
var ErrLeaseHeld = errors.New("job queue is leased by another runner")

const leaseKey = "lease/runner"

// Lease records which runner may execute jobs. Only the lease holder moves
// jobs to RUNNING, so a RUNNING job without a live lease was interrupted.
type Lease struct {
	Owner   string    `json:"owner"`
	Expires time.Time `json:"expires"`
}

// AcquireLease takes or renews the runner lease for owner. It reports
// whether the lease was newly taken, as opposed to renewed.
func (q *Queue) AcquireLease(owner string, ttl time.Duration) (fresh bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	err = q.update(func(txn *badger.Txn) error {
		current, found, err := getLease(txn)
		if err != nil {
			return err
		}
		now := q.now()
		if found && current.Owner != owner && now.Before(current.Expires) {
			return fmt.Errorf("%w: %s until %s", ErrLeaseHeld, current.Owner, current.Expires.Format(time.RFC3339))
		}
		fresh = !found || current.Owner != owner
		data, err := json.Marshal(Lease{Owner: owner, Expires: now.Add(ttl)})
		if err != nil {
			return err
		}
		return txn.Set([]byte(leaseKey), data)
	})
	return fresh, err
}

// ReleaseLease drops the lease if owner still holds it.
func (q *Queue) ReleaseLease(owner string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.update(func(txn *badger.Txn) error {
		current, found, err := getLease(txn)
		if err != nil || !found || current.Owner != owner {
			return err
		}
		return txn.Delete([]byte(leaseKey))
	})
}

// CurrentLease returns the recorded lease, if any.
func (q *Queue) CurrentLease() (Lease, bool, error) {
	var lease Lease
	var found bool
	err := q.view(func(txn *badger.Txn) error {
		var err error
		lease, found, err = getLease(txn)
		return err
	})
	return lease, found, err
}

func getLease(txn *badger.Txn) (Lease, bool, error) {
	item, err := txn.Get([]byte(leaseKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Lease{}, false, nil
	}
	if err != nil {
		return Lease{}, false, err
	}
	var lease Lease
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &lease)
	})
	return lease, true, err
}
