package backend

// This file contains shared test doubles used across the module's tests.

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MockRemote is an in-memory Remote with per-operation failure injection.
type MockRemote struct {
	mu       sync.Mutex
	docs     map[string]map[int64]MovieDocument
	profiles map[string]UserProfile

	fetchErr   error
	putErrs    map[int64]error
	deleteErrs map[int64]error

	puts    []int64
	deletes []int64
	fetches int

	Now func() time.Time
}

// NewMockRemote creates an empty mock remote
func NewMockRemote() *MockRemote {
	return &MockRemote{
		docs:       make(map[string]map[int64]MovieDocument),
		profiles:   make(map[string]UserProfile),
		putErrs:    make(map[int64]error),
		deleteErrs: make(map[int64]error),
		Now:        time.Now,
	}
}

// Seed stores records for a user as if another device had pushed them.
func (m *MockRemote) Seed(userID string, recs ...MovieRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		m.collection(userID)[r.ID] = ToDocument(r)
	}
}

// FailFetch makes FetchAll return err until cleared with nil.
func (m *MockRemote) FailFetch(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchErr = err
}

// FailPut makes Put for id return err until cleared with nil.
func (m *MockRemote) FailPut(id int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.putErrs, id)
		return
	}
	m.putErrs[id] = err
}

// FailDelete makes Delete for id return err until cleared with nil.
func (m *MockRemote) FailDelete(id int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.deleteErrs, id)
		return
	}
	m.deleteErrs[id] = err
}

// Puts returns the ids passed to Put, in call order.
func (m *MockRemote) Puts() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.puts...)
}

// Deletes returns the ids passed to Delete, in call order.
func (m *MockRemote) Deletes() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.deletes...)
}

// Fetches returns how many times FetchAll was called.
func (m *MockRemote) Fetches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

// ResetCalls forgets recorded calls without touching stored documents.
func (m *MockRemote) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts = nil
	m.deletes = nil
	m.fetches = 0
}

// Doc returns the stored document for id as a record.
func (m *MockRemote) Doc(userID string, id int64) (MovieRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.collection(userID)[id]
	if !ok {
		return MovieRecord{}, false
	}
	return d.Record(), true
}

func (m *MockRemote) collection(userID string) map[int64]MovieDocument {
	c, ok := m.docs[userID]
	if !ok {
		c = make(map[int64]MovieDocument)
		m.docs[userID] = c
	}
	return c
}

func (m *MockRemote) FetchAll(ctx context.Context, userID string) ([]MovieRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if m.fetchErr != nil {
		return nil, NewNetworkError("FetchAll", m.fetchErr).WithUserID(userID)
	}
	out := make([]MovieRecord, 0, len(m.docs[userID]))
	for _, d := range m.docs[userID] {
		out = append(out, d.Record())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockRemote) Put(ctx context.Context, userID string, rec MovieRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts = append(m.puts, rec.ID)
	if err := m.putErrs[rec.ID]; err != nil {
		return NewNetworkError("Put", err).WithMovieID(rec.ID).WithUserID(userID)
	}
	m.collection(userID)[rec.ID] = ToDocument(rec)
	return nil
}

func (m *MockRemote) Delete(ctx context.Context, userID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, id)
	if err := m.deleteErrs[id]; err != nil {
		return NewNetworkError("Delete", err).WithMovieID(id).WithUserID(userID)
	}
	c := m.collection(userID)
	if _, ok := c[id]; !ok {
		return NewRemoteError("Delete", 404, "document not found").WithMovieID(id).WithUserID(userID)
	}
	delete(c, id)
	return nil
}

func (m *MockRemote) GetProfile(ctx context.Context, userID string) (*UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

func (m *MockRemote) CreateProfile(ctx context.Context, p UserProfile) (*UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.profiles[p.ID]; ok {
		return &existing, nil
	}
	now := Truncate(m.Now())
	p.CreatedAt = now
	p.LastUpdated = now
	m.profiles[p.ID] = p
	return &p, nil
}

func (m *MockRemote) AdjustCredits(ctx context.Context, userID string, delta int) (*UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	if p.Credits+delta < 0 {
		return nil, ErrInsufficientCredits
	}
	p.Credits += delta
	p.LastUpdated = Truncate(m.Now())
	m.profiles[userID] = p
	return &p, nil
}

func (m *MockRemote) Close() error { return nil }

// StaticSession is a SessionProvider with a fixed user. An empty id means signed out.
type StaticSession string

func (s StaticSession) CurrentUserID() (string, bool) {
	return string(s), s != ""
}

// RecordingObserver captures observer calls for assertions.
type RecordingObserver struct {
	mu         sync.Mutex
	Messages   []string
	Exceptions []error
}

func (o *RecordingObserver) Log(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Messages = append(o.Messages, msg)
}

func (o *RecordingObserver) RecordException(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Exceptions = append(o.Exceptions, err)
}

// HasException reports whether an exception matching target was recorded.
func (o *RecordingObserver) HasException(target error) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, e := range o.Exceptions {
		if errors.Is(e, target) {
			return true
		}
	}
	return false
}

// ExceptionCount returns the number of recorded exceptions.
func (o *RecordingObserver) ExceptionCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.Exceptions)
}
