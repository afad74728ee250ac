package recommend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gosyncmovies/backend"
	"gosyncmovies/backend/sqlite"
)

const testUser = "user-1"

type fakeModel struct {
	candidates []Candidate
	err        error
	calls      int
	lastReq    Request
}

func (f *fakeModel) Recommend(ctx context.Context, req Request) ([]Candidate, error) {
	f.calls++
	f.lastReq = req
	return f.candidates, f.err
}

type countingTrigger struct{ calls int }

func (c *countingTrigger) TriggerSync() error {
	c.calls++
	return nil
}

type gateEnv struct {
	gate    *Gate
	local   *sqlite.Store
	remote  *backend.MockRemote
	model   *fakeModel
	trigger *countingTrigger
}

func newGateEnv(t *testing.T, credits int) *gateEnv {
	t.Helper()
	local, err := sqlite.Open(filepath.Join(t.TempDir(), "movies.db"))
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { local.Close() })

	remote := backend.NewMockRemote()
	if _, err := remote.CreateProfile(context.Background(), backend.UserProfile{ID: testUser, Credits: credits}); err != nil {
		t.Fatal(err)
	}

	model := &fakeModel{}
	trigger := &countingTrigger{}
	gate := NewGate(local, remote, backend.StaticSession(testUser), model,
		WithSyncTrigger(trigger),
		WithClock(func() time.Time { return backend.FromMillis(5_000) }))
	return &gateEnv{gate: gate, local: local, remote: remote, model: model, trigger: trigger}
}

func candidate(id int64, title, reason string) Candidate {
	return Candidate{Movie: backend.MovieRecord{ID: id, Title: title}, Reason: reason}
}

func stored(id int64, state backend.SyncState) backend.MovieRecord {
	return backend.MovieRecord{
		ID:           id,
		Title:        "Known",
		AddedAt:      backend.FromMillis(100),
		LastModified: backend.FromMillis(100),
		SyncState:    state,
	}
}

func balance(t *testing.T, env *gateEnv) int {
	t.Helper()
	p, err := env.remote.GetProfile(context.Background(), testUser)
	if err != nil {
		t.Fatal(err)
	}
	return p.Credits
}

func TestGenerateStoresNewRecommendations(t *testing.T) {
	ctx := context.Background()
	env := newGateEnv(t, 2)

	notInterested := stored(2, backend.SyncSynced)
	notInterested.NotInterested = true
	for _, rec := range []backend.MovieRecord{stored(1, backend.SyncPendingDelete), notInterested} {
		if err := env.local.Upsert(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	env.model.candidates = []Candidate{
		candidate(1, "Removed", "You removed this"),
		candidate(2, "Hidden", "You hid this"),
		candidate(3, "Thief", "Like Heat, but earlier"),
		candidate(4, "Collateral", "Same director"),
	}

	out, err := env.gate.Generate(ctx, 5)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(out.Added) != 2 || out.Skipped != 2 {
		t.Errorf("Added = %d, Skipped = %d; want 2, 2", len(out.Added), out.Skipped)
	}
	if out.Balance != 1 || balance(t, env) != 1 {
		t.Errorf("balance = %d (outcome %d), want 1", balance(t, env), out.Balance)
	}
	if env.trigger.calls != 1 {
		t.Errorf("TriggerSync called %d times, want 1", env.trigger.calls)
	}

	rec, _ := env.local.Get(ctx, 3)
	if rec == nil || rec.AIReason == nil || *rec.AIReason != "Like Heat, but earlier" {
		t.Fatalf("stored recommendation = %+v", rec)
	}
	if rec.SyncState != backend.SyncPendingCreate {
		t.Errorf("SyncState = %s, want PENDING_CREATE", rec.SyncState)
	}

	recommended, err := env.local.List(ctx, backend.FlagRecommended)
	if err != nil || len(recommended) != 2 {
		t.Errorf("List(recommended) = %d rows, %v; want 2", len(recommended), err)
	}
	if got, _ := env.local.Get(ctx, 1); got.SyncState != backend.SyncPendingDelete {
		t.Error("existing row must not be overwritten")
	}
}

func TestGenerateCapsAtCount(t *testing.T) {
	env := newGateEnv(t, 1)
	env.model.candidates = []Candidate{
		candidate(3, "A", "a"), candidate(4, "B", "b"), candidate(5, "C", "c"),
	}
	out, err := env.gate.Generate(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Added) != 2 {
		t.Errorf("Added = %d, want 2", len(out.Added))
	}
	if env.model.lastReq.Count != 2 {
		t.Errorf("request Count = %d, want 2", env.model.lastReq.Count)
	}
}

func TestGenerateRequiresSession(t *testing.T) {
	env := newGateEnv(t, 1)
	gate := NewGate(env.local, env.remote, backend.StaticSession(""), env.model)

	if _, err := gate.Generate(context.Background(), 1); !errors.Is(err, backend.ErrNoSession) {
		t.Errorf("error = %v, want ErrNoSession", err)
	}
	if env.model.calls != 0 {
		t.Error("model called without a session")
	}
}

func TestGenerateInsufficientCredits(t *testing.T) {
	env := newGateEnv(t, 0)
	env.model.candidates = []Candidate{candidate(3, "A", "a")}

	_, err := env.gate.Generate(context.Background(), 1)
	if !errors.Is(err, backend.ErrInsufficientCredits) {
		t.Fatalf("error = %v, want ErrInsufficientCredits", err)
	}
	if env.model.calls != 0 {
		t.Error("model called without credits")
	}
}

func TestGenerateRefundsOnFailure(t *testing.T) {
	ctx := context.Background()
	env := newGateEnv(t, 1)
	env.model.err = errors.New("overloaded")

	out, err := env.gate.Generate(ctx, 3)
	if err == nil {
		t.Fatal("expected error")
	}
	if out == nil || !out.Refunded {
		t.Errorf("outcome = %+v, want Refunded", out)
	}
	if got := balance(t, env); got != 1 {
		t.Errorf("balance = %d, want 1 after refund", got)
	}
	if env.trigger.calls != 0 {
		t.Error("failed generation triggered sync")
	}
}

func TestGenerateRefundsWhenNothingNew(t *testing.T) {
	ctx := context.Background()
	env := newGateEnv(t, 1)
	if err := env.local.Upsert(ctx, stored(3, backend.SyncSynced)); err != nil {
		t.Fatal(err)
	}
	env.model.candidates = []Candidate{candidate(3, "Known", "again"), candidate(9, "No reason", "")}

	_, err := env.gate.Generate(ctx, 2)
	if !errors.Is(err, ErrNoRecommendations) {
		t.Fatalf("error = %v, want ErrNoRecommendations", err)
	}
	if got := balance(t, env); got != 1 {
		t.Errorf("balance = %d, want 1 after refund", got)
	}
}

func TestGenerateWithoutModel(t *testing.T) {
	env := newGateEnv(t, 1)
	gate := NewGate(env.local, env.remote, backend.StaticSession(testUser), nil)
	if _, err := gate.Generate(context.Background(), 1); err == nil {
		t.Error("expected error when recommendations are disabled")
	}
	if got := balance(t, env); got != 1 {
		t.Errorf("balance = %d, want untouched", got)
	}
}

func TestRequestDescribesTaste(t *testing.T) {
	ctx := context.Background()
	env := newGateEnv(t, 1)

	high, low := 4.5, 2.0
	fav := stored(10, backend.SyncSynced)
	fav.IsFavorite = true
	loved := stored(11, backend.SyncSynced)
	loved.Rating = &high
	meh := stored(12, backend.SyncSynced)
	meh.Rating = &low
	meh.IsSeen = true
	for _, rec := range []backend.MovieRecord{fav, loved, meh} {
		if err := env.local.Upsert(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	req, err := env.gate.request(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(req.Liked) != 2 {
		t.Errorf("Liked = %d, want favorite and highly rated", len(req.Liked))
	}
	if len(req.Seen) != 1 || req.Seen[0].ID != 12 {
		t.Errorf("Seen = %+v", req.Seen)
	}
}

func TestGrantCredits(t *testing.T) {
	ctx := context.Background()
	env := newGateEnv(t, 1)

	got, err := env.gate.GrantCredits(ctx, 10)
	if err != nil || got != 11 {
		t.Errorf("GrantCredits(10) = %d, %v; want 11", got, err)
	}
	if _, err := env.gate.GrantCredits(ctx, 0); err == nil {
		t.Error("GrantCredits(0) should fail")
	}

	p, err := env.gate.Profile(ctx)
	if err != nil || p.Credits != 11 {
		t.Errorf("Profile() = %+v, %v", p, err)
	}
}
