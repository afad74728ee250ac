package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunDueRunsHandler(t *testing.T) {
	q, _, _ := newTestQueue(t)
	var results []Result
	r := NewRunner(q, nil, WithResultHook(func(res Result) { results = append(results, res) }))

	var calls atomic.Int32
	r.Handle("push", func(ctx context.Context, job Job) error {
		calls.Add(1)
		return nil
	})
	q.EnqueueOneShot("push", OneShotRequest{}, Replace)

	ran, err := r.RunDue(context.Background())
	if err != nil {
		t.Fatalf("RunDue() error = %v", err)
	}
	if ran != 1 || calls.Load() != 1 {
		t.Errorf("ran = %d, calls = %d, want 1, 1", ran, calls.Load())
	}

	job, _ := q.Get("push")
	if job.State != StateSucceeded {
		t.Errorf("State = %s, want SUCCEEDED", job.State)
	}
	if len(results) != 1 || !results[0].Recorded || results[0].Err != nil {
		t.Errorf("results = %+v", results)
	}

	// Nothing left to run.
	if ran, _ := r.RunDue(context.Background()); ran != 0 {
		t.Errorf("second RunDue ran %d jobs", ran)
	}
}

func TestRunDueDefersUnmetConstraints(t *testing.T) {
	q, clock, _ := newTestQueue(t)
	cond := &StaticConditions{Online: false}
	r := NewRunner(q, cond, WithRecheckInterval(time.Minute))

	var calls atomic.Int32
	r.Handle("push", func(ctx context.Context, job Job) error {
		calls.Add(1)
		return nil
	})
	q.EnqueueOneShot("push", OneShotRequest{Constraints: Constraints{RequiresNetwork: true}}, Replace)

	if ran, _ := r.RunDue(context.Background()); ran != 0 {
		t.Fatalf("ran %d jobs while offline", ran)
	}
	job, _ := q.Get("push")
	if job.Attempt != 0 || job.State != StateEnqueued {
		t.Errorf("deferral counted an attempt: %+v", job)
	}
	if want := clock.Now().Add(time.Minute); !job.NextRunAt.Equal(want) {
		t.Errorf("NextRunAt = %v, want %v", job.NextRunAt, want)
	}

	cond.Online = true
	clock.Advance(time.Minute)
	if ran, _ := r.RunDue(context.Background()); ran != 1 || calls.Load() != 1 {
		t.Errorf("job did not run once online: ran=%d calls=%d", ran, calls.Load())
	}
}

func TestRunDueBatteryConstraint(t *testing.T) {
	q, _, _ := newTestQueue(t)
	r := NewRunner(q, StaticConditions{Online: true, BatteryLow: true})
	r.Handle("periodic", func(ctx context.Context, job Job) error { return nil })

	job, _ := q.EnqueueOneShot("periodic", OneShotRequest{Constraints: Constraints{RequiresBatteryNotLow: true}}, Replace)
	if ran, _ := r.RunDue(context.Background()); ran != 0 {
		t.Errorf("ran on low battery")
	}
	if got, _ := q.Get(job.Name); got.State != StateEnqueued {
		t.Errorf("State = %s", got.State)
	}
}

func TestRunDueRecoversPanics(t *testing.T) {
	q, _, _ := newTestQueue(t)
	r := NewRunner(q, nil)
	r.Handle("push", func(ctx context.Context, job Job) error {
		panic("kaboom")
	})
	q.EnqueueOneShot("push", OneShotRequest{}, Replace)

	if _, err := r.RunDue(context.Background()); err != nil {
		t.Fatalf("RunDue() error = %v", err)
	}
	job, _ := q.Get("push")
	if job.State != StateRetryScheduled || job.LastError == "" {
		t.Errorf("panic not recorded as failure: %+v", job)
	}
}

func TestRunDueWithoutHandlerDefers(t *testing.T) {
	q, clock, _ := newTestQueue(t)
	r := NewRunner(q, nil, WithRecheckInterval(time.Minute))
	q.EnqueueOneShot("orphan", OneShotRequest{}, Replace)

	if ran, _ := r.RunDue(context.Background()); ran != 0 {
		t.Errorf("ran = %d", ran)
	}
	job, _ := q.Get("orphan")
	if !job.NextRunAt.Equal(clock.Now().Add(time.Minute)) {
		t.Errorf("NextRunAt = %v", job.NextRunAt)
	}
}

func TestRunDueReportsHandlerError(t *testing.T) {
	q, _, _ := newTestQueue(t)
	var got Result
	r := NewRunner(q, nil, WithResultHook(func(res Result) { got = res }))
	r.Handle("push", func(ctx context.Context, job Job) error { return errors.New("remote down") })
	q.EnqueueOneShot("push", OneShotRequest{}, Replace)

	r.RunDue(context.Background())
	if got.Err == nil || got.Job.State != StateRetryScheduled || got.Job.Attempt != 1 {
		t.Errorf("result = %+v", got)
	}
}

func TestServeRunsOnWake(t *testing.T) {
	db := openTestDB(t)
	q, err := New(db)
	if err != nil {
		t.Fatal(err)
	}
	r := NewRunner(q, nil, WithPollInterval(time.Hour))

	done := make(chan struct{}, 1)
	r.Handle("push", func(ctx context.Context, job Job) error {
		done <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- r.Serve(ctx) }()

	q.EnqueueOneShot("push", OneShotRequest{}, Replace)
	r.Wake()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not run after Wake")
	}

	cancel()
	select {
	case err := <-served:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}

func writeSupply(t *testing.T, dir, name string, attrs map[string]string) {
	t.Helper()
	supply := filepath.Join(dir, name)
	if err := os.MkdirAll(supply, 0755); err != nil {
		t.Fatal(err)
	}
	for k, v := range attrs {
		if err := os.WriteFile(filepath.Join(supply, k), []byte(v+"\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBatteryNotLow(t *testing.T) {
	tests := []struct {
		name   string
		attrs  map[string]string
		expect bool
	}{
		{"discharging low", map[string]string{"type": "Battery", "status": "Discharging", "capacity": "9"}, false},
		{"discharging ok", map[string]string{"type": "Battery", "status": "Discharging", "capacity": "40"}, true},
		{"charging low", map[string]string{"type": "Battery", "status": "Charging", "capacity": "5"}, true},
		{"mains only", map[string]string{"type": "Mains", "online": "1"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeSupply(t, dir, "BAT0", tt.attrs)
			cond := SystemConditions{PowerSupplyDir: dir}
			if got := cond.BatteryNotLow(context.Background()); got != tt.expect {
				t.Errorf("BatteryNotLow() = %v, want %v", got, tt.expect)
			}
		})
	}

	missing := SystemConditions{PowerSupplyDir: filepath.Join(t.TempDir(), "none")}
	if !missing.BatteryNotLow(context.Background()) {
		t.Error("no power_supply directory should count as not low")
	}
}

func TestNetworkAvailableWithoutProbe(t *testing.T) {
	if !(SystemConditions{}).NetworkAvailable(context.Background()) {
		t.Error("empty probe address should report online")
	}
}

func TestDrainWaitsForShortDelays(t *testing.T) {
	q, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	r := NewRunner(q, nil, WithLease("drain", time.Minute))
	ran := 0
	r.Handle("push", func(ctx context.Context, job Job) error {
		ran++
		return nil
	})
	q.EnqueueOneShot("push", OneShotRequest{Delay: 100 * time.Millisecond}, Replace)
	q.EnqueuePeriodic("periodic", PeriodicRequest{Interval: time.Hour, Flex: time.Minute}, Keep)

	n, err := r.Drain(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if n != 1 || ran != 1 {
		t.Errorf("Drain() ran %d (handler %d), want the debounced push only", n, ran)
	}
	if _, found, _ := q.CurrentLease(); found {
		t.Error("Drain() kept the lease")
	}
}
