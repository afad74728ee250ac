package jobs

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffPolicy configures the delay before each retry within a run.
type BackoffPolicy struct {
	Initial    time.Duration `yaml:"initial" validate:"gte=0"`
	Max        time.Duration `yaml:"max" validate:"gte=0"`
	Multiplier float64       `yaml:"multiplier" validate:"gte=0"`
	Jitter     float64       `yaml:"jitter" validate:"gte=0,lte=1"`
}

// DefaultBackoff doubles from 30s up to 30m with light jitter.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		Initial:    30 * time.Second,
		Max:        30 * time.Minute,
		Multiplier: 2,
		Jitter:     0.1,
	}
}

// Delay returns the wait before retry number attempt (1-based).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.Initial,
		RandomizationFactor: p.Jitter,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.Max,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultBackoff().Initial
	}
	if b.Multiplier < 1 {
		b.Multiplier = DefaultBackoff().Multiplier
	}
	if b.MaxInterval <= 0 {
		b.MaxInterval = DefaultBackoff().Max
	}
	b.Reset()

	d := b.InitialInterval
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
