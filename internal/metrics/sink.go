package metrics

import (
	"github.com/rs/zerolog"

	"gosyncmovies/internal/utils"
)

// Sink receives the sync engine's log lines and exceptions. Exceptions are
// counted as well as logged.
type Sink struct {
	log zerolog.Logger
}

// NewSink creates a sink logging under the "sync" component.
func NewSink() *Sink {
	return &Sink{log: utils.Component("sync")}
}

func (s *Sink) Log(msg string) {
	s.log.Info().Msg(msg)
}

func (s *Sink) RecordException(err error) {
	ExceptionsTotal.Inc()
	s.log.Error().Err(err).Msg("sync exception")
}
