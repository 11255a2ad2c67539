package service

import (
	"time"

	"github.com/danmuck/squirrel/internal/logging"
	"github.com/thejerf/suture/v4"
)

const StopTimeout = 10 * time.Second

// NewSupervisor returns a supervisor that logs its events and restarts
// failed services with backoff.
func NewSupervisor(name string) *suture.Supervisor {
	log := logging.Logger("supervisor")
	return suture.New(name, suture.Spec{
		EventHook: func(e suture.Event) {
			log.Warn().Fields(e.Map()).Str("event", e.String()).Msg("service.Supervisor event")
		},
		FailureThreshold: 5,
		FailureBackoff:   2 * time.Second,
		Timeout:          StopTimeout,
	})
}
