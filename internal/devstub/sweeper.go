package devstub

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper periodically purges expired sessions from the store.
type Sweeper struct {
	cron     *cron.Cron
	sessions SessionStore
	schedule string
	log      zerolog.Logger
}

func NewSweeper(sessions SessionStore, schedule string, log zerolog.Logger) *Sweeper {
	if schedule == "" {
		schedule = "0 */10 * * * *" // every ten minutes
	}
	return &Sweeper{
		cron:     cron.New(cron.WithSeconds()),
		sessions: sessions,
		schedule: schedule,
		log:      log,
	}
}

func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("sweeper stop timed out")
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("session sweep failed")
		return
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("expired sessions swept")
	}
}
