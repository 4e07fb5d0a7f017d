/**
 * @description
 * Cron scheduler setup for the expiry sweep job.
 */
package app

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the recurring expiry sweep.
type Scheduler struct {
	cron       *cron.Cron
	service    *Service
	schedule   string
	batchLimit int
}

// NewScheduler creates a scheduler that runs the expiry sweep on the given
// cron schedule with the given per-run batch limit.
func NewScheduler(service *Service, schedule string, batchLimit int) *Scheduler {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Scheduler{
		cron:       c,
		service:    service,
		schedule:   schedule,
		batchLimit: batchLimit,
	}
}

// Start registers the sweep job and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.schedule, s.runExpirySweep); err != nil {
		log.Printf("level=error component=scheduler msg=\"failed to schedule expiry sweep\" schedule=%q err=%v", s.schedule, err)
		return
	}
	log.Printf("level=info component=scheduler msg=\"scheduled expiry sweep\" schedule=%q batch_limit=%d", s.schedule, s.batchLimit)
	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runExpirySweep() {
	ctx := context.Background()
	if _, err := s.service.ExpirePendingDistributions(ctx, s.batchLimit); err != nil {
		log.Printf("level=error component=scheduler msg=\"expiry sweep failed\" err=%v", err)
	}
}
