// Package schedule posts configured notices into bridged chats on cron
// schedules.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tinyland-inc/picobridge/pkg/bridge"
	"github.com/tinyland-inc/picobridge/pkg/config"
	"github.com/tinyland-inc/picobridge/pkg/logger"
)

// Job is a validated schedule entry.
type Job struct {
	Cron string
	To   bridge.UID
	Text string
}

type Scheduler struct {
	router *bridge.Router
	jobs   []Job
	now    func() time.Time
	wg     sync.WaitGroup
}

// New validates entries against r's parser. Bad expressions and
// destinations are logged and skipped.
func New(r *bridge.Router, entries []config.ScheduleConfig) *Scheduler {
	s := &Scheduler{router: r, now: time.Now}
	g := gronx.New()
	for i, e := range entries {
		fields := map[string]any{"index": i, "cron": e.Cron, "to": e.To}
		if !g.IsValid(e.Cron) {
			logger.WarnCF("schedule", "Skipping invalid cron expression", fields)
			continue
		}
		u := r.Parser().Parse(e.To)
		if !u.Valid() {
			logger.WarnCF("schedule", "Skipping invalid destination", fields)
			continue
		}
		s.jobs = append(s.jobs, Job{Cron: e.Cron, To: u, Text: e.Text})
	}
	return s
}

func (s *Scheduler) Jobs() []Job {
	return s.jobs
}

// Start runs every job until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	for _, j := range s.jobs {
		s.wg.Go(func() { s.run(ctx, j) })
	}
	logger.InfoCF("schedule", "Scheduler started", map[string]any{"jobs": len(s.jobs)})
}

// Wait blocks until every job loop has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, j Job) {
	for {
		next, err := s.Next(j, s.now())
		if err != nil {
			logger.ErrorCF("schedule", "Cannot compute next tick", map[string]any{
				"cron":  j.Cron,
				"error": err.Error(),
			})
			return
		}
		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.Fire(ctx, j)
	}
}

// Next returns the first tick of j strictly after from.
func (s *Scheduler) Next(j Job, from time.Time) (time.Time, error) {
	return gronx.NextTickAfter(j.Cron, from, false)
}

// Fire sends the notice of j through the bridge as if the destination chat
// itself had said it.
func (s *Scheduler) Fire(ctx context.Context, j Job) bool {
	h, ok := s.router.Handler(j.To.Client)
	if !ok {
		logger.WarnCF("schedule", "No handler for destination", map[string]any{"to": j.To.UID})
		return false
	}
	c := bridge.NewContext(bridge.Context{
		From:    j.To.ID,
		To:      j.To.ID,
		Text:    j.Text,
		Extra:   bridge.Extra{IsNotice: true},
		Handler: h,
	})
	logger.DebugCF("schedule", "Firing", map[string]any{"to": j.To.UID, "msg_id": c.MsgID})
	return s.router.SendContext(ctx, c)
}
