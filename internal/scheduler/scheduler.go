// Package scheduler arms cron-triggered sync operations.
package scheduler

import (
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/lazyyq/vscode-sync-settings/internal/orchestrator"
	"github.com/lazyyq/vscode-sync-settings/internal/settings"
	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned when a cron expression does not parse.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Runner accepts scheduled operations. Implemented by the orchestrator.
type Runner interface {
	Enqueue(kind orchestrator.Kind, profile string) *orchestrator.Operation
}

// Scheduler owns the cron runner. Arm replaces all schedules at once;
// re-arming stops the previous timers first so nothing fires twice.
type Scheduler struct {
	runner Runner
	log    *log.Logger

	cron    *cron.Cron
	armed   int
	entries []string
}

// New creates a scheduler delegating fires to runner. logger may be nil.
func New(runner Runner, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(discard{}, "", 0)
	}
	return &Scheduler{runner: runner, log: logger}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Arm parses every cron expression in cfg and replaces the armed
// schedules. All expressions are validated before anything is torn
// down: an invalid one returns ErrInvalidSchedule and leaves the
// previously armed schedules running.
func (s *Scheduler) Arm(cfg *settings.Config) error {
	type schedule struct {
		op   orchestrator.Kind
		spec string
		expr cron.Schedule
	}

	ops := make([]string, 0, len(cfg.Crons))
	for op := range cfg.Crons {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	var schedules []schedule
	for _, op := range ops {
		spec := cfg.Crons[op]
		expr, err := cron.ParseStandard(spec)
		if err != nil {
			return fmt.Errorf("%w: %s %q: %v", ErrInvalidSchedule, op, spec, err)
		}
		schedules = append(schedules, schedule{op: orchestrator.Kind(op), spec: spec, expr: expr})
	}

	s.Stop()

	if len(schedules) == 0 {
		s.armed = 0
		s.entries = nil
		return nil
	}

	profile := cfg.Profile
	runner := cron.New()
	s.entries = s.entries[:0]
	for _, sc := range schedules {
		sc := sc
		runner.Schedule(sc.expr, cron.FuncJob(func() {
			s.log.Printf("cron fired: %s (%s)", sc.op, sc.spec)
			s.runner.Enqueue(sc.op, profile)
		}))
		s.entries = append(s.entries, fmt.Sprintf("%s: %s", sc.op, sc.spec))
	}
	runner.Start()

	s.cron = runner
	s.armed = len(schedules)
	return nil
}

// Stop disarms all schedules.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

// Armed returns how many schedules are currently armed.
func (s *Scheduler) Armed() int { return s.armed }

// Entries describes the armed schedules, sorted by operation.
func (s *Scheduler) Entries() []string {
	return append([]string(nil), s.entries...)
}
