package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ayo6706/screening-settlement/internal/domain"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// RunFunc executes one settlement job for a reference date.
type RunFunc func(ctx context.Context, job string, referenceDate time.Time) error

// Scheduler triggers settlement jobs on cron schedules. Each firing settles the
// previous calendar day in the configured timezone.
type Scheduler struct {
	scheduler gocron.Scheduler
	run       RunFunc
	loc       *time.Location
	now       func() time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	stopOnce  sync.Once
	mu        sync.Mutex
	jobs      []string
}

// NewScheduler creates a scheduler in loc.
func NewScheduler(run RunFunc, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	s, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: s,
		run:       run,
		loc:       loc,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Register schedules job with a standard five-field cron expression. An empty
// expression leaves the job unscheduled.
func (s *Scheduler) Register(job, expression string) error {
	expression = strings.TrimSpace(expression)
	if expression == "" || strings.EqualFold(expression, "off") {
		zap.L().Info("settlement job not scheduled", zap.String("job", job))
		return nil
	}
	if !domain.IsJob(job) {
		return fmt.Errorf("unknown job %q", job)
	}

	_, err := s.scheduler.NewJob(
		gocron.CronJob(expression, false),
		gocron.NewTask(s.execute, job),
		gocron.WithName(job),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("register job %s: %w", job, err)
	}

	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	s.mu.Unlock()
	zap.L().Info("settlement job scheduled", zap.String("job", job), zap.String("cron", expression))
	return nil
}

// Jobs lists the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Start begins firing registered jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	zap.L().Info("settlement scheduler started", zap.String("timezone", s.loc.String()))
}

// Stop cancels running jobs and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.cancel()
		err = s.scheduler.Shutdown()
	})
	return err
}

func (s *Scheduler) execute(job string) {
	date := domain.Yesterday(s.now(), s.loc)
	log := zap.L().With(zap.String("job", job), zap.String("reference_date", date.Format(domain.DateLayout)))
	log.Info("scheduled settlement run starting")

	if err := s.run(s.ctx, job, date); err != nil {
		log.Error("scheduled settlement run failed", zap.Error(err))
		return
	}
	log.Info("scheduled settlement run finished")
}
