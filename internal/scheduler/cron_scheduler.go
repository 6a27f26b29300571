package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobFunc is a periodic job. It receives the scheduler's context.
type JobFunc func(ctx context.Context)

// CronScheduler triggers jobs on cron specs in a fixed timezone
type CronScheduler struct {
	logger   *zap.Logger
	cron     *cron.Cron
	parser   cron.Parser
	location *time.Location

	mu       sync.Mutex
	ctx      context.Context
	entryIDs map[string]cron.EntryID
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}

// NewCronScheduler creates a new scheduler. Specs include a seconds field.
func NewCronScheduler(location *time.Location, logger *zap.Logger) *CronScheduler {
	if location == nil {
		location = time.UTC
	}
	cronLogger := &cronLogger{logger: logger.Named("cron")}
	cronOptions := []cron.Option{
		cron.WithSeconds(),
		cron.WithLocation(location),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	}

	return &CronScheduler{
		logger:   logger.Named("cron-scheduler"),
		cron:     cron.New(cronOptions...),
		parser:   cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		location: location,
		ctx:      context.Background(),
		entryIDs: make(map[string]cron.EntryID),
	}
}

// AddJob registers job under name on spec
func (s *CronScheduler) AddJob(name, spec string, job JobFunc) error {
	schedule, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entryIDs[name]; ok {
		return fmt.Errorf("job %s already scheduled", name)
	}

	entryID := s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()

		started := time.Now()
		s.logger.Info("Running job", zap.String("name", name))
		job(ctx)
		s.logger.Info("Job finished",
			zap.String("name", name),
			zap.Duration("duration", time.Since(started)),
			zap.Time("next_run", s.NextRun(name)))
	}))
	s.entryIDs[name] = entryID

	s.logger.Info("Added job",
		zap.String("name", name),
		zap.String("expression", spec),
		zap.String("timezone", s.location.String()),
		zap.Time("next_run", schedule.Next(time.Now().In(s.location))))
	return nil
}

// RemoveJob removes a job
func (s *CronScheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, ok := s.entryIDs[name]
	if !ok {
		return fmt.Errorf("job not found: %s", name)
	}
	s.cron.Remove(entryID)
	delete(s.entryIDs, name)

	s.logger.Info("Removed job", zap.String("name", name))
	return nil
}

// NextRun returns when the named job fires next, or the zero time
func (s *CronScheduler) NextRun(name string) time.Time {
	s.mu.Lock()
	entryID, ok := s.entryIDs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(entryID).Next
}

// Start starts the scheduler. Jobs receive ctx.
func (s *CronScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs
func (s *CronScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
