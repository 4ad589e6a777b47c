package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrQueueFull = errors.New("job queue full")
	ErrStopped   = errors.New("job service stopped")
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusDropped   = "dropped"
)

type Observer interface {
	ObserveJob(jobType, status string)
}

type Options struct {
	QueueSize int
	Logger    *slog.Logger
	Observer  Observer
}

// Service runs work on a single background worker and records each run in
// job_runs when a database is attached.
type Service struct {
	DB       *pgxpool.Pool
	queue    chan job
	logger   *slog.Logger
	observer Observer
	wg       sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// Dropped is told why a queued job will never run.
type Dropped func(reason error)

type job struct {
	Type     string
	TenantID string
	Run      func(context.Context) (any, error)
	Dropped  Dropped
}

func New(db *pgxpool.Pool, opts Options) *Service {
	size := opts.QueueSize
	if size <= 0 {
		size = 128
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		DB:       db,
		queue:    make(chan job, size),
		logger:   logger,
		observer: opts.Observer,
	}
}

func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker(ctx)
	}()
}

// Wait blocks until the worker has stopped after its context was cancelled.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Enqueue queues run for the background worker. dropped, when set, is called
// if the service stops before the job starts.
func (s *Service) Enqueue(jobType, tenantID string, run func(context.Context) (any, error), dropped Dropped) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	select {
	case s.queue <- job{Type: jobType, TenantID: tenantID, Run: run, Dropped: dropped}:
		return nil
	default:
		s.logger.Warn("job queue full", "jobType", jobType, "tenantId", tenantID)
		return ErrQueueFull
	}
}

func (s *Service) RunNow(ctx context.Context, jobType, tenantID string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, TenantID: tenantID, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case j := <-s.queue:
			if ctx.Err() != nil {
				s.drop(j)
				continue
			}
			if _, err := s.runJob(ctx, j); err != nil {
				s.logger.Warn("job run failed", "jobType", j.Type, "tenantId", j.TenantID, "err", err)
			}
		}
	}
}

// drain stops intake and reports every job still queued as dropped.
func (s *Service) drain() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	for {
		select {
		case j := <-s.queue:
			s.drop(j)
		default:
			return
		}
	}
}

func (s *Service) drop(j job) {
	s.logger.Warn("queued job dropped at shutdown", "jobType", j.Type, "tenantId", j.TenantID)
	if s.observer != nil {
		s.observer.ObserveJob(j.Type, StatusDropped)
	}
	if j.Dropped != nil {
		j.Dropped(ErrStopped)
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := s.insertRun(ctx, j)

	details, err := j.Run(ctx)
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
	}
	if s.observer != nil {
		s.observer.ObserveJob(j.Type, status)
	}
	s.completeRun(context.WithoutCancel(ctx), runID, status, details)
	return details, err
}

func (s *Service) insertRun(ctx context.Context, j job) string {
	if s.DB == nil {
		return ""
	}
	runID := ""
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (tenant_id, job_type, status)
    VALUES ($1,$2,$3)
    RETURNING id
  `, j.TenantID, j.Type, StatusRunning).Scan(&runID); err != nil {
		s.logger.Warn("job run insert failed", "err", err)
	}
	return runID
}

func (s *Service) completeRun(ctx context.Context, runID, status string, details any) {
	if s.DB == nil || runID == "" {
		return
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		s.logger.Warn("job details marshal failed", "err", err)
		detailsJSON = []byte("{}")
	}
	if _, err := s.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = now()
    WHERE id = $3
  `, status, detailsJSON, runID); err != nil {
		s.logger.Warn("job run update failed", "err", err)
	}
}
