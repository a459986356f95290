package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/auth-gateway/auth"
	"github.com/upb/auth-gateway/models"
	"github.com/upb/auth-gateway/repositories"
)

// AuditService persists auth events asynchronously
type AuditService struct {
	repo        repositories.AuthEventRepository
	logger      *zap.Logger
	eventChan   chan *models.AuthEvent
	workerCount int
	bufferSize  int
	retention   time.Duration
	pruneEvery  time.Duration
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	stopped     bool
	dropped     int64
	mu          sync.Mutex
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize  int           // Size of the event buffer channel
	WorkerCount int           // Number of concurrent workers
	Retention   time.Duration // Events older than this are pruned; zero disables pruning
	PruneEvery  time.Duration // Interval between prune runs
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
		Retention:   90 * 24 * time.Hour,
		PruneEvery:  time.Hour,
	}
}

var _ auth.EventRecorder = (*AuditService)(nil)

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repositories.AuthEventRepository, logger *zap.Logger, config Config) *AuditService {
	ctx, cancel := context.WithCancel(context.Background())

	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}
	if config.PruneEvery <= 0 {
		config.PruneEvery = DefaultConfig().PruneEvery
	}

	return &AuditService{
		repo:        repo,
		logger:      logger.With(zap.String("component", "audit")),
		eventChan:   make(chan *models.AuthEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		retention:   config.Retention,
		pruneEvery:  config.PruneEvery,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	// Start worker goroutines
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	if s.retention > 0 {
		go s.pruneLoop()
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize),
		zap.Duration("retention", s.retention))

	return nil
}

// Stop gracefully stops the audit service
// Waits for all pending events to be processed
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not started")
	}
	s.stopped = true

	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))

	// Close the event channel (no more events will be accepted)
	close(s.eventChan)
	s.mu.Unlock()

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		s.cancel()
		return nil
	case <-time.After(timeout):
		s.cancel()
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// Record queues an event without blocking. Events are dropped when the
// service is not running or the buffer is full.
func (s *AuditService) Record(_ context.Context, event *models.AuthEvent) {
	if err := s.LogEvent(event); err != nil {
		s.logger.Debug("auth event not recorded", zap.Error(err))
	}
}

// LogEvent logs an event asynchronously (non-blocking)
// Returns immediately, event is processed in background
func (s *AuditService) LogEvent(event *models.AuthEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return fmt.Errorf("audit service not started")
	}

	// Try to send event to channel (non-blocking)
	select {
	case s.eventChan <- event:
		return nil
	default:
		// Channel is full, log warning and drop event
		s.dropped++
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(event.Action)),
			zap.String("request_id", event.RequestID))
		return fmt.Errorf("audit event buffer full")
	}
}

// worker processes events from the channel
func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(event.Action)),
				zap.String("request_id", event.RequestID))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// processEvent processes a single audit event
func (s *AuditService) processEvent(event *models.AuthEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.repo.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to insert auth event: %w", err)
	}

	return nil
}

func (s *AuditService) pruneLoop() {
	ticker := time.NewTicker(s.pruneEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Prune(s.ctx); err != nil {
				s.logger.Error("failed to prune auth events", zap.Error(err))
			}
		}
	}
}

// Prune removes events older than the retention window
func (s *AuditService) Prune(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.repo.DeleteOlderThan(ctx, time.Now().UTC().Add(-s.retention))
}

// Summary counts events per outcome over the trailing window
func (s *AuditService) Summary(ctx context.Context, window time.Duration) (map[models.AuthOutcome]int, error) {
	return s.repo.CountByOutcome(ctx, time.Now().UTC().Add(-window))
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		DroppedEvents: s.dropped,
		Started:       s.started && !s.stopped,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int   `json:"buffer_size"`
	PendingEvents int   `json:"pending_events"`
	WorkerCount   int   `json:"worker_count"`
	DroppedEvents int64 `json:"dropped_events"`
	Started       bool  `json:"started"`
}
