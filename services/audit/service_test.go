package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/auth-gateway/models"
)

// MockAuthEventRepository is a mock implementation of AuthEventRepository
type MockAuthEventRepository struct {
	mock.Mock
	mu             sync.Mutex
	insertedEvents []*models.AuthEvent
}

func (m *MockAuthEventRepository) Insert(ctx context.Context, event *models.AuthEvent) error {
	args := m.Called(ctx, event)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertedEvents = append(m.insertedEvents, event)
	return args.Error(0)
}

func (m *MockAuthEventRepository) CountByOutcome(ctx context.Context, since time.Time) (map[models.AuthOutcome]int, error) {
	args := m.Called(ctx, since)
	if counts := args.Get(0); counts != nil {
		return counts.(map[models.AuthOutcome]int), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuthEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAuthEventRepository) GetInsertedEvents() []*models.AuthEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AuthEvent(nil), m.insertedEvents...)
}

func newEvent() *models.AuthEvent {
	return models.NewAuthEvent(models.AuthActionSignIn, models.AuthOutcomeSuccess, "firebase")
}

func TestAuditService_StartStop(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	mockRepo := new(MockAuthEventRepository)
	config := Config{
		BufferSize:  10,
		WorkerCount: 2,
	}

	service := NewAuditService(mockRepo, logger, config)

	// Start service
	err := service.Start()
	require.NoError(t, err)

	stats := service.GetStats()
	assert.True(t, stats.Started)
	assert.Equal(t, 2, stats.WorkerCount)
	assert.Equal(t, 10, stats.BufferSize)

	// Cannot start again
	err = service.Start()
	assert.Error(t, err)

	// Stop service
	err = service.Stop(5 * time.Second)
	require.NoError(t, err)
	assert.False(t, service.GetStats().Started)

	// Cannot stop twice
	assert.Error(t, service.Stop(time.Second))
}

func TestAuditService_LogEvent(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	mockRepo := new(MockAuthEventRepository)
	config := Config{
		BufferSize:  100,
		WorkerCount: 2,
	}

	service := NewAuditService(mockRepo, logger, config)
	err := service.Start()
	require.NoError(t, err)

	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	event := models.NewAuthEvent(models.AuthActionSignUp, models.AuthOutcomeRejected, "local").
		WithRequest("req-1", "127.0.0.1", "test")

	// Log event (non-blocking)
	err = service.LogEvent(event)
	require.NoError(t, err)

	// Stop drains the buffer before returning
	require.NoError(t, service.Stop(5*time.Second))

	insertedEvents := mockRepo.GetInsertedEvents()
	require.Len(t, insertedEvents, 1)
	assert.Equal(t, event.ID, insertedEvents[0].ID)
	assert.Equal(t, models.AuthActionSignUp, insertedEvents[0].Action)
}

func TestAuditService_Record(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	mockRepo := new(MockAuthEventRepository)

	service := NewAuditService(mockRepo, logger, Config{BufferSize: 10, WorkerCount: 1})

	t.Run("before start events are dropped", func(t *testing.T) {
		assert.NotPanics(t, func() { service.Record(context.Background(), newEvent()) })
		assert.Empty(t, mockRepo.GetInsertedEvents())
	})

	t.Run("running service persists events", func(t *testing.T) {
		mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)
		require.NoError(t, service.Start())

		service.Record(context.Background(), newEvent())

		require.NoError(t, service.Stop(5*time.Second))
		assert.Len(t, mockRepo.GetInsertedEvents(), 1)
	})

	t.Run("after stop events are dropped", func(t *testing.T) {
		assert.NotPanics(t, func() { service.Record(context.Background(), newEvent()) })
		assert.Len(t, mockRepo.GetInsertedEvents(), 1)
	})
}

func TestAuditService_RepositoryErrorDoesNotStopWorkers(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	mockRepo := new(MockAuthEventRepository)

	service := NewAuditService(mockRepo, logger, Config{BufferSize: 10, WorkerCount: 1})
	require.NoError(t, service.Start())

	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, service.LogEvent(newEvent()))
	require.NoError(t, service.LogEvent(newEvent()))

	require.NoError(t, service.Stop(5*time.Second))
	assert.Len(t, mockRepo.GetInsertedEvents(), 2)
}

func TestAuditService_ConcurrentLogging(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	mockRepo := new(MockAuthEventRepository)
	config := Config{
		BufferSize:  1000,
		WorkerCount: 5,
	}

	service := NewAuditService(mockRepo, logger, config)
	err := service.Start()
	require.NoError(t, err)

	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	// Log events concurrently
	goroutineCount := 10
	eventsPerGoroutine := 10
	var wg sync.WaitGroup

	for i := 0; i < goroutineCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				service.Record(context.Background(), newEvent())
			}
		}()
	}

	wg.Wait()
	require.NoError(t, service.Stop(5*time.Second))

	// Verify all events were processed
	insertedEvents := mockRepo.GetInsertedEvents()
	expectedCount := goroutineCount * eventsPerGoroutine
	assert.Equal(t, expectedCount, len(insertedEvents))
}

func TestAuditService_BufferFull(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	mockRepo := new(MockAuthEventRepository)
	config := Config{
		BufferSize:  5,
		WorkerCount: 1,
	}

	service := NewAuditService(mockRepo, logger, config)
	err := service.Start()
	require.NoError(t, err)

	release := make(chan struct{})
	// Block processing until the buffer has overflowed
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		<-release
	})

	// Fill buffer
	successCount := 0
	for i := 0; i < 20; i++ {
		if err := service.LogEvent(newEvent()); err == nil {
			successCount++
		}
	}

	// At most one in-flight event plus a full buffer
	assert.LessOrEqual(t, successCount, 6)
	assert.GreaterOrEqual(t, service.GetStats().DroppedEvents, int64(14))

	close(release)
	require.NoError(t, service.Stop(5*time.Second))
}

func TestAuditService_StopTimeout(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	mockRepo := new(MockAuthEventRepository)
	config := Config{
		BufferSize:  100,
		WorkerCount: 1,
	}

	service := NewAuditService(mockRepo, logger, config)
	err := service.Start()
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)

	// Very slow processing
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		<-release
	})

	// Add one event that will take long to process
	require.NoError(t, service.LogEvent(newEvent()))

	// Stop with short timeout
	err = service.Stop(100 * time.Millisecond)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestAuditService_Prune(t *testing.T) {
	logger := zap.NewNop()

	t.Run("deletes events outside retention", func(t *testing.T) {
		mockRepo := new(MockAuthEventRepository)
		service := NewAuditService(mockRepo, logger, Config{Retention: 24 * time.Hour})

		before := time.Now().UTC().Add(-24 * time.Hour)
		mockRepo.On("DeleteOlderThan", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
			return !cutoff.Before(before) && cutoff.Before(time.Now().UTC())
		})).Return(int64(3), nil)

		removed, err := service.Prune(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(3), removed)
		mockRepo.AssertExpectations(t)
	})

	t.Run("zero retention keeps everything", func(t *testing.T) {
		mockRepo := new(MockAuthEventRepository)
		service := NewAuditService(mockRepo, logger, Config{})

		removed, err := service.Prune(context.Background())
		require.NoError(t, err)
		assert.Zero(t, removed)
		mockRepo.AssertNotCalled(t, "DeleteOlderThan", mock.Anything, mock.Anything)
	})

	t.Run("prune loop runs on schedule", func(t *testing.T) {
		mockRepo := new(MockAuthEventRepository)
		service := NewAuditService(mockRepo, logger, Config{
			WorkerCount: 1,
			Retention:   time.Hour,
			PruneEvery:  10 * time.Millisecond,
		})

		called := make(chan struct{}, 1)
		mockRepo.On("DeleteOlderThan", mock.Anything, mock.Anything).Return(int64(0), nil).Run(func(args mock.Arguments) {
			select {
			case called <- struct{}{}:
			default:
			}
		})

		require.NoError(t, service.Start())
		defer service.Stop(time.Second)

		select {
		case <-called:
		case <-time.After(2 * time.Second):
			t.Fatal("prune loop did not run")
		}
	})
}

func TestAuditService_Summary(t *testing.T) {
	mockRepo := new(MockAuthEventRepository)
	service := NewAuditService(mockRepo, zap.NewNop(), DefaultConfig())

	want := map[models.AuthOutcome]int{models.AuthOutcomeSuccess: 4}
	mockRepo.On("CountByOutcome", mock.Anything, mock.Anything).Return(want, nil)

	got, err := service.Summary(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAuditService_GetStats(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	mockRepo := new(MockAuthEventRepository)
	config := Config{
		BufferSize:  100,
		WorkerCount: 5,
	}

	service := NewAuditService(mockRepo, logger, config)

	// Before start
	stats := service.GetStats()
	assert.False(t, stats.Started)
	assert.Equal(t, 5, stats.WorkerCount)
	assert.Equal(t, 100, stats.BufferSize)
	assert.Equal(t, 0, stats.PendingEvents)
	assert.Zero(t, stats.DroppedEvents)

	// After start
	err := service.Start()
	require.NoError(t, err)
	defer service.Stop(5 * time.Second)

	stats = service.GetStats()
	assert.True(t, stats.Started)
}

func TestNewAuditService_AppliesDefaults(t *testing.T) {
	service := NewAuditService(new(MockAuthEventRepository), zap.NewNop(), Config{})

	stats := service.GetStats()
	assert.Equal(t, DefaultConfig().BufferSize, stats.BufferSize)
	assert.Equal(t, DefaultConfig().WorkerCount, stats.WorkerCount)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 1000, config.BufferSize)
	assert.Equal(t, 2, config.WorkerCount)
	assert.Equal(t, 90*24*time.Hour, config.Retention)
	assert.Equal(t, time.Hour, config.PruneEvery)
}
