package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/auth-gateway/services"
)

type stubModule struct{ name string }

func (s *stubModule) Name() string { return s.name }
func (s *stubModule) GetCurrentUser(context.Context, Credential) (*UserRecord, error) {
	return nil, services.ErrInvalidToken
}
func (s *stubModule) SignIn(context.Context, UserCreate) (*Token, error) {
	return nil, services.ErrInvalidCredentials
}
func (s *stubModule) SignUp(context.Context, UserCreate) error     { return nil }
func (s *stubModule) DeleteUser(context.Context, string) error     { return nil }
func (s *stubModule) ForgotPassword(context.Context, string) error { return nil }

func countingFactory(calls *int32, name string) Factory {
	return func(ctx context.Context) (Module, error) {
		atomic.AddInt32(calls, 1)
		return &stubModule{name: name}, nil
	}
}

func TestSelector_ReturnsSameInstance(t *testing.T) {
	var calls int32
	s := NewSelector("firebase")
	s.Register("firebase", countingFactory(&calls, "firebase"))

	first, err := s.Module(context.Background())
	require.NoError(t, err)
	second, err := s.Module(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "firebase", s.Selected())
}

func TestSelector_ConcurrentFirstAccess(t *testing.T) {
	var calls int32
	s := NewSelector("local")
	s.Register("local", countingFactory(&calls, "local"))

	const goroutines = 50
	results := make([]Module, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := s.Module(context.Background())
			assert.NoError(t, err)
			results[i] = m
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, m := range results {
		assert.Same(t, results[0], m)
	}
}

func TestSelector_UnknownBackend(t *testing.T) {
	s := NewSelector("cognito")
	s.Register("firebase", countingFactory(new(int32), "firebase"))
	s.Register("local", countingFactory(new(int32), "local"))

	m, err := s.Module(context.Background())
	assert.Nil(t, m)
	require.Error(t, err)
	assert.True(t, services.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "cognito")
	assert.Equal(t, []string{"firebase", "local"}, s.Available())
}

func TestSelector_FactoryErrorIsSticky(t *testing.T) {
	var calls int32
	s := NewSelector("firebase")
	s.Register("firebase", func(ctx context.Context) (Module, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("missing FIREBASE_PRIVATE_KEY")
	})

	_, err1 := s.Module(context.Background())
	_, err2 := s.Module(context.Background())

	assert.True(t, services.IsConfigurationError(err1))
	assert.Equal(t, err1, err2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSelector_KeepsConfigurationErrors(t *testing.T) {
	cause := services.WrapConfiguration("firebase backend misconfigured", errors.New("FIREBASE_API_KEY is required"))
	s := NewSelector("firebase")
	s.Register("firebase", func(ctx context.Context) (Module, error) { return nil, cause })

	_, err := s.Module(context.Background())
	assert.Same(t, cause, err)
}

func TestSelector_RegisterReplaces(t *testing.T) {
	s := NewSelector("local")
	s.Register("local", countingFactory(new(int32), "first"))
	s.Register("local", countingFactory(new(int32), "second"))

	m, err := s.Module(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", m.Name())
	assert.Equal(t, []string{"local"}, s.Available())
}
