package jobs

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) CompleteFinished(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type backupFunc func(ctx context.Context) error

func (f backupFunc) Run(ctx context.Context) error { return f(ctx) }

func TestRunCompletion_UsesWallClockOfTimezone(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	s := NewScheduler(loc, zerolog.New(io.Discard))
	s.now = func() time.Time { return time.Date(2025, time.June, 15, 7, 30, 0, 0, time.UTC) }

	c := new(mockCompleter)
	want := time.Date(2025, time.June, 15, 10, 30, 0, 0, time.UTC)
	c.On("CompleteFinished", mock.Anything, want).Return(int64(2), nil).Once()

	n, err := s.RunCompletion(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	c.AssertExpectations(t)
}

func TestRunCompletion_Error(t *testing.T) {
	s := NewScheduler(nil, zerolog.New(io.Discard))
	c := new(mockCompleter)
	c.On("CompleteFinished", mock.Anything, mock.Anything).Return(int64(0), errors.New("db down")).Once()

	_, err := s.RunCompletion(context.Background(), c)
	assert.EqualError(t, err, "db down")
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := NewScheduler(time.UTC, zerolog.New(io.Discard))
	assert.Error(t, s.AddCompletion("not a schedule", new(mockCompleter)))
	assert.Error(t, s.AddBackup("61 * * * *", backupFunc(func(context.Context) error { return nil })))
}

func TestScheduler_RunsJobs(t *testing.T) {
	s := NewScheduler(time.UTC, zerolog.New(io.Discard))

	ran := make(chan struct{}, 1)
	require.NoError(t, s.AddBackup("@every 1s", backupFunc(func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})))

	s.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	}()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("backup job did not run")
	}
}
