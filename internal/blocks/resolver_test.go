package blocks

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"residia/internal/model"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) ListBlocks(ctx context.Context, communityID int64) ([]model.Block, error) {
	args := m.Called(ctx, communityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Block), args.Error(1)
}

func TestResolver_CachesForestInProcess(t *testing.T) {
	src := new(mockSource)
	logger := zerolog.New(io.Discard)
	r := NewResolver(src, time.Minute, logger)
	ctx := context.Background()

	src.On("ListBlocks", ctx, int64(10)).Return(sampleBlocks(), nil).Once()

	got, err := r.ExpandDescendants(ctx, 10, []int64{1})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, got)

	got, err = r.ExpandDescendants(ctx, 10, []int64{5})
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6}, got)
	src.AssertExpectations(t)

	// expired entries are reloaded
	r.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	src.On("ListBlocks", ctx, int64(10)).Return(sampleBlocks(), nil).Once()
	_, err = r.AllBlocks(ctx, 10)
	require.NoError(t, err)
	src.AssertExpectations(t)
}

func TestResolver_EmptyBaseSkipsLoading(t *testing.T) {
	src := new(mockSource)
	r := NewResolver(src, time.Minute, zerolog.New(io.Discard))

	got, err := r.ExpandDescendants(context.Background(), 10, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	src.AssertNotCalled(t, "ListBlocks", mock.Anything, mock.Anything)
}

func TestResolver_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	src := new(mockSource)
	ctx := context.Background()
	src.On("ListBlocks", ctx, int64(10)).Return(sampleBlocks(), nil).Once()

	first := NewResolver(src, 0, zerolog.New(io.Discard))
	first.UseRedisCache(client, time.Minute)
	got, err := first.ExpandDescendants(ctx, 10, []int64{2})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4}, got)
	assert.True(t, mr.Exists("blocks:10"))

	// a second resolver instance is served from Redis
	second := NewResolver(src, 0, zerolog.New(io.Discard))
	second.UseRedisCache(client, time.Minute)
	got, err = second.ExpandDescendants(ctx, 10, []int64{1})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, got)
	src.AssertExpectations(t)

	second.Invalidate(ctx, 10)
	assert.False(t, mr.Exists("blocks:10"))
}

func TestResolver_SourceError(t *testing.T) {
	src := new(mockSource)
	ctx := context.Background()
	src.On("ListBlocks", ctx, int64(10)).Return(nil, assert.AnError).Once()

	r := NewResolver(src, time.Minute, zerolog.New(io.Discard))
	_, err := r.ExpandDescendants(ctx, 10, []int64{1})
	assert.ErrorIs(t, err, assert.AnError)
}
