package access

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"residia/internal/apperr"
	"residia/internal/blocks"
	"residia/internal/model"
)

type mockMembers struct {
	mock.Mock
}

func (m *mockMembers) ListMemberships(ctx context.Context, userID, communityID int64) ([]model.MembershipRole, error) {
	args := m.Called(ctx, userID, communityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.MembershipRole), args.Error(1)
}

func (m *mockMembers) UnitsOwnedBy(ctx context.Context, userID, communityID int64) ([]int64, error) {
	args := m.Called(ctx, userID, communityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

type staticBlocks []model.Block

func (s staticBlocks) ListBlocks(context.Context, int64) ([]model.Block, error) {
	return s, nil
}

func int64Ptr(v int64) *int64 { return &v }

const (
	communityID = int64(1)
	blockA      = int64(10)
	blockA1     = int64(11)
	blockB      = int64(20)
)

func newTestResolver(t *testing.T, members MembershipStore) (*Resolver, *JWTVerifier) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	tree := staticBlocks{
		{ID: blockA, CommunityID: communityID},
		{ID: blockA1, CommunityID: communityID, ParentID: int64Ptr(blockA)},
		{ID: blockB, CommunityID: communityID},
	}
	verifier := NewJWTVerifier("test-secret", "residia", 0)
	return NewResolver(verifier, members, blocks.NewResolver(tree, time.Minute, logger), nil, logger), verifier
}

func TestResolve_RepresentativeJurisdictionIsExpanded(t *testing.T) {
	members := new(mockMembers)
	r, verifier := newTestResolver(t, members)
	ctx := context.Background()

	members.On("ListMemberships", ctx, int64(5), communityID).Return([]model.MembershipRole{
		{UserID: 5, CommunityID: communityID, Role: RoleRepresentative, BlockID: int64Ptr(blockA)},
	}, nil)
	members.On("UnitsOwnedBy", ctx, int64(5), communityID).Return([]int64{300}, nil)

	token, err := verifier.Issue(5, time.Hour)
	require.NoError(t, err)

	scope, err := r.Resolve(ctx, token, communityID)
	require.NoError(t, err)

	assert.Equal(t, int64(5), scope.UserID)
	assert.Equal(t, []string{RoleRepresentative}, scope.Roles)
	assert.Equal(t, []int64{blockA, blockA1}, scope.RepresentedBlocks)
	assert.True(t, scope.Represents(blockA1))
	assert.False(t, scope.Represents(blockB))
	assert.True(t, scope.Can(CanRepresentBlock))
	assert.True(t, scope.Can(CanBookOwn))
	assert.False(t, scope.Can(CanAdminister))
	assert.True(t, scope.OwnsUnit(300))
	members.AssertExpectations(t)
}

func TestScope_NilDeniesEverything(t *testing.T) {
	var scope *Scope
	assert.False(t, scope.Can(CanBookOwn))
	assert.False(t, scope.OwnsUnit(300))
	assert.False(t, scope.Represents(blockA))
}

func TestResolve_GlobalRepresentativeCoversAllBlocks(t *testing.T) {
	members := new(mockMembers)
	r, _ := newTestResolver(t, members)
	ctx := context.Background()

	members.On("ListMemberships", ctx, int64(6), communityID).Return([]model.MembershipRole{
		{UserID: 6, CommunityID: communityID, Role: RoleRepresentative},
	}, nil)
	members.On("UnitsOwnedBy", ctx, int64(6), communityID).Return([]int64{}, nil)

	scope, err := r.ScopeFor(ctx, 6, communityID)
	require.NoError(t, err)
	assert.Equal(t, []int64{blockA, blockA1, blockB}, scope.RepresentedBlocks)
}

func TestResolve_ResidentHasNoJurisdiction(t *testing.T) {
	members := new(mockMembers)
	r, _ := newTestResolver(t, members)
	ctx := context.Background()

	members.On("ListMemberships", ctx, int64(7), communityID).Return([]model.MembershipRole{
		{UserID: 7, CommunityID: communityID, Role: "Resident", BlockID: int64Ptr(blockA)},
	}, nil)
	members.On("UnitsOwnedBy", ctx, int64(7), communityID).Return([]int64{301}, nil)

	scope, err := r.ScopeFor(ctx, 7, communityID)
	require.NoError(t, err)
	assert.Empty(t, scope.RepresentedBlocks)
	assert.True(t, scope.Can(CanBookOwn))
	assert.False(t, scope.Can(CanRepresentBlock))
}

func TestResolve_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("missing token", func(t *testing.T) {
		r, _ := newTestResolver(t, new(mockMembers))
		_, err := r.Resolve(ctx, "", communityID)
		assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
	})

	t.Run("forged token", func(t *testing.T) {
		r, _ := newTestResolver(t, new(mockMembers))
		other := NewJWTVerifier("other-secret", "residia", 0)
		token, err := other.Issue(5, time.Hour)
		require.NoError(t, err)

		_, err = r.Resolve(ctx, token, communityID)
		assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
	})

	t.Run("expired token", func(t *testing.T) {
		r, verifier := newTestResolver(t, new(mockMembers))
		token, err := verifier.Issue(5, -time.Minute)
		require.NoError(t, err)

		_, err = r.Resolve(ctx, token, communityID)
		assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
	})

	t.Run("not a member", func(t *testing.T) {
		members := new(mockMembers)
		r, verifier := newTestResolver(t, members)
		members.On("ListMemberships", ctx, int64(9), communityID).Return([]model.MembershipRole{}, nil)

		token, err := verifier.Issue(9, time.Hour)
		require.NoError(t, err)

		_, err = r.Resolve(ctx, token, communityID)
		assert.True(t, apperr.Is(err, apperr.KindNotMember))
		members.AssertNotCalled(t, "UnitsOwnedBy", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("store failure", func(t *testing.T) {
		members := new(mockMembers)
		r, _ := newTestResolver(t, members)
		members.On("ListMemberships", ctx, int64(9), communityID).Return(nil, assert.AnError)

		_, err := r.ScopeFor(ctx, 9, communityID)
		assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
		assert.ErrorIs(t, err, assert.AnError)
	})
}
