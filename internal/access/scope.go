package access

import (
	"context"
	"slices"

	"github.com/rs/zerolog"

	"residia/internal/apperr"
	"residia/internal/model"
)

// MembershipStore looks up a user's standing in a community.
type MembershipStore interface {
	ListMemberships(ctx context.Context, userID, communityID int64) ([]model.MembershipRole, error)
	UnitsOwnedBy(ctx context.Context, userID, communityID int64) ([]int64, error)
}

// BlockExpander expands block ids to their jurisdiction.
type BlockExpander interface {
	ExpandDescendants(ctx context.Context, communityID int64, base []int64) ([]int64, error)
	AllBlocks(ctx context.Context, communityID int64) ([]int64, error)
}

// Scope is a caller resolved within one community.
// RepresentedBlocks is always expanded to include descendants.
type Scope struct {
	UserID            int64         `json:"user_id"`
	CommunityID       int64         `json:"community_id"`
	Roles             []string      `json:"roles"`
	Capabilities      CapabilitySet `json:"-"`
	RepresentedBlocks []int64       `json:"represented_blocks"`
	OwnedUnits        []int64       `json:"owned_units"`
}

// Can reports whether the caller holds capability c.
func (s *Scope) Can(c Capability) bool {
	return s != nil && s.Capabilities.Has(c)
}

// OwnsUnit reports whether the caller owns the unit.
func (s *Scope) OwnsUnit(unitID int64) bool {
	return s != nil && slices.Contains(s.OwnedUnits, unitID)
}

// Represents reports whether the block is inside the caller's jurisdiction.
func (s *Scope) Represents(blockID int64) bool {
	if s == nil {
		return false
	}
	_, found := slices.BinarySearch(s.RepresentedBlocks, blockID)
	return found
}

// Resolver turns tokens into scopes.
type Resolver struct {
	tokens  TokenVerifier
	members MembershipStore
	blocks  BlockExpander
	roles   RoleTable
	logger  zerolog.Logger
}

// NewResolver creates a scope resolver. A nil role table uses DefaultRoles.
func NewResolver(tokens TokenVerifier, members MembershipStore, blocks BlockExpander, roles RoleTable, logger zerolog.Logger) *Resolver {
	if roles == nil {
		roles = DefaultRoles()
	}
	return &Resolver{
		tokens:  tokens,
		members: members,
		blocks:  blocks,
		roles:   roles,
		logger:  logger.With().Str("component", "access").Logger(),
	}
}

// Resolve verifies the token and resolves the caller's scope in the community.
func (r *Resolver) Resolve(ctx context.Context, token string, communityID int64) (*Scope, error) {
	userID, err := r.tokens.VerifyToken(ctx, token)
	if err != nil {
		if apperr.Is(err, apperr.KindUnauthenticated) {
			return nil, err
		}
		return nil, &apperr.Error{Kind: apperr.KindUnauthenticated, Message: "invalid token", Err: err}
	}
	return r.ScopeFor(ctx, userID, communityID)
}

// ScopeFor resolves an already authenticated user.
func (r *Resolver) ScopeFor(ctx context.Context, userID, communityID int64) (*Scope, error) {
	memberships, err := r.members.ListMemberships(ctx, userID, communityID)
	if err != nil {
		return nil, apperr.Internal("load memberships", err)
	}
	if len(memberships) == 0 {
		return nil, apperr.Newf(apperr.KindNotMember, "user %d is not a member of community %d", userID, communityID)
	}

	scope := &Scope{
		UserID:            userID,
		CommunityID:       communityID,
		RepresentedBlocks: []int64{},
	}

	var (
		base   []int64
		global bool
	)
	for _, m := range memberships {
		caps := r.roles.Capabilities(m.Role)
		scope.Capabilities = scope.Capabilities.Union(caps)
		if !slices.Contains(scope.Roles, m.Role) {
			scope.Roles = append(scope.Roles, m.Role)
		}
		if !caps.Has(CanRepresentBlock) {
			continue
		}
		if m.BlockID == nil {
			global = true
		} else {
			base = append(base, *m.BlockID)
		}
	}
	slices.Sort(scope.Roles)

	switch {
	case global:
		scope.RepresentedBlocks, err = r.blocks.AllBlocks(ctx, communityID)
	case len(base) > 0:
		scope.RepresentedBlocks, err = r.blocks.ExpandDescendants(ctx, communityID, base)
	}
	if err != nil {
		return nil, apperr.Internal("expand represented blocks", err)
	}

	units, err := r.members.UnitsOwnedBy(ctx, userID, communityID)
	if err != nil {
		return nil, apperr.Internal("load owned units", err)
	}
	slices.Sort(units)
	scope.OwnedUnits = units

	r.logger.Debug().
		Int64("user_id", userID).
		Int64("community_id", communityID).
		Stringer("capabilities", scope.Capabilities).
		Int("represented_blocks", len(scope.RepresentedBlocks)).
		Msg("scope resolved")

	return scope, nil
}
