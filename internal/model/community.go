package model

// Block is a building or section. Blocks form a forest per community.
type Block struct {
	ID          int64  `json:"id"`
	CommunityID int64  `json:"community_id"`
	ParentID    *int64 `json:"parent_id,omitempty"`
	Name        string `json:"name,omitempty"`
}

// Unit is a physical dwelling inside a block.
type Unit struct {
	ID          int64   `json:"id"`
	CommunityID int64   `json:"community_id"`
	BlockID     int64   `json:"block_id"`
	Label       string  `json:"label,omitempty"`
	OwnerIDs    []int64 `json:"owner_ids,omitempty"`
}

// MembershipRole grants a role in a community, optionally anchored to one block.
type MembershipRole struct {
	UserID      int64  `json:"user_id"`
	CommunityID int64  `json:"community_id"`
	Role        string `json:"role"`
	BlockID     *int64 `json:"block_id,omitempty"`
}
