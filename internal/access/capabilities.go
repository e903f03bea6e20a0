// Package access resolves callers into community-scoped capabilities.
package access

import (
	"fmt"
	"sort"
	"strings"
)

// Capability is a single permission tested by authorization checks.
type Capability uint8

const (
	CanBookOwn Capability = 1 << iota
	CanRepresentBlock
	CanAdminister
)

var capabilityNames = map[Capability]string{
	CanBookOwn:        "book_own",
	CanRepresentBlock: "represent_block",
	CanAdminister:     "administer",
}

func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("capability(%d)", uint8(c))
}

// ParseCapability maps a configuration name to a capability.
func ParseCapability(name string) (Capability, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for c, n := range capabilityNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown capability %q", name)
}

// CapabilitySet is a bitmask of capabilities.
type CapabilitySet uint8

// NewCapabilitySet returns a set holding caps.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	var s CapabilitySet
	for _, c := range caps {
		s |= CapabilitySet(c)
	}
	return s
}

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	return s&CapabilitySet(c) != 0
}

// Union returns s ∪ o.
func (s CapabilitySet) Union(o CapabilitySet) CapabilitySet {
	return s | o
}

func (s CapabilitySet) String() string {
	var names []string
	for c, n := range capabilityNames {
		if s.Has(c) {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// Role names known out of the box.
const (
	RoleAdmin          = "admin"
	RoleRepresentative = "representative"
	RoleResident       = "resident"
	RoleOwner          = "owner"
	RoleTenant         = "tenant"
)

// RoleTable maps role names to the capabilities they grant.
type RoleTable map[string]CapabilitySet

// DefaultRoles returns the built-in role table.
func DefaultRoles() RoleTable {
	return RoleTable{
		RoleAdmin:          NewCapabilitySet(CanAdminister, CanRepresentBlock, CanBookOwn),
		RoleRepresentative: NewCapabilitySet(CanRepresentBlock, CanBookOwn),
		RoleResident:       NewCapabilitySet(CanBookOwn),
		RoleOwner:          NewCapabilitySet(CanBookOwn),
		RoleTenant:         NewCapabilitySet(CanBookOwn),
	}
}

// RolesFromConfig overlays configured roles on top of the defaults.
// A configured role replaces the default entry of the same name.
func RolesFromConfig(cfg map[string][]string) (RoleTable, error) {
	table := DefaultRoles()
	for role, caps := range cfg {
		var set CapabilitySet
		for _, name := range caps {
			c, err := ParseCapability(name)
			if err != nil {
				return nil, fmt.Errorf("role %q: %w", role, err)
			}
			set |= CapabilitySet(c)
		}
		table[normalizeRole(role)] = set
	}
	return table, nil
}

// Capabilities returns the capabilities of role. Unknown roles grant nothing.
func (t RoleTable) Capabilities(role string) CapabilitySet {
	return t[normalizeRole(role)]
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
