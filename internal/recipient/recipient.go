// Package recipient models age public recipients and the named groups
// cage organizes them into for multi-recipient encryption and authority
// auditing.
package recipient

import (
	"fmt"

	"github.com/padlokk/cage/internal/ageerr"
)

// AuthorityTier classifies a recipient group's role in a key hierarchy:
// X (eXecutive/root), M (Master), R (Repo), I (Ignition), D (Distro).
type AuthorityTier rune

const (
	TierExecutive AuthorityTier = 'X'
	TierMaster    AuthorityTier = 'M'
	TierRepo      AuthorityTier = 'R'
	TierIgnition  AuthorityTier = 'I'
	TierDistro    AuthorityTier = 'D'
	TierNone      AuthorityTier = 0
)

func (t AuthorityTier) String() string {
	if t == TierNone {
		return ""
	}
	return string(rune(t))
}

// Group is a named, ordered, duplicate-free list of age recipients with
// an optional authority tier.
type Group struct {
	Name       string
	Tier       AuthorityTier
	Recipients []string
}

// NewGroup constructs an empty group.
func NewGroup(name string, tier AuthorityTier) *Group {
	return &Group{Name: name, Tier: tier}
}

// Add appends a recipient, rejecting duplicates within the group.
func (g *Group) Add(r string) error {
	for _, existing := range g.Recipients {
		if existing == r {
			return ageerr.InvalidOperation("add_recipient", fmt.Sprintf("recipient already present in group %q", g.Name))
		}
	}
	g.Recipients = append(g.Recipients, r)
	return nil
}

// Remove drops a recipient from the group, if present.
func (g *Group) Remove(r string) {
	out := g.Recipients[:0]
	for _, existing := range g.Recipients {
		if existing != r {
			out = append(out, existing)
		}
	}
	g.Recipients = out
}

// MultiRecipientConfig composes a primary group with additional groups
// and governs whether authority hierarchy rules are enforced.
type MultiRecipientConfig struct {
	PrimaryGroup     *Group
	AdditionalGroups []*Group
	ValidateAuthority bool
	EnforceHierarchy  bool
}

// Flatten merges all configured groups' recipients, preserving per-group
// order while de-duplicating across groups.
func (c MultiRecipientConfig) Flatten() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(g *Group) {
		if g == nil {
			return
		}
		for _, r := range g.Recipients {
			if seen[r] {
				continue
			}
			seen[r] = true
			out = append(out, r)
		}
	}
	add(c.PrimaryGroup)
	for _, g := range c.AdditionalGroups {
		add(g)
	}
	return out
}

// AllGroups returns the primary group (if any) followed by the
// additional groups, for iteration in audit/authority reports.
func (c MultiRecipientConfig) AllGroups() []*Group {
	var groups []*Group
	if c.PrimaryGroup != nil {
		groups = append(groups, c.PrimaryGroup)
	}
	groups = append(groups, c.AdditionalGroups...)
	return groups
}
