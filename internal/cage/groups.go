package cage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/padlokk/cage/internal/ageerr"
	"github.com/padlokk/cage/internal/audit"
	"github.com/padlokk/cage/internal/recipient"
)

// GroupStore is the coordinator's named recipient-group registry. It
// satisfies keygen.GroupRegistry so a generated key can be registered
// directly into a group.
type GroupStore struct {
	groups map[string]*recipient.Group
}

// NewGroupStore constructs an empty store.
func NewGroupStore() *GroupStore {
	return &GroupStore{groups: make(map[string]*recipient.Group)}
}

// CreateGroup registers a new, empty group with the given authority tier.
func (s *GroupStore) CreateGroup(name string, tier recipient.AuthorityTier) (*recipient.Group, error) {
	if _, exists := s.groups[name]; exists {
		return nil, ageerr.ConfigurationError("recipient_group", name, "group already exists")
	}
	g := recipient.NewGroup(name, tier)
	s.groups[name] = g
	return g, nil
}

// GroupExists reports whether name has been created.
func (s *GroupStore) GroupExists(name string) bool {
	_, ok := s.groups[name]
	return ok
}

// Get returns the named group, or nil if it does not exist.
func (s *GroupStore) Get(name string) *recipient.Group {
	return s.groups[name]
}

// List returns all group names, sorted.
func (s *GroupStore) List() []string {
	names := make([]string, 0, len(s.groups))
	for name := range s.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddToGroup appends recipientStr to the named group. Satisfies
// keygen.GroupRegistry.
func (s *GroupStore) AddToGroup(name, recipientStr string) error {
	g, ok := s.groups[name]
	if !ok {
		return ageerr.ConfigurationError("recipient_group", name, "no such recipient group")
	}
	return g.Add(recipientStr)
}

// RemoveFromGroup drops a recipient from the named group.
func (s *GroupStore) RemoveFromGroup(name, recipientStr string) error {
	g, ok := s.groups[name]
	if !ok {
		return ageerr.ConfigurationError("recipient_group", name, "no such recipient group")
	}
	g.Remove(recipientStr)
	return nil
}

// AuditReport renders a text report of every group, its authority tier,
// and a stable hash of its recipients — never the raw recipient strings
// of another group's membership boundary, matching the audit logger's
// redaction posture for recipient lists.
func (s *GroupStore) AuditReport() string {
	var b strings.Builder
	for _, name := range s.List() {
		g := s.groups[name]
		fmt.Fprintf(&b, "group=%s tier=%s recipients=%d hash=%s\n",
			g.Name, g.Tier.String(), len(g.Recipients), audit.HashRecipients(g.Recipients))
	}
	return b.String()
}
