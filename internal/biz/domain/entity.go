package domain

import (
	"fmt"
	"strings"
)

// Scope represents the kind of conversation an entity covers
type Scope string

const (
	ScopeGroup   Scope = "group"
	ScopePrivate Scope = "private"
)

// EntityKey identifies a conversation scope. All per-conversation state is partitioned by it.
type EntityKey struct {
	Scope Scope
	ID    string
}

// GroupKey builds a key for a server-wide conversation
func GroupKey(id string) EntityKey {
	return EntityKey{Scope: ScopeGroup, ID: id}
}

// PrivateKey builds a key for a one-to-one conversation
func PrivateKey(id string) EntityKey {
	return EntityKey{Scope: ScopePrivate, ID: id}
}

// IsGroup checks if this key addresses a group conversation
func (k EntityKey) IsGroup() bool {
	return k.Scope == ScopeGroup
}

func (k EntityKey) String() string {
	return string(k.Scope) + ":" + k.ID
}

// ParseEntityKey parses the "scope:id" form produced by String
func ParseEntityKey(s string) (EntityKey, error) {
	scope, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return EntityKey{}, fmt.Errorf("invalid entity key %q", s)
	}
	switch Scope(scope) {
	case ScopeGroup, ScopePrivate:
		return EntityKey{Scope: Scope(scope), ID: id}, nil
	}
	return EntityKey{}, fmt.Errorf("invalid entity scope %q", scope)
}
