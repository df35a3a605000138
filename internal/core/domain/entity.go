package domain

import (
	"strings"
	"time"
)

// EntityType classifies an entity card.
type EntityType string

// Supported entity types.
const (
	EntityCharacter EntityType = "character"
	EntitySetting   EntityType = "setting"
)

// ParseEntityType normalises a front-matter value into an EntityType.
// The second return value is false for anything outside the allowed set.
func ParseEntityType(s string) (EntityType, bool) {
	switch t := EntityType(strings.ToLower(strings.TrimSpace(s))); t {
	case EntityCharacter, EntitySetting:
		return t, true
	default:
		return "", false
	}
}

// IsValid returns true if the entity type is recognised.
func (t EntityType) IsValid() bool {
	return t == EntityCharacter || t == EntitySetting
}

// String returns the string representation.
func (t EntityType) String() string {
	return string(t)
}

// EntityCard is a denormalised character or setting record.
// At most one card exists per SourceArticleID.
type EntityCard struct {
	// ID is "{type}:{name}".
	ID string

	Type EntityType
	Name string

	// Aliases is de-duplicated and never contains empty strings.
	Aliases []string

	// Content is the name followed by the article body; it is the embedding source.
	Content string

	SourceArticleID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntityCardID builds the canonical card id for a type and name.
func EntityCardID(t EntityType, name string) string {
	return string(t) + ":" + name
}

// Names returns the card name followed by its aliases.
func (c *EntityCard) Names() []string {
	names := make([]string, 0, len(c.Aliases)+1)
	names = append(names, c.Name)
	names = append(names, c.Aliases...)
	return names
}
