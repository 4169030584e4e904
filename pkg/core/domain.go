// Package core holds the domain types and contracts shared by the
// collection and its adapters.
package core

import (
	"fmt"
	"time"
)

// DefaultName is the name given to a specification created without one.
const DefaultName = "Untitled feature"

// DefaultProjectName is the name of a project whose configuration lacks one.
const DefaultProjectName = "Untitled Project"

// Specification is the central entity of the domain.
// It represents a product feature document identified by an ID.
// Content is the published text, DraftContent the working copy edited
// continuously; both are opaque strings.
type Specification struct {
	ID            string     `json:"id"`
	Emoji         *string    `json:"emoji,omitempty"`
	Name          string     `json:"name"`
	Summary       *string    `json:"summary,omitempty"`
	Content       *string    `json:"content,omitempty"`
	DraftContent  *string    `json:"draft_content"`
	DateCreated   time.Time  `json:"date_created"`
	DateUpdated   time.Time  `json:"date_updated"`
	DatePublished *time.Time `json:"date_published,omitempty"`
}

// Clone returns a deep copy. Pointer fields never alias the receiver.
func (s Specification) Clone() Specification {
	c := s
	c.Emoji = cloneString(s.Emoji)
	c.Summary = cloneString(s.Summary)
	c.Content = cloneString(s.Content)
	c.DraftContent = cloneString(s.DraftContent)
	if s.DatePublished != nil {
		t := *s.DatePublished
		c.DatePublished = &t
	}
	return c
}

// Published reports whether the draft matches the published content.
func (s Specification) Published() bool {
	return StringValue(s.DraftContent) == StringValue(s.Content)
}

// Diff lists the names of the fields that differ between a and b.
// Timestamps are compared with time.Time.Equal.
func Diff(a, b Specification) []string {
	var changed []string
	if a.ID != b.ID {
		changed = append(changed, "id")
	}
	if !equalString(a.Emoji, b.Emoji) {
		changed = append(changed, "emoji")
	}
	if a.Name != b.Name {
		changed = append(changed, "name")
	}
	if !equalString(a.Summary, b.Summary) {
		changed = append(changed, "summary")
	}
	if !equalString(a.Content, b.Content) {
		changed = append(changed, "content")
	}
	if !equalString(a.DraftContent, b.DraftContent) {
		changed = append(changed, "draft_content")
	}
	if !a.DateCreated.Equal(b.DateCreated) {
		changed = append(changed, "date_created")
	}
	if !a.DateUpdated.Equal(b.DateUpdated) {
		changed = append(changed, "date_updated")
	}
	if !equalTime(a.DatePublished, b.DatePublished) {
		changed = append(changed, "date_published")
	}
	return changed
}

// String returns a pointer to v.
func String(v string) *string {
	return &v
}

// StringValue dereferences p, returning "" for nil.
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// Project is the configuration of a brewing project.
type Project struct {
	ID        string `json:"id"`
	Onboarded bool   `json:"onboarded"`
	Name      string `json:"name"`
}

// ProjectUpdate is the payload accepted when updating a project.
// A nil Name keeps the current one.
type ProjectUpdate struct {
	Onboarded bool    `json:"onboarded"`
	Name      *string `json:"name,omitempty"`
}

// EventType represents the type of change in a collection.
type EventType string

const (
	EventInsert     EventType = "INSERT"
	EventUpdate     EventType = "UPDATE"
	EventDelete     EventType = "DELETE"
	EventConfirm    EventType = "CONFIRM"
	EventRollback   EventType = "ROLLBACK"
	EventLoad       EventType = "LOAD"
	EventLoadFailed EventType = "LOAD_FAILED"
	// EventExternal is emitted by watchable collaborators when the backing
	// storage changed outside of this process.
	EventExternal EventType = "EXTERNAL"
)

// Event represents a change in a collection.
type Event struct {
	Type    EventType
	ID      string
	Version uint64
	Err     error
	// Timestamp is a Unix timestamp in nanoseconds.
	Timestamp int64
}

func (e Event) String() string {
	if e.ID == "" {
		return fmt.Sprintf("%s v%d", e.Type, e.Version)
	}
	return fmt.Sprintf("%s %s v%d", e.Type, e.ID, e.Version)
}
