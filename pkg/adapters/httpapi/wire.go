package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/brewing/pkg/core"
)

// feature is the wire form of a specification.
type feature struct {
	ID            string     `json:"id,omitempty"`
	Emoji         *string    `json:"emoji,omitempty"`
	Name          string     `json:"name"`
	Summary       *string    `json:"summary"`
	Content       *string    `json:"content"`
	DraftContent  *string    `json:"draft_content"`
	DateCreated   *timestamp `json:"date_created,omitempty"`
	DateUpdated   *timestamp `json:"date_updated,omitempty"`
	DatePublished *timestamp `json:"date_published,omitempty"`
}

func fromDomain(s core.Specification) feature {
	return feature{
		ID:            s.ID,
		Emoji:         s.Emoji,
		Name:          s.Name,
		Summary:       s.Summary,
		Content:       s.Content,
		DraftContent:  s.DraftContent,
		DateCreated:   stamp(s.DateCreated),
		DateUpdated:   stamp(s.DateUpdated),
		DatePublished: stampPtr(s.DatePublished),
	}
}

func (f feature) toDomain() core.Specification {
	s := core.Specification{
		ID:           f.ID,
		Emoji:        f.Emoji,
		Name:         f.Name,
		Summary:      f.Summary,
		Content:      f.Content,
		DraftContent: f.DraftContent,
	}
	if f.DateCreated != nil {
		s.DateCreated = f.DateCreated.Time
	}
	if f.DateUpdated != nil {
		s.DateUpdated = f.DateUpdated.Time
	}
	if f.DatePublished != nil && !f.DatePublished.IsZero() {
		t := f.DatePublished.Time
		s.DatePublished = &t
	}
	return s
}

// timestamp accepts RFC 3339 and timezone-less ISO 8601 values. The latter
// are what the API emits and are read as UTC.
type timestamp struct {
	time.Time
}

const naiveLayout = "2006-01-02T15:04:05"

func stamp(t time.Time) *timestamp {
	if t.IsZero() {
		return nil
	}
	return &timestamp{t}
}

func stampPtr(t *time.Time) *timestamp {
	if t == nil {
		return nil
	}
	return stamp(*t)
}

func (t timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		// Fractional seconds are accepted even though the layout lacks them.
		if parsed, err = time.ParseInLocation(naiveLayout, s, time.UTC); err != nil {
			return fmt.Errorf("invalid timestamp %q", s)
		}
	}
	t.Time = parsed
	return nil
}
