package fs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/brewing/pkg/core"
)

// frontmatter is the YAML header of a specification file. The body of the
// file holds the draft; Draft tells an empty draft from a missing one.
type frontmatter struct {
	ID            string  `yaml:"id"`
	Emoji         *string `yaml:"emoji,omitempty"`
	Name          string  `yaml:"name"`
	Summary       *string `yaml:"summary,omitempty"`
	Content       *string `yaml:"content,omitempty"`
	Draft         bool    `yaml:"draft"`
	DateCreated   string  `yaml:"date_created"`
	DateUpdated   string  `yaml:"date_updated"`
	DatePublished string  `yaml:"date_published,omitempty"`
}

var (
	fence    = []byte("---\n")
	fenceEnd = []byte("\n---\n")
)

var errNoFrontmatter = errors.New("missing frontmatter")

// Serialize renders spec as Markdown with a YAML frontmatter.
func Serialize(spec core.Specification) ([]byte, error) {
	fm := frontmatter{
		ID:          spec.ID,
		Emoji:       spec.Emoji,
		Name:        spec.Name,
		Summary:     spec.Summary,
		Content:     spec.Content,
		Draft:       spec.DraftContent != nil,
		DateCreated: formatTime(spec.DateCreated),
		DateUpdated: formatTime(spec.DateUpdated),
	}
	if spec.DatePublished != nil {
		fm.DatePublished = formatTime(*spec.DatePublished)
	}

	var buf bytes.Buffer
	buf.Write(fence)
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(fm); err != nil {
		return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	buf.Write(fence)
	buf.WriteString(core.StringValue(spec.DraftContent))
	return buf.Bytes(), nil
}

// Parse reads a specification file written by Serialize. Windows line
// endings in the header are tolerated.
func Parse(r io.Reader) (core.Specification, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Specification{}, err
	}
	data = bytes.TrimPrefix(data, []byte("\uFEFF"))

	header, body, err := split(data)
	if err != nil {
		return core.Specification{}, err
	}

	var fm frontmatter
	if err := yaml.Unmarshal(header, &fm); err != nil {
		return core.Specification{}, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	spec := core.Specification{
		ID:      fm.ID,
		Emoji:   fm.Emoji,
		Name:    fm.Name,
		Summary: fm.Summary,
		Content: fm.Content,
	}
	if fm.Draft {
		spec.DraftContent = core.String(string(body))
	}
	if spec.DateCreated, err = parseTime(fm.DateCreated); err != nil {
		return core.Specification{}, fmt.Errorf("invalid date_created: %w", err)
	}
	if spec.DateUpdated, err = parseTime(fm.DateUpdated); err != nil {
		return core.Specification{}, fmt.Errorf("invalid date_updated: %w", err)
	}
	if fm.DatePublished != "" {
		published, err := parseTime(fm.DatePublished)
		if err != nil {
			return core.Specification{}, fmt.Errorf("invalid date_published: %w", err)
		}
		spec.DatePublished = &published
	}
	return spec, nil
}

func split(data []byte) (header, body []byte, err error) {
	normalized := data
	if bytes.HasPrefix(data, []byte("---\r\n")) {
		normalized = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	}
	if !bytes.HasPrefix(normalized, fence) {
		return nil, nil, errNoFrontmatter
	}

	rest := normalized[len(fence):]
	if bytes.HasPrefix(rest, fence) {
		return nil, rest[len(fence):], nil
	}
	i := bytes.Index(rest, fenceEnd)
	if i < 0 {
		if bytes.HasSuffix(rest, []byte("\n---")) {
			return rest[:len(rest)-4], nil, nil
		}
		return nil, nil, errors.New("frontmatter started but no closing delimiter found")
	}
	return rest[:i+1], rest[i+len(fenceEnd):], nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
