package fs_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/brewing/pkg/adapters/fs"
	"github.com/aretw0/brewing/pkg/core"
)

func TestSerialize_RoundTrip(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 30, 0, 123456000, time.UTC)
	published := created.Add(time.Hour)

	tests := []struct {
		name string
		spec core.Specification
	}{
		{
			name: "Minimal",
			spec: core.Specification{ID: "a", Name: "Untitled Feature", DateCreated: created, DateUpdated: created},
		},
		{
			name: "Empty Draft",
			spec: core.Specification{ID: "b", Name: "B", DraftContent: core.String(""), DateCreated: created, DateUpdated: created},
		},
		{
			name: "Full",
			spec: core.Specification{
				ID:            "c",
				Emoji:         core.String("🍺"),
				Name:          "Brew: a \"quoted\" name",
				Summary:       core.String("multi\nline summary"),
				Content:       core.String("# Published\n\n---\n\nbody with a fence\n"),
				DraftContent:  core.String("# Draft\n\n---\nstill draft\n"),
				DateCreated:   created,
				DateUpdated:   created,
				DatePublished: &published,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := fs.Serialize(tt.spec)
			require.NoError(t, err)

			got, err := fs.Parse(strings.NewReader(string(data)))
			require.NoError(t, err)
			assert.Equal(t, tt.spec, got)
		})
	}
}

func TestParse_DraftPresence(t *testing.T) {
	missing, err := fs.Parse(strings.NewReader("---\nid: a\nname: A\ndraft: false\n---\n"))
	require.NoError(t, err)
	assert.Nil(t, missing.DraftContent)

	empty, err := fs.Parse(strings.NewReader("---\nid: a\nname: A\ndraft: true\n---\n"))
	require.NoError(t, err)
	require.NotNil(t, empty.DraftContent)
	assert.Equal(t, "", *empty.DraftContent)
}

func TestParse_Tolerance(t *testing.T) {
	t.Run("Windows Line Endings", func(t *testing.T) {
		got, err := fs.Parse(strings.NewReader("---\r\nid: a\r\nname: A\r\ndraft: true\r\n---\r\nhello\r\n"))
		require.NoError(t, err)
		assert.Equal(t, "A", got.Name)
		assert.Equal(t, "hello\n", core.StringValue(got.DraftContent))
	})

	t.Run("Byte Order Mark", func(t *testing.T) {
		got, err := fs.Parse(strings.NewReader("\uFEFF---\nid: a\nname: A\n---\n"))
		require.NoError(t, err)
		assert.Equal(t, "A", got.Name)
	})

	t.Run("Header Only", func(t *testing.T) {
		got, err := fs.Parse(strings.NewReader("---\nname: A\n---"))
		require.NoError(t, err)
		assert.Equal(t, "A", got.Name)
	})
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"No Frontmatter": "# just markdown\n",
		"Unterminated":   "---\nname: A\n",
		"Bad Date":       "---\nname: A\ndate_created: yesterday\n---\n",
		"Bad YAML":       "---\nname: [unclosed\n---\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := fs.Parse(strings.NewReader(input))
			assert.Error(t, err)
		})
	}
}
