package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/keygate/keygate/internal/apikey"
)

func sampleKeys() []apikey.Record {
	created := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	revoked := created.Add(time.Hour)
	return []apikey.Record{
		{ID: "k-2", UserID: "u-1", Name: "deploy", Prefix: "kg_Zm9vYm", HashedKey: "secret-hash", CreatedAt: created.Add(time.Minute)},
		{ID: "k-1", UserID: "u-1", Name: "ci", Prefix: "kg_YmFyYm", HashedKey: "secret-hash", CreatedAt: created, RevokedAt: &revoked},
	}
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("yml")
	require.NoError(t, err)
	require.Equal(t, FormatYAML, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func TestFormatKeysJSON(t *testing.T) {
	rendered, err := NewFormatter(FormatJSON).FormatKeys(sampleKeys())
	require.NoError(t, err)
	require.NotContains(t, rendered, "secret-hash")

	var views []KeyView
	require.NoError(t, json.Unmarshal([]byte(rendered), &views))
	require.Len(t, views, 2)
	require.Equal(t, "active", views[0].Status)
	require.Equal(t, "revoked", views[1].Status)
	require.NotNil(t, views[1].RevokedAt)
}

func TestFormatKeysYAML(t *testing.T) {
	rendered, err := NewFormatter(FormatYAML).FormatKeys(sampleKeys())
	require.NoError(t, err)

	var views []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(rendered), &views))
	require.Len(t, views, 2)
	require.Equal(t, "deploy", views[0]["name"])
	require.NotContains(t, rendered, "secret-hash")
}

func TestFormatKeysTable(t *testing.T) {
	rendered, err := NewFormatter(FormatTable).FormatKeys(sampleKeys())
	require.NoError(t, err)
	require.Contains(t, rendered, "deploy")
	require.Contains(t, rendered, "revoked")
	require.Contains(t, rendered, "1/2 active")

	markdown, err := NewFormatter(FormatMarkdown).FormatKeys(sampleKeys())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(strings.TrimSpace(markdown), "|"))
}

func TestFormatIssued(t *testing.T) {
	issued := apikey.Issued{Record: sampleKeys()[0], Key: "kg_plaintext"}

	for _, format := range []Format{FormatTable, FormatJSON, FormatYAML} {
		rendered, err := NewFormatter(format).FormatIssued(issued)
		require.NoError(t, err)
		require.Contains(t, rendered, "kg_plaintext", "format %s", format)
		require.NotContains(t, rendered, "secret-hash")
	}
}

func TestFormatLimits(t *testing.T) {
	limits := Limits{
		WindowMs:       60000,
		MaxRequests:    100,
		IdentityHeader: "X-Forwarded-For",
		SweepMode:      "periodic",
		SweepInterval:  30 * time.Second,
		Shards:         32,
	}

	rendered, err := NewFormatter(FormatTable).FormatLimits(limits)
	require.NoError(t, err)
	require.Contains(t, rendered, "1m0s")
	require.Contains(t, rendered, "X-Forwarded-For")

	rendered, err = NewFormatter(FormatJSON).FormatLimits(limits)
	require.NoError(t, err)
	require.Contains(t, rendered, `"max_requests": 100`)
}
