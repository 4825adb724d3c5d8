//go:build cgo

package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/output"
)

func TestKeysCommandsRoundTrip(t *testing.T) {
	dir := isolate(t)
	t.Setenv("KEYGATE_DB_PATH", filepath.Join(dir, "keys.db"))
	t.Setenv("KEYGATE_APIKEY_PEPPER", "pepper")
	t.Cleanup(func() { keysOutput, keysUser, keysName = string(output.FormatTable), "", "" })

	var issued output.IssuedView
	out := run(t, "keys", "issue", "--user", "user-1", "--name", "ci", "--output-format", "json")
	require.NoError(t, json.Unmarshal([]byte(out), &issued))
	require.NotEmpty(t, issued.Key)
	assert.Equal(t, "ci", issued.Name)
	assert.Equal(t, "active", issued.Status)

	var listed []output.KeyView
	out = run(t, "keys", "list", "--user", "user-1", "--output-format", "json")
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, issued.ID, listed[0].ID)

	out = run(t, "keys", "verify", issued.Key, "--output-format", "json")
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "user-1", listed[0].UserID)

	out = run(t, "keys", "revoke", issued.ID, "--user", "user-1")
	assert.Contains(t, out, "revoked "+issued.ID)

	out = run(t, "keys", "list", "--user", "user-1", "--output-format", "json")
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "revoked", listed[0].Status)
}
