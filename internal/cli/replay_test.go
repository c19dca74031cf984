package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kllcore/internal/store"
)

func replayCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	cmd := NewReplayCommand(&RootOptions{Format: format})
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestReplay_MissingDatabaseFlag(t *testing.T) {
	_, err := replayCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestReplay_DatabaseNotFound(t *testing.T) {
	_, err := replayCommand(t, "text", "--db", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}

func TestReplay_EmptyDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(db)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	output, err := replayCommand(t, "text", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, output, "No sessions found in database.")
}

func TestReplay_Match(t *testing.T) {
	db := recordSession(t)

	output, err := replayCommand(t, "text", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, output, "Replay Summary: 1 session(s)")
	assert.Contains(t, output, "✓ Session: ")
	assert.Contains(t, output, "(demo)")
	assert.Contains(t, output, "actions: 2")
	assert.Contains(t, output, "✓ All sessions replayed identically")
}

func TestReplay_JSON(t *testing.T) {
	db := recordSession(t)

	output, err := replayCommand(t, "json", "--db", db)
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.AllMatch)
	require.Len(t, resp.Data.Sessions, 1)

	s := resp.Data.Sessions[0]
	assert.True(t, s.Match)
	assert.Equal(t, -1, s.Divergence)
	assert.Equal(t, s.ExpectedHash, s.ActualHash)
}

func TestReplay_Divergence(t *testing.T) {
	db := recordSession(t)

	st, err := store.Open(db)
	require.NoError(t, err)
	_, err = st.DB().Exec(`UPDATE actions SET params = '[5]' WHERE params = '[4]'`)
	require.NoError(t, err)
	sess, err := st.LatestSession(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	output, err := replayCommand(t, "text", "--db", db, "--session", sess.ID)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, output, "✗ Session: "+sess.ID)
	assert.Contains(t, output, "Diverged at action 0")
	assert.Contains(t, output, "recorded: ")
	assert.Contains(t, output, "hid.keyboard(5)")
	assert.Contains(t, output, "replayed: ")
	assert.Contains(t, output, "hid.keyboard(4)")

	output, err = replayCommand(t, "json", "--db", db)
	require.Error(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeDivergence, resp.Error.Code)
}

func TestReplay_UnknownSession(t *testing.T) {
	db := recordSession(t)

	_, err := replayCommand(t, "text", "--db", db, "--session", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
