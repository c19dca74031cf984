package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kllcore/internal/store"
	"github.com/roach88/kllcore/internal/testutil"
)

const tapInput = `# tap a
press 1
release 1

press 2
release 2
`

// runWith runs the engine over input on a manual clock.
func runWith(t *testing.T, opts *RunOptions, tables, input string) (string, error) {
	t.Helper()
	if opts.RootOptions == nil {
		opts.RootOptions = &RootOptions{Format: "text"}
	}
	opts.TimeSource = testutil.NewManualTime()

	cmd := &cobra.Command{}
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(input))

	err := runEngine(opts, tables, cmd)
	return out.String(), err
}

// recordSession journals tapInput to a fresh database and returns its path.
func recordSession(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "kll.db")
	_, err := runWith(t, &RunOptions{Database: db}, demoTables, tapInput)
	require.NoError(t, err)
	return db
}

func TestRun_PrintsActions(t *testing.T) {
	output, err := runWith(t, &RunOptions{}, demoTables, tapInput)
	require.NoError(t, err)

	assert.Contains(t, output, "a/a hid.keyboard(4) press")
	assert.Contains(t, output, "b/b hid.keyboard(5) press")
	assert.Contains(t, output, "Processed 4 event(s), emitted 2 action(s)")
	assert.NotContains(t, output, "Session:")
}

func TestRun_RejectedLines(t *testing.T) {
	input := "press 1\njump 3\npress 99\nrelease 1\n"
	output, err := runWith(t, &RunOptions{}, demoTables, input)
	require.NoError(t, err)

	assert.Contains(t, output, "Processed 2 event(s), emitted 1 action(s)")
	assert.Contains(t, output, "Rejected 2 input line(s)")
}

func TestRun_LocalScanCodes(t *testing.T) {
	// Board 1 starts at global scan code 32; 0/1 is global 1.
	output, err := runWith(t, &RunOptions{}, demoTables, "press 0/1\nrelease 0/1\npress 7/1\n")
	require.NoError(t, err)

	assert.Contains(t, output, "hid.keyboard(4)")
	assert.Contains(t, output, "Rejected 1 input line(s)")
}

func TestRun_JSON(t *testing.T) {
	output, err := runWith(t, &RunOptions{RootOptions: &RootOptions{Format: "json"}}, demoTables, tapInput)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, demoTables, resp.Data.Tables)
	assert.Len(t, resp.Data.TableHash, 64)
	require.Len(t, resp.Data.Actions, 2)
	assert.Equal(t, "hid.keyboard", resp.Data.Actions[0].Capability)
	assert.Equal(t, []int32{4}, resp.Data.Actions[0].Params)
	assert.Equal(t, int64(4), resp.Data.Stats.EventsProcessed)
}

func TestRun_Journal(t *testing.T) {
	db := filepath.Join(t.TempDir(), "kll.db")
	output, err := runWith(t, &RunOptions{Database: db}, demoTables, tapInput)
	require.NoError(t, err)
	assert.Contains(t, output, "Session: ")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	sess, err := st.LatestSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "demo", sess.TableName)
	assert.Contains(t, output, sess.ID)

	events, err := st.ReadInputEvents(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, events, 4)

	actions, err := st.ReadActions(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "hid.keyboard", actions[0].Name)
}

func TestRun_ConfigSuppliesTables(t *testing.T) {
	abs, err := filepath.Abs(demoTables)
	require.NoError(t, err)
	cfgPath := filepath.Join(t.TempDir(), "kll.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("tables:\n  path: "+abs+"\n"), 0o644))

	output, err := runWith(t, &RunOptions{Config: cfgPath}, "", "press 1\n")
	require.NoError(t, err)
	assert.Contains(t, output, "hid.keyboard(4)")
}

func TestRun_NoTables(t *testing.T) {
	_, err := runWith(t, &RunOptions{}, "", "")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no tables")
}

func TestRun_WatchWithJournal(t *testing.T) {
	db := filepath.Join(t.TempDir(), "kll.db")
	_, err := runWith(t, &RunOptions{Database: db, Watch: true}, demoTables, "")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, statErr := os.Stat(db)
	assert.True(t, os.IsNotExist(statErr), "no database is created")
}

func TestRun_InvalidTables(t *testing.T) {
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs([]string{writeTables(t, badArityTables)})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load tables")
}

func TestRunHelpText(t *testing.T) {
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	assert.Contains(t, cmd.Long, "press 1/4")
	assert.Contains(t, cmd.Long, "--db")
}
