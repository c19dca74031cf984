package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kllcore/internal/ir"
)

func TestTableWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tables.json", "v1")

	var loads atomic.Int32
	w := NewTableWatcher(path, func(p string) (*ir.TableSet, error) {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		loads.Add(1)
		ts := ir.EmptyTableSet()
		ts.Name = string(data)
		return ts, nil
	})
	w.SetDebounce(10 * time.Millisecond)

	var latest atomic.Value
	w.OnChange(func(ts *ir.TableSet) { latest.Store(ts.Name) })

	require.NoError(t, w.Start())
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))

	require.Eventually(t, func() bool {
		name, _ := latest.Load().(string)
		return name == "v2"
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, loads.Load(), int32(1))
}

func TestTableWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tables.json", "{}")

	var calls atomic.Int32
	w := NewTableWatcher(path, func(string) (*ir.TableSet, error) {
		calls.Add(1)
		return ir.EmptyTableSet(), nil
	})
	w.SetDebounce(5 * time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Close()

	writeFile(t, dir, "notes.txt", "hello")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestTableWatcherReportsLoadErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keys.cue", "package kll")

	w := NewTableWatcher(dir, func(string) (*ir.TableSet, error) {
		return nil, errors.New("bad tables")
	})
	w.SetDebounce(5 * time.Millisecond)

	var called atomic.Bool
	w.OnChange(func(*ir.TableSet) { called.Store(true) })

	require.NoError(t, w.Start())
	defer w.Close()

	writeFile(t, dir, "keys.cue", "package kll\nx: 1")

	select {
	case err := <-w.Errors():
		assert.Contains(t, err.Error(), "bad tables")
	case <-time.After(2 * time.Second):
		t.Fatal("expected reload error")
	}
	assert.False(t, called.Load())
}

func TestTableWatcherStartMissingPath(t *testing.T) {
	w := NewTableWatcher(filepath.Join(t.TempDir(), "missing"), nil)
	require.Error(t, w.Start())
	assert.NoError(t, w.Close())
}
