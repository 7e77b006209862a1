package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	for _, path := range [][]string{
		{"recur", "run"},
		{"outbox", "process-once"},
		{"mail", "verify"},
		{"migrate", "up"},
		{"counter", "init"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestRunDate(t *testing.T) {
	manila, err := time.LoadLocation("Asia/Manila")
	require.NoError(t, err)

	// 17:30 UTC on the 19th is already the 20th in Manila.
	now := time.Date(2024, 3, 19, 17, 30, 0, 0, time.UTC)

	got, err := runDate("", now, manila)
	require.NoError(t, err)
	assert.Equal(t, 20, got.Day())

	got, err = runDate("2024-02-29", now, manila)
	require.NoError(t, err)
	assert.Equal(t, time.February, got.Month())
	assert.Equal(t, 29, got.Day())

	_, err = runDate("2024-02-30", now, manila)
	assert.Error(t, err)

	_, err = runDate("15/03/2024", now, manila)
	assert.Error(t, err)
}
