package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations_AreGooseFiles(t *testing.T) {
	entries, err := fs.ReadDir(FS(), ".")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for _, e := range entries {
		raw, err := fs.ReadFile(FS(), e.Name())
		require.NoError(t, err)
		body := string(raw)
		require.True(t, strings.HasPrefix(body, "-- +goose Up"), e.Name())
		require.Contains(t, body, "-- +goose Down", e.Name())
	}
}

func TestEmbeddedMigrations_CoverModerationTables(t *testing.T) {
	var all strings.Builder
	entries, err := fs.ReadDir(FS(), ".")
	require.NoError(t, err)
	for _, e := range entries {
		raw, err := fs.ReadFile(FS(), e.Name())
		require.NoError(t, err)
		all.Write(raw)
	}
	for _, table := range []string{
		"establishments", "profile_drafts", "profile_draft_changes", "profile_change_logs",
		"moderation_queue", "audit_logs", "user_notifications",
	} {
		require.Contains(t, all.String(), "CREATE TABLE "+table+" (")
	}
}
