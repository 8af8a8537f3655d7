package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruslano69/ezsearch/pkg/audit"
)

// closeRecorder is an audit appender that records Close
type closeRecorder struct {
	closed bool
}

func (c *closeRecorder) Append(ctx context.Context, entry *audit.Entry) error { return nil }

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func withFileAppender(t *testing.T, a audit.Appender) {
	t.Helper()
	prev := newFileAppender
	newFileAppender = func(audit.FileAppenderConfig) (audit.Appender, error) { return a, nil }
	t.Cleanup(func() { newFileAppender = prev })
}

func TestBuildAudit_ClosesAppendersOnFailure(t *testing.T) {
	file := &closeRecorder{}
	withFileAppender(t, file)

	app := &App{
		Config: &Config{Audit: AuditConfig{
			Enabled: true,
			Level:   "standard",
			File:    filepath.Join(t.TempDir(), "audit.log"),
			Database: &DatabaseConfig{
				Type:     "sqlite",
				Database: filepath.Join(t.TempDir(), "missing", "dir", "audit.db"),
			},
		}},
		Logger: zerolog.Nop(),
	}

	_, err := app.buildAudit(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit database appender")
	assert.True(t, file.closed)
	assert.Empty(t, app.closers)
}

func TestBuildAudit_KeepsAppendersOnSuccess(t *testing.T) {
	file := &closeRecorder{}
	withFileAppender(t, file)

	app := &App{
		Config: &Config{Audit: AuditConfig{
			Enabled: true,
			Level:   "standard",
			File:    filepath.Join(t.TempDir(), "audit.log"),
		}},
		Logger: zerolog.Nop(),
	}

	logger, err := app.buildAudit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.False(t, file.closed)
	require.Len(t, app.closers, 1)

	require.NoError(t, app.closers[0]())
	assert.True(t, file.closed)
}
