package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/khannas43/smart-eligibility/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l := newLogger(domain.LoggingConfig{Level: tt.level, Format: "text"})
			assert.True(t, l.Enabled(ctx, tt.want))
			assert.False(t, l.Enabled(ctx, tt.want-1))
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eligibility.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
repository:
  sqlite_path: `+filepath.Join(dir, "elig.db")+`
scheduler:
  schemes: [OAP]
`), 0o600))

	prev := configFile
	configFile = path
	t.Cleanup(func() { configFile = prev })

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"OAP"}, cfg.Scheduler.Schemes)

	a, err := newApp(context.Background(), cfg, false)
	require.NoError(t, err)
	defer a.close()

	created, err := a.bander.InitializeDefaults(context.Background(), cfg.Scheduler.Schemes)
	require.NoError(t, err)
	assert.Equal(t, []string{"OAP"}, created)
}
