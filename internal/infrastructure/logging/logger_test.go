package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := New(Config{Level: "info", OutputPaths: []string{path}})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Named("srv").Info("exchange", zap.String("op", "GetServiceHandle"), Code("result", 0xD8E06406))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "exchange", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "srv", entry["logger"])
	assert.Equal(t, "GetServiceHandle", entry["op"])
	assert.Equal(t, "0xD8E06406", entry["result"])
}

func TestLevels(t *testing.T) {
	tests := []struct {
		level   string
		wantErr bool
	}{
		{"debug", false},
		{"warn", false},
		{"ERROR", false},
		{"verbose", true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := New(Config{Level: tt.level, OutputPaths: []string{filepath.Join(t.TempDir(), "log")}})
			if tt.wantErr {
				assert.Error(t, err)
				assert.NotNil(t, NewOrNop(Config{Level: tt.level}))
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestDevelopmentConfig(t *testing.T) {
	cfg := DevelopmentConfig()
	assert.True(t, cfg.Development)
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "console", encodingFormat(cfg.Development))
	assert.Equal(t, "json", encodingFormat(DefaultConfig().Development))
}
