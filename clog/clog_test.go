package clog

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, level string) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := New(&Config{Level: level, Format: "json"}, WithWriter(&buf), WithNamespace("shardproxy"))
	require.NoError(t, err)
	return logger, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "empty config gets defaults", cfg: Config{}},
		{name: "json format", cfg: Config{Level: "warn", Format: "json"}},
		{name: "bad level", cfg: Config{Level: "verbose"}, wantErr: true},
		{name: "bad format", cfg: Config{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, tt.cfg.Level)
			assert.NotEmpty(t, tt.cfg.Format)
			assert.NotEmpty(t, tt.cfg.Output)
		})
	}
}

func TestLoggerNamespaceAndFields(t *testing.T) {
	logger, buf := newBufferLogger(t, "info")

	hb := logger.WithNamespace("heartbeat").With(String("instance", "c0-master"))
	hb.Warn("replication delay", Int64("seconds_behind_master", 12), Error(errors.New("boom")))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shardproxy.heartbeat", lines[0][NamespaceKey])
	assert.Equal(t, "c0-master", lines[0]["instance"])
	assert.Equal(t, float64(12), lines[0]["seconds_behind_master"])
	assert.Equal(t, "boom", lines[0]["err_msg"])
	assert.Equal(t, "WARN", lines[0]["level"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(t, "warn")

	logger.Info("hidden")
	logger.Error("shown", Error(nil))
	require.Len(t, decodeLines(t, buf), 1)

	logger.SetLevel(DebugLevel)
	logger.Debug("now visible")
	assert.Len(t, decodeLines(t, buf), 2)
}

func TestParseLevel(t *testing.T) {
	lv, err := ParseLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, lv)
	assert.Equal(t, "warn", lv.String())

	_, err = ParseLevel("trace")
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	l := Discard()
	assert.NotPanics(t, func() {
		l.WithNamespace("x").With(String("k", "v")).Error("ignored")
		l.SetLevel(ErrorLevel)
	})
}
