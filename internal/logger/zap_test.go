package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lockd.log")

	log, err := New(Config{
		Level:      "debug",
		Format:     "json",
		Output:     path,
		MaxSizeMB:  1,
		MaxBackups: 1,
	}, SentryConfig{})
	require.NoError(t, err)

	log.With(zap.String("shard", "a")).Info("lock acquired", zap.String("key", "job:7"))
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"lock acquired"`)
	assert.Contains(t, string(data), `"key":"job:7"`)
	assert.Contains(t, string(data), `"shard":"a"`)
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	log, err := New(Config{Level: "loud", Format: "console", Output: "stderr"}, SentryConfig{})
	require.NoError(t, err)

	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
}

func TestFieldsToMap(t *testing.T) {
	fields := []zapcore.Field{
		zap.String("key", "job:7"),
		zap.Int("attempts", 3),
		zap.Float64("ratio", 0.5),
		zap.Bool("locked", true),
		zap.Duration("wait", 1500*time.Millisecond),
		zap.Error(errors.New("shard down")),
	}

	m := fieldsToMap(fields)

	assert.Equal(t, "job:7", m["key"])
	assert.Equal(t, int64(3), m["attempts"])
	assert.Equal(t, 0.5, m["ratio"])
	assert.Equal(t, true, m["locked"])
	assert.Equal(t, "1.5s", m["wait"])
	assert.Equal(t, "shard down", m["error"])
}

func TestSentryCore_WithDoesNotShareFields(t *testing.T) {
	base := newSentryCore(zapcore.InfoLevel).With([]zapcore.Field{zap.String("a", "1")}).(*sentryCore)

	left := base.With([]zapcore.Field{zap.String("b", "2")}).(*sentryCore)
	right := base.With([]zapcore.Field{zap.String("c", "3")}).(*sentryCore)

	assert.Len(t, base.fields, 1)
	assert.Equal(t, "b", left.fields[1].Key)
	assert.Equal(t, "c", right.fields[1].Key)
}
