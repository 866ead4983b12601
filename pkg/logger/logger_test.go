package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitLevels(t *testing.T) {
	t.Cleanup(func() { Replace(nil) })

	require.NoError(t, Init(Options{Level: "DEBUG"}))
	require.True(t, Logger().Core().Enabled(zap.DebugLevel))

	require.NoError(t, Init(Options{Level: "warn", Format: "console"}))
	require.False(t, Logger().Core().Enabled(zap.InfoLevel))

	require.NoError(t, Init(Options{}))
	require.True(t, Logger().Core().Enabled(zap.InfoLevel))
	require.False(t, Logger().Core().Enabled(zap.DebugLevel))
}

func TestInitRejectsUnknownSettings(t *testing.T) {
	t.Cleanup(func() { Replace(nil) })

	require.ErrorContains(t, Init(Options{Level: "loud"}), "unknown level")
	require.ErrorContains(t, Init(Options{Format: "xml"}), "unknown format")
}

func TestReplaceNilRestoresNop(t *testing.T) {
	Replace(nil)
	require.NotNil(t, Logger())
	require.NoError(t, Sync())
}

func TestWithModuleAttachesModuleField(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	t.Cleanup(func() { Replace(nil) })
	Replace(zap.New(core))

	WithModule("sync").Info("media synced", zap.Int("count", 3))

	entries := recorded.All()
	require.Len(t, entries, 1)
	require.Equal(t, "sync", entries[0].ContextMap()["module"])
	require.EqualValues(t, 3, entries[0].ContextMap()["count"])
}
