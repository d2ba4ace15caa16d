package logs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitSetsLevel(t *testing.T) {
	Mute()

	require.NoError(t, Init(Options{Level: "debug"}))
	assert.Equal(t, logrus.DebugLevel, L().GetLevel())

	// Unknown levels fall back to info instead of failing startup.
	require.NoError(t, Init(Options{Level: "shouting"}))
	assert.Equal(t, logrus.InfoLevel, L().GetLevel())
}

func TestInitJSONFormat(t *testing.T) {
	Mute()

	require.NoError(t, Init(Options{Level: "info", Format: "json"}))
	_, ok := L().Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok, "formatter should be JSON")
}

func TestInitLogFile(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "meshmap")
	require.NoError(t, Init(Options{Level: "info", File: prefix}))
	t.Cleanup(Mute)

	L().Info("hello")

	name := prefix + "_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestInitBadLogFile(t *testing.T) {
	err := Init(Options{Level: "info", File: filepath.Join(t.TempDir(), "missing", "dir", "log")})
	assert.Error(t, err)
}
