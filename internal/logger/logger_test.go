package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSONWithService(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")

	l, err := New(Config{Level: "debug", OutputPaths: []string{path}}, "ship-api")
	require.NoError(t, err)
	l.Debug("hello")
	_ = l.Sync()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `"service":"ship-api"`)
	require.Contains(t, string(b), `"msg":"hello"`)
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"}, "")
	require.Error(t, err)
}

func TestConfig_SetDefaults(t *testing.T) {
	var c Config
	c.SetDefaults()
	require.Equal(t, "info", c.Level)
	require.Equal(t, "json", c.Format)
	require.Equal(t, []string{"stdout"}, c.OutputPaths)
}
