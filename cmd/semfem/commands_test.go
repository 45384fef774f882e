package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/notargets/SEMFEM/config"
	"github.com/notargets/SEMFEM/semfem"
)

func TestConfigCommandPrintsDefaults(t *testing.T) {
	var out bytes.Buffer
	configCmd.SetOut(&out)
	require.NoError(t, configCmd.RunE(configCmd, nil))

	cfg, err := config.Parse(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestNewLoggerFormat(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Format = "json"
	var buf bytes.Buffer
	logger, err := newLogger(cfg, &buf)
	require.NoError(t, err)
	logger.Info("hello", "rank", 0)
	assert.True(t, strings.HasPrefix(buf.String(), "{"))

	cfg.Log.Level = "debug"
	cfg.Log.Format = "text"
	buf.Reset()
	logger, err = newLogger(cfg, &buf)
	require.NoError(t, err)
	logger.Debug("visible")
	assert.Contains(t, buf.String(), "msg=visible")
}

func TestWriteTriplets(t *testing.T) {
	cfg := config.Default()
	cfg.Ranks = 2
	cfg.Mesh.Elements = [3]int{2, 1, 1}
	cfg.Mesh.Order = 3
	results, err := semfem.Run(context.Background(), cfg, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "A.txt")
	require.NoError(t, writeTriplets(path, results))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, int(results[0].NNZ+results[1].NNZ))
}

func TestDefaultConfigYAMLKeys(t *testing.T) {
	data, err := yaml.Marshal(config.Default())
	require.NoError(t, err)
	for _, key := range []string{"ranks:", "scratch_bytes:", "allow_degenerate:", "partitioning:"} {
		assert.Contains(t, string(data), key)
	}
}
