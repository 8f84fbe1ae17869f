package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jimsnab/go-cns-console/cnserr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "cns.yaml", `
prefix: net
server_port: 7000
options:
  format: json
  indent: 4
schema:
  "net/nodes/*/port": number
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "net", c.Prefix)
	assert.Equal(t, 7000, c.ServerPort)
	assert.Equal(t, "json", c.Options.Format)
	assert.Equal(t, 4, c.Options.Indent)
	assert.Equal(t, 80, c.Options.Width)
	assert.Equal(t, "number", c.Schema["net/nodes/*/port"])
	assert.Equal(t, DefaultHost, c.Host)
	assert.Equal(t, path, c.Source())
}

func TestLoadJSONC(t *testing.T) {
	path := writeFile(t, "cns.jsonc", `{
  // namespace root
  "prefix": "cfg",
  "resync": false,
}`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "cfg", c.Prefix)
	assert.False(t, c.Resync)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, cnserr.Is(err, cnserr.KindIO))

	_, err = Load(writeFile(t, "cns.toml", "x = 1"))
	assert.True(t, cnserr.Is(err, cnserr.KindFormat))

	_, err = Load(writeFile(t, "bad.json", "{"))
	assert.True(t, cnserr.Is(err, cnserr.KindFormat))
}

func TestResolveFromEnv(t *testing.T) {
	path := writeFile(t, "env.yml", "prefix: fromenv\n")
	t.Setenv(EnvVar, path)

	c, err := Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "fromenv", c.Prefix)

	t.Setenv(EnvVar, "")
	c, err = Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "", c.Prefix)
}

func TestGetSet(t *testing.T) {
	c := Default()
	require.NoError(t, c.Set("PORT", "9000"))
	v, exists := c.Get("port")
	assert.True(t, exists)
	assert.Equal(t, "9000", v)

	err := c.Set("port", "nine")
	assert.True(t, cnserr.Is(err, cnserr.KindTypeMismatch))

	err = c.Set("nope", "1")
	assert.True(t, cnserr.Is(err, cnserr.KindArgument))

	assert.Equal(t, "true", c.Values()["resync"])
	assert.Contains(t, Names(), "data_file")
}

func TestClone(t *testing.T) {
	c := Default()
	c.Schema["a"] = "number"
	cp := c.Clone()
	cp.Schema["b"] = "boolean"
	require.NoError(t, cp.Set("prefix", "other"))

	assert.Len(t, c.Schema, 1)
	assert.Equal(t, "", c.Prefix)
}
