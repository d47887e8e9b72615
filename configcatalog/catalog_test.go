package configcatalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "Admin/appsettings.json", `{
  "JwtSecret": "s3cr3t",
  "ConnectionStrings": {"Default": "Host=db;Password=pw"},
  "Logging": {"Level": "Information"}
}`)
	writeFile(t, root, "WebAdminApp/.env", `# comment
VITE_API_URL=https://api.example.com

not a valid line
VITE_SIGNING_KEY=abc=def==
export VITE_MODE="production"
`)
	return New(root, DefaultFiles())
}

func TestEntriesFromViperFile(t *testing.T) {
	c := newTestCatalog(t)

	entries, err := c.Entries(context.Background(), "Admin")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "connectionstrings.default", entries[0].Key)
	assert.Equal(t, "Host=db;Password=pw", entries[0].Value)
	assert.Equal(t, "connectionstrings", entries[0].Category)
	assert.Equal(t, "appsettings.json", entries[0].Source)

	assert.Equal(t, "jwtsecret", entries[1].Key)
	assert.Equal(t, "general", entries[1].Category)
	assert.Equal(t, "logging.level", entries[2].Key)
}

func TestEntriesFromEnvFileSkipsMalformedLines(t *testing.T) {
	c := newTestCatalog(t)

	entries, err := c.Entries(context.Background(), "WebAdminApp")
	require.NoError(t, err)

	got := map[string]string{}
	for _, e := range entries {
		got[e.Key] = e.Value
		assert.Equal(t, ".env", e.Source)
		assert.Equal(t, "environment", e.Category)
	}
	assert.Equal(t, map[string]string{
		"VITE_API_URL":     "https://api.example.com",
		"VITE_SIGNING_KEY": "abc=def==",
		"VITE_MODE":        "production",
	}, got)
}

func TestMissingFilesListEmpty(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	for _, service := range []string{"Library", "WebClientApp", "Unconfigured"} {
		entries, err := c.Entries(ctx, service)
		require.NoError(t, err, service)
		assert.Empty(t, entries, service)
	}
}

func TestLookup(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	v, err := c.Lookup(ctx, "Admin", "JwtSecret")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", v)

	v, err = c.Lookup(ctx, "Admin", "ConnectionStrings:Default")
	require.NoError(t, err)
	assert.Equal(t, "Host=db;Password=pw", v)

	v, err = c.Lookup(ctx, "WebAdminApp", "VITE_SIGNING_KEY")
	require.NoError(t, err)
	assert.Equal(t, "abc=def==", v)

	_, err = c.Lookup(ctx, "WebAdminApp", "vite_signing_key")
	assert.ErrorIs(t, err, goGuard.ErrSecretNotFound)

	_, err = c.Lookup(ctx, "Admin", "Missing")
	assert.ErrorIs(t, err, goGuard.ErrSecretNotFound)

	_, err = c.Lookup(ctx, "Unconfigured", "Anything")
	assert.ErrorIs(t, err, goGuard.ErrSecretNotFound)
}

func TestMalformedViperFileIsAnError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Auth/appsettings.json", `{"broken": `)
	c := New(root, DefaultFiles())

	_, err := c.Entries(context.Background(), "Auth")
	assert.Error(t, err)
}
