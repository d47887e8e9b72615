package configcatalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Catalog maps service names to configuration files.
type Catalog struct {
	files map[string]string
}

var _ goGuard.ConfigCatalog = (*Catalog)(nil)

// New returns a Catalog. Relative paths in files are resolved against root.
func New(root string, files map[string]string) *Catalog {
	c := &Catalog{files: make(map[string]string, len(files))}
	for service, path := range files {
		if !filepath.IsAbs(path) && root != "" {
			path = filepath.Join(root, path)
		}
		c.files[service] = path
	}
	return c
}

// DefaultFiles is the conventional layout of the supported services under
// one root directory.
func DefaultFiles() map[string]string {
	return map[string]string{
		"WebAdminApp":  "WebAdminApp/.env",
		"WebClientApp": "WebClientApp/.env",
		"Admin":        "Admin/appsettings.json",
		"Library":      "Library/appsettings.json",
		"Assets":       "Assets/appsettings.json",
		"Media":        "Media/appsettings.json",
		"Game":         "Game/appsettings.json",
		"Auth":         "Auth/appsettings.json",
	}
}

// Entries lists every key of service sorted by key. Values are returned
// as stored; redaction is the caller's job.
func (c *Catalog) Entries(_ context.Context, service string) ([]goGuard.ConfigEntry, error) {
	path, ok := c.files[service]
	if !ok {
		return []goGuard.ConfigEntry{}, nil
	}
	values, err := load(path)
	if err != nil {
		return nil, err
	}

	source := filepath.Base(path)
	out := make([]goGuard.ConfigEntry, 0, len(values))
	for key, value := range values {
		out = append(out, goGuard.ConfigEntry{
			Key:      key,
			Value:    value,
			Source:   source,
			Category: category(path, key),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Lookup returns one value. Keys of viper files may use ':' or '.' as the
// section separator.
func (c *Catalog) Lookup(_ context.Context, service, key string) (string, error) {
	path, ok := c.files[service]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", goGuard.ErrSecretNotFound, service, key)
	}
	values, err := load(path)
	if err != nil {
		return "", err
	}

	if v, ok := values[key]; ok {
		return v, nil
	}
	if !isEnvFile(path) {
		if v, ok := values[normalizeKey(key)]; ok {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s/%s", goGuard.ErrSecretNotFound, service, key)
}

func load(path string) (map[string]string, error) {
	if isEnvFile(path) {
		return readEnvFile(path)
	}
	return readViperFile(path)
}

func isEnvFile(path string) bool {
	base := filepath.Base(path)
	return base == ".env" || strings.HasPrefix(base, ".env.") || filepath.Ext(base) == ".env"
}

func readViperFile(path string) (map[string]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	out := make(map[string]string)
	for _, key := range v.AllKeys() {
		out[key] = v.GetString(key)
	}
	return out, nil
}

var envLine = regexp.MustCompile(`^(export\s+)?[A-Za-z_][A-Za-z0-9_.]*\s*=`)

// readEnvFile keeps blank lines, comments and KEY=value lines and drops
// everything else before handing the text to godotenv.
func readEnvFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	var kept strings.Builder
	for _, line := range strings.Split(string(raw), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || envLine.MatchString(trimmed) {
			kept.WriteString(trimmed)
			kept.WriteByte('\n')
		}
	}

	values, err := godotenv.Unmarshal(kept.String())
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return values, nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, ":", "."))
}

func category(path, key string) string {
	if isEnvFile(path) {
		return "environment"
	}
	if i := strings.IndexByte(key, '.'); i > 0 {
		return key[:i]
	}
	return "general"
}
