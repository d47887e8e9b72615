// Package configcatalog is a goGuard.ConfigCatalog over configuration files
// on disk. Backend services are read with viper (JSON, YAML or TOML, nested
// keys flattened with dots and matched case-insensitively); frontend apps
// are read from .env files with godotenv.
//
// Files are read on every call so edits show up without a restart. A
// configured file that does not exist lists as empty.
package configcatalog
