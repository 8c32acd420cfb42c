package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const templateHeader = `# saas-log-collector configuration
#
# Every key may be overridden from the environment with the SAAS_LOG_COLLECTOR_
# prefix, e.g. SAAS_LOG_COLLECTOR_CONNECTION_ACCESS_TOKEN. List keys also accept
# comma-separated strings.
`

// Template renders the default configuration as YAML.
func Template() ([]byte, error) {
	cfg := Default()
	cfg.Connection.Username = "admin"
	cfg.Connection.AccessToken = "<access token>"

	var buf bytes.Buffer
	buf.WriteString(templateHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode template: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode template: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteTemplate writes a sample configuration file. An existing file is never
// overwritten.
func WriteTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	data, err := Template()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return os.WriteFile(path, data, 0600)
}
