package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	serverIDFile   = ".server_id"
	serverIDPrefix = "azpub-"
)

// GetPersistentServerID returns the id this process reports in logs and health checks.
// An explicit override wins, then the id saved under storagePath, then the hostname.
// A random id is generated and saved as a last resort so restarts keep it.
func GetPersistentServerID(override, storagePath string) string {
	if override != "" {
		return override
	}

	idFile := filepath.Join(storagePath, serverIDFile)
	if data, err := os.ReadFile(idFile); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}

	if host, err := os.Hostname(); err == nil && host != "localhost" {
		if clean := sanitizeHost(host); clean != "" {
			return serverIDPrefix + clean
		}
	}

	id := serverIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if err := os.MkdirAll(storagePath, 0o755); err == nil {
		_ = os.WriteFile(idFile, []byte(id), 0o644)
	}
	return id
}

func sanitizeHost(host string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, host)
}
