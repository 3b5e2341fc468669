package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// FileConfig is the on-disk client configuration. Flags win over it.
type FileConfig struct {
	Database        string `toml:"database"`
	EventsURL       string `toml:"events_url"`
	CertificatesURL string `toml:"certificates_url"`
	Token           string `toml:"token"`
	Timeout         string `toml:"timeout"`
	WatchInterval   string `toml:"watch_interval"`
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "certhub-offline.toml"
	}
	return filepath.Join(dir, "certhub", "offline.toml")
}

func defaultDatabasePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "certhub-offline.db"
	}
	return filepath.Join(dir, "certhub", "offline.db")
}

// loadFileConfig reads path. A missing file yields the zero config unless
// the path was given explicitly.
func loadFileConfig(path string, explicit bool) (FileConfig, error) {
	var cfg FileConfig

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
