package repo

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the repository-local configuration stored in config.toml.
type Config struct {
	Core    CoreConfig              `toml:"core"`
	User    UserConfig              `toml:"user,omitempty"`
	Remotes map[string]RemoteConfig `toml:"remotes,omitempty"`
}

// CoreConfig holds repository layout settings.
type CoreConfig struct {
	Bare          bool   `toml:"bare"`
	DefaultBranch string `toml:"default_branch,omitempty"`
}

// UserConfig is the default identity for new commits.
type UserConfig struct {
	Name  string `toml:"name,omitempty"`
	Email string `toml:"email,omitempty"`
}

// RemoteConfig describes a named remote.
type RemoteConfig struct {
	URL string `toml:"url"`
}

func (r *Repo) configPath() string {
	return r.gitPath("config.toml")
}

func (r *Repo) readConfigFile() (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(r.configPath(), &cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if cfg.Remotes == nil {
		cfg.Remotes = make(map[string]RemoteConfig)
	}
	return &cfg, nil
}

// ReadConfig reads config.toml. A missing file returns an empty config.
func (r *Repo) ReadConfig() (*Config, error) {
	cfg, err := r.readConfigFile()
	if errors.Is(err, fs.ErrNotExist) {
		return &Config{Core: CoreConfig{Bare: r.Bare}, Remotes: make(map[string]RemoteConfig)}, nil
	}
	return cfg, err
}

// WriteConfig atomically writes config.toml.
func (r *Repo) WriteConfig(cfg *Config) error {
	if cfg == nil {
		cfg = &Config{}
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("write config: encode: %w", err)
	}
	if err := writeFileAtomic(r.GitDir, r.configPath(), buf.Bytes()); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SetRemote stores or updates a named remote URL.
func (r *Repo) SetRemote(name, remoteURL string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("set remote: remote name is required")
	}
	remoteURL = strings.TrimSpace(remoteURL)
	if remoteURL == "" {
		return fmt.Errorf("set remote: remote URL is required")
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	cfg.Remotes[name] = RemoteConfig{URL: remoteURL}
	return r.WriteConfig(cfg)
}

// RemoteURL returns the configured URL for the given remote name.
func (r *Repo) RemoteURL(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("remote name is required")
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		return "", err
	}
	rc, ok := cfg.Remotes[name]
	if !ok || strings.TrimSpace(rc.URL) == "" {
		return "", fmt.Errorf("remote %q is not configured", name)
	}
	return rc.URL, nil
}

// writeFileAtomic writes data to a temp file in dir and renames it to path.
func writeFileAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-tmp-*")
	if err != nil {
		return fmt.Errorf("tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
