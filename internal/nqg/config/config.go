// Package config resolves the daemon configuration. Defaults are
// overridden by an optional YAML file which is overridden by environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// DataDir is where machine directories are created by default.
	// Environment variable: NQG_DATA_DIR. Default: ~/.nqg/vms
	DataDir string `yaml:"data_dir"`

	// IndexPath is the JSON index of machine directories.
	// Environment variable: NQG_INDEX_PATH. Default: ~/.nqg/vms_index.json
	IndexPath string `yaml:"index_path"`

	// Address is the API listen address.
	// Environment variable: NQG_ADDRESS. Default: 127.0.0.1:7777
	Address string `yaml:"address"`

	// QemuPath is the hypervisor binary.
	// Environment variable: NQG_QEMU_PATH. Default: qemu-system-x86_64
	QemuPath string `yaml:"qemu_path"`

	// QemuImgPath is the disk image tool binary.
	// Environment variable: NQG_QEMU_IMG_PATH. Default: qemu-img
	QemuImgPath string `yaml:"qemu_img_path"`

	// SwtpmPath is the TPM emulator binary.
	// Environment variable: NQG_SWTPM_PATH. Default: swtpm
	SwtpmPath string `yaml:"swtpm_path"`

	// OVMFSearchDirs are probed in order for host firmware images.
	// Environment variable: NQG_OVMF_DIRS (colon separated).
	OVMFSearchDirs []string `yaml:"ovmf_search_dirs"`
}

// New resolves the configuration. The YAML file is looked up at
// NQG_CONFIG, then ~/.nqg/config.yaml; a missing file is fine.
func New() (*Config, error) {
	cfg := defaults()

	if path := configFilePath(); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	base := filepath.Join(".", ".nqg")
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, ".nqg")
	}
	return &Config{
		DataDir:     filepath.Join(base, "vms"),
		IndexPath:   filepath.Join(base, "vms_index.json"),
		Address:     "127.0.0.1:7777",
		QemuPath:    "qemu-system-x86_64",
		QemuImgPath: "qemu-img",
		SwtpmPath:   "swtpm",
	}
}

func configFilePath() string {
	if path := os.Getenv("NQG_CONFIG"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(home, ".nqg", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("NQG_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("NQG_INDEX_PATH"); v != "" {
		cfg.IndexPath = v
	}
	if v := os.Getenv("NQG_ADDRESS"); v != "" {
		cfg.Address = v
	}
	if v := os.Getenv("NQG_QEMU_PATH"); v != "" {
		cfg.QemuPath = v
	}
	if v := os.Getenv("NQG_QEMU_IMG_PATH"); v != "" {
		cfg.QemuImgPath = v
	}
	if v := os.Getenv("NQG_SWTPM_PATH"); v != "" {
		cfg.SwtpmPath = v
	}
	if v := os.Getenv("NQG_OVMF_DIRS"); v != "" {
		cfg.OVMFSearchDirs = strings.Split(v, ":")
	}
}
