package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	appName        = "dataverse-go"
	configFileName = "config.toml"
)

// baseDir describes where one class of files lives. Linux honours the XDG
// variable; macOS keeps config and data together under Application Support;
// every other platform uses the XDG fallback under $HOME.
type baseDir struct {
	xdgEnv string
	home   []string
}

var (
	configBase = baseDir{xdgEnv: "XDG_CONFIG_HOME", home: []string{".config"}}
	dataBase   = baseDir{xdgEnv: "XDG_DATA_HOME", home: []string{".local", "share"}}
)

func (b baseDir) resolve(goos, home string, getenv func(string) string) string {
	if goos == "darwin" {
		return filepath.Join(home, "Library", "Application Support", appName)
	}

	if xdg := getenv(b.xdgEnv); xdg != "" && goos == "linux" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(append(append([]string{home}, b.home...), appName)...)
}

func (b baseDir) current() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return b.resolve(runtime.GOOS, home, os.Getenv)
}

// DefaultConfigDir returns the directory holding config.toml.
func DefaultConfigDir() string { return configBase.current() }

// DefaultDataDir returns the directory holding the token cache.
func DefaultDataDir() string { return dataBase.current() }

// DefaultConfigPath is used when neither DATAVERSE_GO_CONFIG nor --config
// names a file.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}
