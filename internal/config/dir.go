package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

var (
	dirOnce sync.Once
	dir     string
)

// Dir returns the user configuration directory. It is resolved on the
// first call: $VDEMUX_HOME if set, otherwise vdemux under the platform
// config directory. A ~/.vdemux directory from older releases is still
// used, with a warning logged once.
func Dir() string {
	dirOnce.Do(func() {
		home, _ := os.UserHomeDir()
		base, _ := os.UserConfigDir()
		dir = resolveDir(os.Getenv("VDEMUX_HOME"), home, base, slog.Default())
	})
	return dir
}

// resolveDir picks the directory; empty arguments are unknown.
func resolveDir(env, home, base string, log *slog.Logger) string {
	if env != "" {
		return env
	}
	confdir := ""
	if base != "" {
		confdir = filepath.Join(base, "vdemux")
	}
	if home == "" {
		return confdir
	}
	old := filepath.Join(home, ".vdemux")
	if st, err := os.Lstat(old); err == nil && st.IsDir() {
		warnLegacy(log, old, confdir)
		return old
	}
	return confdir
}

var legacyOnce sync.Once

func warnLegacy(log *slog.Logger, old, confdir string) {
	legacyOnce.Do(func() {
		log.Warn("the default config directory changed, migrate with mv",
			"component", "config", "old", old, "new", confdir)
	})
}

// Path returns the default configuration file path, or "" when no
// directory could be resolved.
func Path() string {
	d := Dir()
	if d == "" {
		return ""
	}
	return filepath.Join(d, FileName)
}
