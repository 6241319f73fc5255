package slotbase

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/t7a/slotbase/layout"
)

// Config records the collaborators a session folder was created
// with.  It is kept in .$.config as KEY=VALUE lines and read back as
// the defaults when the folder is reopened.
type Config struct {
	Storager          string
	Serializer        string
	Filesystem        string
	VersionController string
}

// DefaultStorager is the only store variant.
const DefaultStorager = "base"

func (c Config) keys() [][2]string {
	return [][2]string{
		{"STORAGER", c.Storager},
		{"SERIALIZER", c.Serializer},
		{"FILESYSTEM", c.Filesystem},
		{"VERSION_CONTROLLER", c.VersionController},
	}
}

// merge fills empty fields of c from defaults.
func (c Config) merge(defaults Config) Config {
	if c.Storager == "" {
		c.Storager = defaults.Storager
	}
	if c.Serializer == "" {
		c.Serializer = defaults.Serializer
	}
	if c.Filesystem == "" {
		c.Filesystem = defaults.Filesystem
	}
	if c.VersionController == "" {
		c.VersionController = defaults.VersionController
	}
	return c
}

// Marshal renders the config file content.
func (c Config) Marshal() []byte {
	var b bytes.Buffer
	for _, kv := range c.keys() {
		if kv[1] == "" {
			continue
		}
		fmt.Fprintf(&b, "%s=%s\n", kv[0], kv[1])
	}
	return b.Bytes()
}

// ParseConfig reads KEY=VALUE lines.  Blank lines and # comments
// are skipped; unknown keys are an error.
func ParseConfig(buf []byte) (c Config, err error) {
	env, err := godotenv.Unmarshal(string(buf))
	if err != nil {
		return c, errors.Wrap(err, "parse config")
	}
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		val := strings.TrimSpace(env[key])
		switch key {
		case "STORAGER":
			c.Storager = val
		case "SERIALIZER":
			c.Serializer = val
		case "FILESYSTEM":
			c.Filesystem = val
		case "VERSION_CONTROLLER":
			c.VersionController = val
		default:
			return c, fmt.Errorf("config: unknown key %q", key)
		}
	}
	return
}

// readConfig returns the zero Config when dir has no config file.
// The file is always plain text, whatever filesystem the session
// uses.
func readConfig(dir string) (c Config, err error) {
	buf, err := os.ReadFile(filepath.Join(dir, layout.ConfigFile))
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return
	}
	c, err = ParseConfig(buf)
	if err != nil {
		return c, errors.Wrapf(err, "%s", filepath.Join(dir, layout.ConfigFile))
	}
	return
}

func writeConfig(dir string, c Config) error {
	return renameio.WriteFile(filepath.Join(dir, layout.ConfigFile), c.Marshal(), 0644)
}
