// Package rc loads layered "run command" configuration for a named tool.
//
// Settings are merged from the lowest to the highest precedence source:
//
//  1. defaults passed by the caller
//  2. /etc/<name>rc and /etc/<name>/config
//  3. ~/.<name>rc, ~/.<name>/config, ~/.config/<name> and ~/.config/<name>/config
//  4. the nearest .<name>rc found walking up from the working directory
//  5. an explicit config file
//  6. environment variables prefixed with <name>_, where "__" nests keys
//
// Files hold JSON or YAML. Maps are merged deeply; other values are replaced.
// Keys are case-insensitive and are returned lowercased.
package rc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/viper"

	"github.com/agentstation/sails/pkg/errors"
)

// Options control where configuration is looked up. Zero values use the
// process environment.
type Options struct {
	// Defaults are the lowest precedence settings.
	Defaults map[string]any
	// ConfigFile is an explicit file loaded after the discovered ones.
	ConfigFile string
	// Cwd is where the search for the nearest rc file starts.
	Cwd string
	// Home is the user's home directory.
	Home string
	// EtcDir is the system configuration directory, "/etc" by default.
	EtcDir string
	// Environ is a list of KEY=value pairs, os.Environ() by default.
	Environ []string
}

// Config is the merged configuration.
type Config struct {
	v        *viper.Viper
	settings map[string]any
	files    []string
}

// Load merges configuration for the tool called name.
func Load(name string, opts Options) (*Config, error) {
	opts = withDefaults(opts)
	c := &Config{v: viper.New(), settings: map[string]any{}}
	merge(c.settings, opts.Defaults)

	candidates := []string{
		filepath.Join(opts.EtcDir, name+"rc"),
		filepath.Join(opts.EtcDir, name, "config"),
	}
	if opts.Home != "" {
		candidates = append(candidates,
			filepath.Join(opts.Home, "."+name+"rc"),
			filepath.Join(opts.Home, "."+name, "config"),
			filepath.Join(opts.Home, ".config", name),
			filepath.Join(opts.Home, ".config", name, "config"),
		)
	}
	if nearest := findUp(opts.Cwd, "."+name+"rc"); nearest != "" {
		candidates = append(candidates, nearest)
	}

	for _, path := range candidates {
		if err := c.mergeFile(path, false); err != nil {
			return nil, err
		}
	}
	if file := opts.ConfigFile; file != "" {
		if !filepath.IsAbs(file) {
			file = filepath.Join(opts.Cwd, file)
		}
		if err := c.mergeFile(file, true); err != nil {
			return nil, err
		}
	}

	merge(c.settings, fromEnv(name, opts.Environ))

	if err := c.v.MergeConfigMap(c.settings); err != nil {
		return nil, errors.NewConfigError("rc", "loading settings", err)
	}
	return c, nil
}

func withDefaults(opts Options) Options {
	if opts.Cwd == "" {
		opts.Cwd, _ = os.Getwd()
	}
	if opts.Home == "" {
		opts.Home, _ = os.UserHomeDir()
	}
	if opts.EtcDir == "" {
		opts.EtcDir = "/etc"
	}
	if opts.Environ == nil {
		opts.Environ = os.Environ()
	}
	return opts
}

// mergeFile merges one file. Missing files and directories are skipped
// unless the file is required.
func (c *Config) mergeFile(path string, required bool) error {
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	for _, seen := range c.files {
		if seen == path {
			return nil
		}
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		if required {
			if err == nil {
				err = os.ErrInvalid
			}
			return errors.WrapIO("read", path, err)
		}
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapIO("read", path, err)
	}
	settings, err := Parse(data)
	if err != nil {
		return errors.WrapParse("rc", path, err)
	}
	merge(c.settings, settings)
	c.files = append(c.files, path)
	return nil
}

// Parse decodes an rc file body as JSON, falling back to YAML. An empty
// body is an empty configuration.
func Parse(data []byte) (map[string]any, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return map[string]any{}, nil
	}

	var settings map[string]any
	if err := json.Unmarshal(data, &settings); err == nil {
		return settings, nil
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, err
	}
	if settings == nil {
		settings = map[string]any{}
	}
	return settings, nil
}

// merge deep merges src into dst with lowercased keys. Maps merge
// recursively; any other value replaces what dst holds.
func merge(dst, src map[string]any) {
	for k, v := range src {
		k = strings.ToLower(k)
		if sm, ok := asMap(v); ok {
			dm, ok := dst[k].(map[string]any)
			if !ok {
				dm = map[string]any{}
				dst[k] = dm
			}
			merge(dm, sm)
			continue
		}
		dst[k] = v
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[fmt.Sprint(k)] = v
		}
		return out, true
	}
	return nil, false
}

// findUp returns the first file called name in dir or one of its parents.
func findUp(dir, name string) string {
	if dir == "" {
		return ""
	}
	for {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// fromEnv builds nested settings from <name>_ prefixed variables. The prefix
// is matched case-insensitively and "__" separates nested keys.
func fromEnv(name string, environ []string) map[string]any {
	prefix := strings.ToLower(name) + "_"
	out := map[string]any{}

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(strings.ToLower(key), prefix) {
			continue
		}

		var path []string
		for _, part := range strings.Split(key[len(prefix):], "__") {
			if part != "" {
				path = append(path, strings.ToLower(part))
			}
		}
		if len(path) == 0 {
			continue
		}

		cursor := out
		for _, part := range path[:len(path)-1] {
			next, ok := cursor[part].(map[string]any)
			if !ok {
				next = map[string]any{}
				cursor[part] = next
			}
			cursor = next
		}
		cursor[path[len(path)-1]] = value
	}
	return out
}

// Get returns the value at a dotted key path.
func (c *Config) Get(key string) any {
	return c.v.Get(key)
}

// GetString returns the value at a dotted key path as a string.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// Section returns the map at key, or an empty map.
func (c *Config) Section(key string) map[string]any {
	return c.v.GetStringMap(key)
}

// Generators returns the "generators" section that scaffolding reads.
func (c *Config) Generators() map[string]any {
	return c.Section("generators")
}

// AllSettings returns the merged configuration.
func (c *Config) AllSettings() map[string]any {
	return c.v.AllSettings()
}

// Files returns the files that were merged, lowest precedence first.
func (c *Config) Files() []string {
	return append([]string(nil), c.files...)
}

// Unmarshal decodes the merged configuration into out.
func (c *Config) Unmarshal(out any) error {
	return c.v.Unmarshal(out)
}
