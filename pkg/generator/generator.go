// Package generator scaffolds new sails applications.
//
// A generator run is described by a Scope: where it runs from, the framework
// package it was invoked with, settings merged in from rc configuration and
// the command line arguments. Outcomes are reported through Handlers rather
// than printed, so callers decide how to present them.
package generator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"

	"github.com/agentstation/sails/pkg/constants"
	"github.com/agentstation/sails/pkg/errors"
)

var (
	// ErrMissingAppName is returned when neither the arguments nor the scope
	// name the app to create.
	ErrMissingAppName = errors.New("missing app name")

	// ErrTargetExists is returned when the target directory is not empty and
	// the scope does not force the generator.
	ErrTargetExists = errors.New("target directory is not empty")
)

// PackageInfo identifies the framework package creating the app.
type PackageInfo struct {
	Name    string `mapstructure:"name" json:"name" yaml:"name"`
	Version string `mapstructure:"version" json:"version" yaml:"version"`
}

// Scope is the input of a generator run.
type Scope struct {
	RootPath         string      `mapstructure:"rootPath"`
	SailsPackageJSON PackageInfo `mapstructure:"sailsPackageJSON"`

	AppName string `mapstructure:"appName"`
	AppPath string `mapstructure:"appPath"`

	// Force allows generating into a non-empty directory.
	Force bool `mapstructure:"force"`
	// Adapter is the datastore adapter of the default connection.
	Adapter string `mapstructure:"adapter"`

	Args []string `mapstructure:"args"`

	// Extra holds rc settings the generator does not interpret.
	Extra map[string]any `mapstructure:",remain"`
}

// NewScope builds the scope for `sails new`: the working directory and
// framework package, deep merged with the rc "generators" section, then the
// positional arguments.
func NewScope(rootPath string, pkg PackageInfo, generators map[string]any, args []string) (Scope, error) {
	scope := Scope{
		RootPath:         rootPath,
		SailsPackageJSON: pkg,
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &scope,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Scope{}, err
	}
	if err := decoder.Decode(generators); err != nil {
		return Scope{}, errors.NewConfigError("generators", "invalid rc generators section", err)
	}

	scope.Args = append([]string(nil), args...)
	return scope, nil
}

// Handlers receive the outcome of a generator run. Nil handlers are skipped.
type Handlers struct {
	Error          func(err error)
	Success        func(scope Scope)
	MissingAppName func()
}

func (h Handlers) error(err error) error {
	if h.Error != nil {
		h.Error(err)
	}
	return err
}

// Generate creates the app described by scope and reports the outcome to h.
// The returned error is the one passed to the Error handler, or
// ErrMissingAppName.
func Generate(scope Scope, h Handlers) error {
	scope, err := resolve(scope)
	if err != nil {
		if h.MissingAppName != nil {
			h.MissingAppName()
		}
		return err
	}

	if err := checkTarget(scope); err != nil {
		return h.error(err)
	}

	files, err := render(scope)
	if err != nil {
		return h.error(err)
	}

	if err := os.MkdirAll(filepath.Join(scope.AppPath, constants.DefaultModelsPath), constants.DirPermissions); err != nil {
		return h.error(errors.WrapIO("create", scope.AppPath, err))
	}
	for _, f := range files {
		path := filepath.Join(scope.AppPath, f.path)
		if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
			return h.error(errors.WrapIO("create", filepath.Dir(path), err))
		}
		if err := os.WriteFile(path, f.body, constants.FilePermissions); err != nil {
			return h.error(errors.WrapIO("write", path, err))
		}
	}

	if h.Success != nil {
		h.Success(scope)
	}
	return nil
}

// resolve fills AppName and AppPath. The first argument wins over names
// set in the scope.
func resolve(scope Scope) (Scope, error) {
	target := ""
	switch {
	case len(scope.Args) > 0 && scope.Args[0] != "":
		target = scope.Args[0]
		scope.AppName = ""
	case scope.AppPath != "":
		target = scope.AppPath
	case scope.AppName != "":
		target = scope.AppName
	default:
		return scope, ErrMissingAppName
	}

	if !filepath.IsAbs(target) {
		root := scope.RootPath
		if root == "" {
			root, _ = os.Getwd()
		}
		target = filepath.Join(root, target)
	}
	scope.AppPath = filepath.Clean(target)
	if scope.AppName == "" {
		scope.AppName = filepath.Base(scope.AppPath)
	}
	if scope.Adapter == "" {
		scope.Adapter = constants.DefaultAdapter
	}
	return scope, nil
}

func checkTarget(scope Scope) error {
	info, err := os.Stat(scope.AppPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.WrapIO("stat", scope.AppPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s exists and is not a directory: %w", scope.AppPath, ErrTargetExists)
	}

	entries, err := os.ReadDir(scope.AppPath)
	if err != nil {
		return errors.WrapIO("read", scope.AppPath, err)
	}
	if len(entries) > 0 && !scope.Force {
		return fmt.Errorf("%s: %w (use --force to generate anyway)", scope.AppPath, ErrTargetExists)
	}
	return nil
}

type file struct {
	path string
	body []byte
}

type appConfig struct {
	Host        string                    `yaml:"host"`
	Port        int                       `yaml:"port"`
	Models      modelsConfig              `yaml:"models"`
	Connections map[string]map[string]any `yaml:"connections"`
	Blueprints  blueprintsConfig          `yaml:"blueprints"`
	Hooks       map[string]bool           `yaml:"hooks"`
}

type modelsConfig struct {
	Path     string `yaml:"path"`
	Fixtures string `yaml:"fixtures"`
}

type blueprintsConfig struct {
	Prefix    string `yaml:"prefix"`
	REST      bool   `yaml:"rest"`
	Shortcuts bool   `yaml:"shortcuts"`
	JSONP     bool   `yaml:"jsonp"`
}

func render(scope Scope) ([]file, error) {
	rc, err := json.MarshalIndent(map[string]any{
		"generators": map[string]any{"modules": map[string]any{}},
	}, "", "  ")
	if err != nil {
		return nil, err
	}

	cfg, err := yaml.Marshal(appConfig{
		Host: constants.DefaultHost,
		Port: constants.DefaultPort,
		Models: modelsConfig{
			Path:     constants.DefaultModelsPath,
			Fixtures: constants.DefaultFixturesPath,
		},
		Connections: map[string]map[string]any{
			constants.DefaultConnection: {"adapter": scope.Adapter},
		},
		Blueprints: blueprintsConfig{REST: true, Shortcuts: true},
		Hooks:      map[string]bool{"pubsub": true},
	})
	if err != nil {
		return nil, err
	}

	version := scope.SailsPackageJSON.Version
	if version == "" {
		version = constants.FrameworkVersion
	}

	return []file{
		{path: constants.RcFileName, body: append(rc, '\n')},
		{path: constants.DefaultConfigPath, body: cfg},
		{path: filepath.Join(constants.DefaultModelsPath, ".gitkeep")},
		{path: constants.DefaultFixturesPath, body: []byte("# Records created when the app lifts, keyed by model identity.\n{}\n")},
		{path: ".gitignore", body: []byte(".env\n.env.local\n*.db\n")},
		{path: "README.md", body: fmt.Appendf(nil,
			"# %s\n\nA Sails application, generated with sails v%s.\n\nStart it with `sails lift`.\n",
			scope.AppName, version)},
	}, nil
}
