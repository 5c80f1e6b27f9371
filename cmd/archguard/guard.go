package main

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/roblaszczak/go-cleanarch/cleanarch"
	"gopkg.in/yaml.v3"
)

var errLayering = errors.New("layering check failed")

type config struct {
	Root           string   `yaml:"root"`
	IgnoreTests    bool     `yaml:"ignore_tests"`
	IgnorePackages []string `yaml:"ignore_packages"`
	// SharedModules may be imported by any other module.
	SharedModules []string `yaml:"shared_modules"`
	Allow         []string `yaml:"allow"`
	Layers        struct {
		Domain         []string `yaml:"domain"`
		Application    []string `yaml:"application"`
		Interfaces     []string `yaml:"interfaces"`
		Infrastructure []string `yaml:"infrastructure"`
	} `yaml:"layers"`
}

// Package directory names used under modules/<name>/.
var (
	domainDirs         = []string{"domain"}
	applicationDirs    = []string{"services"}
	interfacesDirs     = []string{"presentation"}
	infrastructureDirs = []string{"infrastructure"}
)

func loadConfig(path string) (*config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*config, error) {
	cfg := &config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Root == "" {
		cfg.Root = "modules"
	}
	return cfg, nil
}

func (c *config) aliases() map[string]cleanarch.Layer {
	out := map[string]cleanarch.Layer{}
	add := func(custom, defaults []string, layer cleanarch.Layer) {
		names := defaults
		if len(custom) > 0 {
			names = custom
		}
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				out[n] = layer
			}
		}
	}
	add(c.Layers.Domain, domainDirs, cleanarch.LayerDomain)
	add(c.Layers.Application, applicationDirs, cleanarch.LayerApplication)
	add(c.Layers.Interfaces, interfacesDirs, cleanarch.LayerInterfaces)
	add(c.Layers.Infrastructure, infrastructureDirs, cleanarch.LayerInfrastructure)
	return out
}

func check(cfg *config, debug bool) ([]cleanarch.ValidationError, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	if debug {
		cleanarch.Log.SetOutput(os.Stderr)
	}
	ok, errs, err := cleanarch.NewValidator(cfg.aliases()).Validate(root, cfg.IgnoreTests, cfg.IgnorePackages)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}
	return cfg.filter(errs), nil
}

var crossModule = regexp.MustCompile(`between ([\w-]+) and ([\w-]+) modules`)

// filter drops violations that touch a shared module or match an allow entry.
func (c *config) filter(errs []cleanarch.ValidationError) []cleanarch.ValidationError {
	shared := map[string]bool{}
	for _, m := range c.SharedModules {
		shared[strings.TrimSpace(m)] = true
	}

	var out []cleanarch.ValidationError
	for _, e := range errs {
		msg := e.Error()
		if m := crossModule.FindStringSubmatch(msg); len(m) == 3 && (shared[m[1]] || shared[m[2]]) {
			continue
		}
		if c.allowed(msg) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (c *config) allowed(msg string) bool {
	for _, p := range c.Allow {
		if p != "" && strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
