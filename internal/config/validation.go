package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/conneroisu/sitesmith/internal/errors"
	"github.com/conneroisu/sitesmith/internal/glob"
	"github.com/conneroisu/sitesmith/internal/logging"
)

// validateConfig validates configuration values for correctness. Every
// failure is a configuration error so the CLI aborts before any task runs.
func validateConfig(config *Config) error {
	checks := []struct {
		section string
		check   func() error
	}{
		{"site_url", func() error { return validateSiteURL(config.SiteURL) }},
		{"sources", func() error { return validateSources(&config.Sources) }},
		{"development", func() error { return validateProfile(&config.Development) }},
		{"production", func() error { return validateProfile(&config.Production) }},
		{"profiles", func() error { return validateDistinctRoots(config) }},
		{"server", func() error { return validateServerConfig(&config.Server) }},
		{"watch", func() error { return validateWatchConfig(&config.Watch) }},
		{"build", func() error { return validateBuildConfig(&config.Build) }},
		{"deploy", func() error { return validateDeployConfig(&config.Deploy) }},
		{"log", func() error { return validateLogConfig(&config.Log) }},
	}

	for _, c := range checks {
		if err := c.check(); err != nil {
			return errors.NewConfigError(errors.CodeInvalidConfig, fmt.Sprintf("%s: %v", c.section, err)).
				WithContext("section", c.section)
		}
	}

	return nil
}

func validateSiteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("site_url %q must be an absolute http(s) URL", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("site_url %q has no host", raw)
	}

	return nil
}

func validateSources(sources *SourcesConfig) error {
	for _, kind := range Kinds {
		src := sources.Kind(kind)
		if err := glob.New(src.Patterns...).Validate(); err != nil {
			return fmt.Errorf("%s.patterns: %w", kind, err)
		}
		if err := glob.New(src.Watch...).Validate(); err != nil {
			return fmt.Errorf("%s.watch: %w", kind, err)
		}
	}

	if err := glob.New(sources.Partials...).Validate(); err != nil {
		return fmt.Errorf("partials: %w", err)
	}

	return nil
}

func validateProfile(profile *ProfileConfig) error {
	// The root itself may live outside the project, e.g. ../production.
	if strings.TrimSpace(profile.Root) == "" {
		return fmt.Errorf("root: empty path")
	}

	dirs := map[string]string{
		"markup":  profile.Dirs.Markup,
		"styles":  profile.Dirs.Styles,
		"scripts": profile.Dirs.Scripts,
		"images":  profile.Dirs.Images,
	}
	for name, dir := range dirs {
		if err := validatePath(dir); err != nil {
			return fmt.Errorf("dirs.%s: %w", name, err)
		}
		if filepath.IsAbs(dir) {
			return fmt.Errorf("dirs.%s must be relative to the profile root: %s", name, dir)
		}
	}

	return nil
}

func validateDistinctRoots(config *Config) error {
	dev := filepath.Clean(config.Development.Root)
	pro := filepath.Clean(config.Production.Root)
	if dev == pro {
		return fmt.Errorf("development and production roots must differ (both %q)", dev)
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing.
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", "/"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return nil
}

func validateWatchConfig(config *WatchConfig) error {
	if config.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative: %s", config.Debounce)
	}

	return nil
}

func validateBuildConfig(config *BuildConfig) error {
	if config.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative: %d", config.Concurrency)
	}

	return nil
}

func validateDeployConfig(config *DeployConfig) error {
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}
	if config.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive: %s", config.Timeout)
	}

	return glob.New(config.Globs...).Validate()
}

func validateLogConfig(config *LogConfig) error {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		return err
	}

	switch config.Format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", config.Format)
	}
}

// validatePath validates a local output path.
func validatePath(p string) error {
	if p == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(p)
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path contains traversal: %s", p)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
