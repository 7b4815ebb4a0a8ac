// Package config provides configuration management for sitesmith using Viper
// for flexible loading from files, environment variables, and command-line
// flags.
//
// The configuration describes where sources live, where each profile writes
// its output tree, how the development server and watcher behave, and where
// the production tree is deployed. Environment variables use the SITESMITH_
// prefix with dots replaced by underscores (SITESMITH_DEPLOY_HOST).
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// AssetKind identifies one family of sources that shares a task and a chain.
type AssetKind string

const (
	KindMarkup  AssetKind = "markup"
	KindStyles  AssetKind = "styles"
	KindScripts AssetKind = "scripts"
	KindSVG     AssetKind = "svg"
	KindJPEG    AssetKind = "jpeg"
	KindPNG     AssetKind = "png"
)

// Kinds lists every asset kind in task declaration order.
var Kinds = []AssetKind{KindMarkup, KindStyles, KindScripts, KindSVG, KindJPEG, KindPNG}

type Config struct {
	Root        string        `mapstructure:"root" yaml:"root"`
	SiteURL     string        `mapstructure:"site_url" yaml:"site_url"`
	Sources     SourcesConfig `mapstructure:"sources" yaml:"sources"`
	Development ProfileConfig `mapstructure:"development" yaml:"development"`
	Production  ProfileConfig `mapstructure:"production" yaml:"production"`
	Server      ServerConfig  `mapstructure:"server" yaml:"server"`
	Watch       WatchConfig   `mapstructure:"watch" yaml:"watch"`
	Build       BuildConfig   `mapstructure:"build" yaml:"build"`
	Deploy      DeployConfig  `mapstructure:"deploy" yaml:"deploy"`
	Log         LogConfig     `mapstructure:"log" yaml:"log"`
}

type SourcesConfig struct {
	Markup  SourceConfig `mapstructure:"markup" yaml:"markup"`
	Styles  SourceConfig `mapstructure:"styles" yaml:"styles"`
	Scripts SourceConfig `mapstructure:"scripts" yaml:"scripts"`
	SVG     SourceConfig `mapstructure:"svg" yaml:"svg"`
	JPEG    SourceConfig `mapstructure:"jpeg" yaml:"jpeg"`
	PNG     SourceConfig `mapstructure:"png" yaml:"png"`
	// Partials are parsed alongside every page so pages can include them.
	Partials []string `mapstructure:"partials" yaml:"partials"`
}

// SourceConfig holds the build globs of one asset kind and, when they differ,
// the globs whose changes trigger a rebuild. The stylesheet entry is a single
// file, but any imported file should trigger it.
type SourceConfig struct {
	Patterns []string `mapstructure:"patterns" yaml:"patterns"`
	Watch    []string `mapstructure:"watch" yaml:"watch"`
}

// WatchPatterns returns Watch, falling back to Patterns.
func (s SourceConfig) WatchPatterns() []string {
	if len(s.Watch) > 0 {
		return s.Watch
	}

	return s.Patterns
}

// Kind returns the source configuration for k.
func (s SourcesConfig) Kind(k AssetKind) SourceConfig {
	switch k {
	case KindMarkup:
		return s.Markup
	case KindStyles:
		return s.Styles
	case KindScripts:
		return s.Scripts
	case KindSVG:
		return s.SVG
	case KindJPEG:
		return s.JPEG
	case KindPNG:
		return s.PNG
	default:
		return SourceConfig{}
	}
}

type ProfileConfig struct {
	Root       string     `mapstructure:"root" yaml:"root"`
	Dirs       DirsConfig `mapstructure:"dirs" yaml:"dirs"`
	Minify     bool       `mapstructure:"minify" yaml:"minify"`
	Sourcemaps bool       `mapstructure:"sourcemaps" yaml:"sourcemaps"`
	Targets    []string   `mapstructure:"targets" yaml:"targets"`
}

// DirsConfig places each asset family below the profile root.
type DirsConfig struct {
	Markup  string `mapstructure:"markup" yaml:"markup"`
	Styles  string `mapstructure:"styles" yaml:"styles"`
	Scripts string `mapstructure:"scripts" yaml:"scripts"`
	Images  string `mapstructure:"images" yaml:"images"`
}

// Dir returns the output subdirectory for k.
func (d DirsConfig) Dir(k AssetKind) string {
	switch k {
	case KindMarkup:
		return d.Markup
	case KindStyles:
		return d.Styles
	case KindScripts:
		return d.Scripts
	default:
		return d.Images
	}
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	Open bool   `mapstructure:"open" yaml:"open"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
	Ignore   []string      `mapstructure:"ignore" yaml:"ignore"`
}

type BuildConfig struct {
	// Concurrency bounds the files processed at once inside one task.
	// Zero means the number of CPUs.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// Workers returns the effective concurrency.
func (b BuildConfig) Workers() int {
	if b.Concurrency > 0 {
		return b.Concurrency
	}

	return runtime.NumCPU()
}

// DeployConfig is handed to the deployer as is. The orchestrator only checks
// that a host was configured.
type DeployConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	User            string        `mapstructure:"user" yaml:"user"`
	Password        string        `mapstructure:"password" yaml:"-"`
	RemoteRoot      string        `mapstructure:"remote_root" yaml:"remote_root"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Globs           []string      `mapstructure:"globs" yaml:"globs"`
	CredentialsFile string        `mapstructure:"credentials_file" yaml:"credentials_file"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers the default value of every key on v. The layout
// mirrors a conventional src/ tree building into build/ and production/.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("root", ".")
	v.SetDefault("site_url", "http://localhost")

	v.SetDefault("sources.markup.patterns", []string{"src/templates/**/*.tmpl", "!src/templates/views/**/*.tmpl"})
	v.SetDefault("sources.markup.watch", []string{"src/templates/**/*.tmpl"})
	v.SetDefault("sources.partials", []string{"src/templates/views/**/*.tmpl"})
	v.SetDefault("sources.styles.patterns", []string{"src/styles/style.css"})
	v.SetDefault("sources.styles.watch", []string{"src/styles/**/*.css"})
	v.SetDefault("sources.scripts.patterns", []string{"src/js/*.js"})
	v.SetDefault("sources.svg.patterns", []string{"src/assets/svg/**/*.svg"})
	v.SetDefault("sources.jpeg.patterns", []string{"src/assets/jpg/**/*.jpg", "src/assets/jpg/**/*.jpeg"})
	v.SetDefault("sources.png.patterns", []string{"src/assets/png/**/*.png"})

	targets := []string{"chrome90", "firefox88", "safari14", "edge90"}

	v.SetDefault("development.root", "build")
	v.SetDefault("development.minify", false)
	v.SetDefault("development.sourcemaps", true)
	v.SetDefault("development.targets", targets)

	v.SetDefault("production.root", "production")
	v.SetDefault("production.minify", true)
	v.SetDefault("production.sourcemaps", false)
	v.SetDefault("production.targets", targets)

	for _, profile := range []string{"development", "production"} {
		v.SetDefault(profile+".dirs.markup", ".")
		v.SetDefault(profile+".dirs.styles", "css")
		v.SetDefault(profile+".dirs.scripts", "js")
		v.SetDefault(profile+".dirs.images", "img")
	}

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.open", false)

	v.SetDefault("watch.debounce", 300*time.Millisecond)
	v.SetDefault("watch.ignore", []string{"**/.git/**", "**/node_modules/**", "**/*~", "**/.#*"})

	v.SetDefault("build.concurrency", 0)

	// Keys without a meaningful default are still registered so environment
	// variables reach Unmarshal.
	v.SetDefault("deploy.host", "")
	v.SetDefault("deploy.user", "")
	v.SetDefault("deploy.password", "")
	v.SetDefault("deploy.credentials_file", "")
	v.SetDefault("deploy.port", 21)
	v.SetDefault("deploy.remote_root", "/")
	v.SetDefault("deploy.timeout", 2*time.Minute)
	v.SetDefault("deploy.globs", []string{"**"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads, completes and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	if config.Deploy.CredentialsFile != "" {
		creds, err := LoadCredentials(config.Deploy.CredentialsFile)
		if err != nil {
			return nil, err
		}
		creds.Apply(&config.Deploy)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	cfg, err := LoadFrom(viper.New())
	if err != nil {
		// Defaults are static and always valid.
		panic(err)
	}

	return cfg
}
