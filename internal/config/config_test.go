package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sitesmith/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.Root)
	assert.Equal(t, []string{"src/templates/**/*.tmpl", "!src/templates/views/**/*.tmpl"}, cfg.Sources.Markup.Patterns)
	assert.Equal(t, []string{"src/templates/views/**/*.tmpl"}, cfg.Sources.Partials)
	assert.Equal(t, []string{"src/styles/style.css"}, cfg.Sources.Styles.Patterns)
	assert.Equal(t, []string{"src/styles/**/*.css"}, cfg.Sources.Styles.WatchPatterns())
	assert.Equal(t, []string{"src/js/*.js"}, cfg.Sources.Scripts.WatchPatterns())

	assert.Equal(t, "build", cfg.Development.Root)
	assert.False(t, cfg.Development.Minify)
	assert.True(t, cfg.Development.Sourcemaps)
	assert.Equal(t, "production", cfg.Production.Root)
	assert.True(t, cfg.Production.Minify)
	assert.False(t, cfg.Production.Sourcemaps)
	assert.Equal(t, "css", cfg.Production.Dirs.Dir(KindStyles))
	assert.Equal(t, "img", cfg.Production.Dirs.Dir(KindPNG))
	assert.Equal(t, ".", cfg.Production.Dirs.Dir(KindMarkup))

	assert.Equal(t, "localhost:3000", cfg.Server.Addr())
	assert.Equal(t, 300*time.Millisecond, cfg.Watch.Debounce)
	assert.Positive(t, cfg.Build.Workers())
	assert.Equal(t, 21, cfg.Deploy.Port)
	assert.Equal(t, 2*time.Minute, cfg.Deploy.Timeout)
	assert.Equal(t, []string{"**"}, cfg.Deploy.Globs)
	assert.Empty(t, cfg.Deploy.Host)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOverrides(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(v *viper.Viper)
		verify func(t *testing.T, cfg *Config)
	}{
		{
			name: "explicit values win over defaults",
			setup: func(v *viper.Viper) {
				v.Set("production.root", "../production")
				v.Set("build.concurrency", 2)
				v.Set("sources.scripts.patterns", []string{"assets/js/**/*.js"})
			},
			verify: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "../production", cfg.Production.Root)
				assert.Equal(t, 2, cfg.Build.Workers())
				assert.Equal(t, []string{"assets/js/**/*.js"}, cfg.Sources.Scripts.Patterns)
			},
		},
		{
			name: "duration strings decode",
			setup: func(v *viper.Viper) {
				v.Set("watch.debounce", "50ms")
				v.Set("deploy.timeout", "30s")
			},
			verify: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 50*time.Millisecond, cfg.Watch.Debounce)
				assert.Equal(t, 30*time.Second, cfg.Deploy.Timeout)
			},
		},
		{
			name: "environment variables",
			setup: func(v *viper.Viper) {
				t.Setenv("SITESMITH_DEPLOY_HOST", "ftp.example.com")
				t.Setenv("SITESMITH_SERVER_PORT", "8080")
				v.SetEnvPrefix("SITESMITH")
				v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
				v.AutomaticEnv()
			},
			verify: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "ftp.example.com", cfg.Deploy.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			tt.setup(v)

			cfg, err := LoadFrom(v)
			require.NoError(t, err)
			tt.verify(t, cfg)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".sitesmith.yml")
	require.NoError(t, os.WriteFile(file, []byte(`
site_url: https://www.example.com
sources:
  markup:
    patterns:
      - pages/**/*.tmpl
production:
  minify: false
deploy:
  host: ftp.example.com
  user: site
`), 0o644))

	v := viper.New()
	v.SetConfigFile(file)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, "https://www.example.com", cfg.SiteURL)
	assert.Equal(t, []string{"pages/**/*.tmpl"}, cfg.Sources.Markup.Patterns)
	// Siblings of an overridden key keep their defaults.
	assert.Equal(t, []string{"src/styles/style.css"}, cfg.Sources.Styles.Patterns)
	assert.False(t, cfg.Production.Minify)
	assert.Equal(t, "production", cfg.Production.Root)
	assert.Equal(t, "site", cfg.Deploy.User)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   interface{}
		message string
	}{
		{"bad site url", "site_url", "not a url", "site_url"},
		{"bad glob", "sources.styles.patterns", []string{"src/[a-.css"}, "styles.patterns"},
		{"escaping glob", "sources.scripts.patterns", []string{"../shared/*.js"}, "escapes the project root"},
		{"same roots", "production.root", "build", "must differ"},
		{"dir traversal", "development.dirs.styles", "../css", "traversal"},
		{"server port", "server.port", 70000, "port 70000"},
		{"server host", "server.host", "localhost;rm", "dangerous character"},
		{"negative concurrency", "build.concurrency", -1, "concurrency"},
		{"deploy timeout", "deploy.timeout", "0s", "timeout must be positive"},
		{"log level", "log.level", "loud", "unknown log level"},
		{"log format", "log.format", "xml", "unknown log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.value)

			cfg, err := LoadFrom(v)
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.True(t, errors.IsConfigError(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoadDecodeError(t *testing.T) {
	v := viper.New()
	v.Set("server.port", "invalid_port")

	_, err := LoadFrom(v)
	assert.Error(t, err)
}

func TestSourcesKind(t *testing.T) {
	cfg := Default()
	for _, kind := range Kinds {
		assert.NotEmpty(t, cfg.Sources.Kind(kind).Patterns, kind)
	}
	assert.Empty(t, cfg.Sources.Kind("fonts").Patterns)
}
