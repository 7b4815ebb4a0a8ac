package steps

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/sitesmith/internal/pipeline"
)

// SourcemapDir is where external sourcemaps go, relative to the stylesheet.
const SourcemapDir = "sourcemaps"

// Stylesheet compiles a stylesheet entry with esbuild: @import rules are
// bundled into one file and syntax is lowered and prefixed for Targets.
type Stylesheet struct {
	// Root is the project root; imports resolve relative to the entry file.
	Root       string
	Targets    []string
	Sourcemaps bool
}

// Name implements pipeline.Step.
func (s *Stylesheet) Name() string { return "stylesheet" }

// Transform implements pipeline.Step.
func (s *Stylesheet) Transform(_ context.Context, a *pipeline.Asset) ([]*pipeline.Asset, error) {
	engines, err := ParseTargets(s.Targets)
	if err != nil {
		return nil, err
	}

	sourcefile := filepath.Join(s.Root, filepath.FromSlash(a.Source))

	opts := api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   string(a.Contents),
			ResolveDir: filepath.Dir(sourcefile),
			Sourcefile: sourcefile,
			Loader:     api.LoaderCSS,
		},
		AbsWorkingDir: absOrEmpty(s.Root),
		Bundle:        true,
		Write:         false,
		Engines:       engines,
		Outfile:       path.Base(a.Path),
		LogLevel:      api.LogLevelSilent,
	}
	if s.Sourcemaps {
		opts.Sourcemap = api.SourceMapExternal
		opts.SourcesContent = api.SourcesContentInclude
	}

	result := api.Build(opts)
	if len(result.Errors) > 0 {
		return nil, buildError(result.Errors)
	}

	var css, sourcemap []byte
	for _, out := range result.OutputFiles {
		if strings.HasSuffix(out.Path, ".map") {
			sourcemap = out.Contents
			continue
		}
		css = out.Contents
	}

	if css == nil {
		return nil, fmt.Errorf("esbuild produced no stylesheet for %s", a.Source)
	}

	if !s.Sourcemaps || sourcemap == nil {
		a.Contents = css
		return []*pipeline.Asset{a}, nil
	}

	mapName := path.Base(a.Path) + ".map"
	mapPath := path.Join(path.Dir(a.Path), SourcemapDir, mapName)

	a.Contents = append(css, []byte(fmt.Sprintf("/*# sourceMappingURL=%s/%s */\n", SourcemapDir, mapName))...)

	return []*pipeline.Asset{a, {
		Source:   a.Source,
		Base:     a.Base,
		Path:     mapPath,
		Contents: sourcemap,
	}}, nil
}

func absOrEmpty(root string) string {
	if root == "" {
		return ""
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return ""
	}
	return abs
}

func buildError(msgs []api.Message) error {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			parts = append(parts, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		parts = append(parts, m.Text)
	}

	return fmt.Errorf("%s", strings.Join(parts, "; "))
}

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

// ParseTargets converts browser targets such as "chrome90" or "safari14.1"
// into esbuild engines.
func ParseTargets(targets []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(targets))
	for _, t := range targets {
		t = strings.ToLower(strings.TrimSpace(t))
		i := strings.IndexFunc(t, unicode.IsDigit)
		if i <= 0 {
			return nil, fmt.Errorf("invalid browser target %q (want e.g. chrome90)", t)
		}

		name, ok := engineNames[t[:i]]
		if !ok {
			return nil, fmt.Errorf("unknown browser %q in target %q", t[:i], t)
		}
		engines = append(engines, api.Engine{Name: name, Version: t[i:]})
	}

	return engines, nil
}
