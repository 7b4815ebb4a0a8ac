// Package steps holds the concrete pipeline steps. Each one wraps a library
// (html/template, esbuild, minify) behind the pipeline.Step interface.
package steps

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/conneroisu/sitesmith/internal/glob"
	"github.com/conneroisu/sitesmith/internal/pipeline"
)

// PageData is passed to every rendered page.
type PageData struct {
	Site    SiteData
	Page    PageInfo
	Profile string
}

type SiteData struct {
	URL string
}

type PageInfo struct {
	// Path is the output path of the page relative to the markup directory.
	Path   string
	Source string
}

// Template renders pages with html/template. Partials are parsed alongside
// every page so pages can include them by name: a partial at
// views/nav/top.tmpl under the partial glob base is available as
// {{template "nav/top" .}}. Blocks declared with {{define}} in a partial are
// available under their own name.
type Template struct {
	// Root is the project root partial globs are resolved against.
	Root     string
	Partials glob.SourceSet
	SiteURL  string
	Profile  string
	Funcs    template.FuncMap
}

// Name implements pipeline.Step.
func (t *Template) Name() string { return "template" }

// Transform implements pipeline.Step. Partials are re-read for every page so
// an edited include is picked up by the next run.
func (t *Template) Transform(ctx context.Context, a *pipeline.Asset) ([]*pipeline.Asset, error) {
	tmpl, err := t.partials()
	if err != nil {
		return nil, err
	}

	page, err := tmpl.New(a.Source).Parse(string(a.Contents))
	if err != nil {
		return nil, err
	}

	data := PageData{
		Site:    SiteData{URL: strings.TrimSuffix(t.SiteURL, "/")},
		Page:    PageInfo{Path: a.Path, Source: a.Source},
		Profile: t.Profile,
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return nil, err
	}

	a.Contents = buf.Bytes()
	return []*pipeline.Asset{a}, nil
}

func (t *Template) partials() (*template.Template, error) {
	root := template.New("").Funcs(defaultFuncs()).Funcs(t.Funcs)

	files, err := t.Partials.Resolve(t.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving partials: %w", err)
	}

	for _, f := range files {
		contents, err := os.ReadFile(filepath.Join(t.Root, filepath.FromSlash(f.Path)))
		if err != nil {
			return nil, fmt.Errorf("reading partial %s: %w", f.Path, err)
		}

		name := strings.TrimSuffix(f.Rel, path.Ext(f.Rel))
		if _, err := root.New(name).Parse(string(contents)); err != nil {
			return nil, fmt.Errorf("partial %s: %w", f.Path, err)
		}
	}

	return root, nil
}

func defaultFuncs() template.FuncMap {
	return template.FuncMap{
		"url": func(site SiteData, p string) string {
			return site.URL + "/" + strings.TrimPrefix(p, "/")
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}
}

// HTMLName maps a template path to its page name: about.tmpl -> about.html.
func HTMLName(rel string) string {
	return strings.TrimSuffix(rel, path.Ext(rel)) + ".html"
}
