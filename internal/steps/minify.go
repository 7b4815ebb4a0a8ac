package steps

import (
	"context"
	"path"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/svg"

	"github.com/conneroisu/sitesmith/internal/pipeline"
)

var mediaTypes = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".mjs":  "application/javascript",
	".svg":  "image/svg+xml",
}

// Minify shrinks HTML, CSS, JavaScript and SVG assets, choosing the minifier
// by output extension. Anything else, sourcemaps included, passes through.
type Minify struct {
	m *minify.M
}

// NewMinify creates the minify step. HTML keeps conditional comments and
// document tags so legacy browser shims survive.
func NewMinify() *Minify {
	m := minify.New()
	m.Add("text/html", &html.Minifier{
		KeepSpecialComments: true,
		KeepDocumentTags:    true,
		KeepDefaultAttrVals: true,
	})
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("application/javascript", js.Minify)
	m.AddFunc("image/svg+xml", svg.Minify)

	return &Minify{m: m}
}

// Name implements pipeline.Step.
func (s *Minify) Name() string { return "minify" }

// Transform implements pipeline.Step.
func (s *Minify) Transform(_ context.Context, a *pipeline.Asset) ([]*pipeline.Asset, error) {
	mediaType, ok := mediaTypes[strings.ToLower(path.Ext(a.Path))]
	if !ok {
		return []*pipeline.Asset{a}, nil
	}

	out, err := s.m.Bytes(mediaType, a.Contents)
	if err != nil {
		return nil, err
	}

	a.Contents = out
	return []*pipeline.Asset{a}, nil
}
