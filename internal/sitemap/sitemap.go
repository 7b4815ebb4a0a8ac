// Package sitemap builds sitemap.xml from a produced output tree. It reads
// the pages that were actually written, never the sources, so the sitemap
// lists exactly what gets deployed.
package sitemap

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/conneroisu/sitesmith/internal/glob"
	"github.com/conneroisu/sitesmith/internal/pipeline"
)

// FileName is written at the root of the output tree.
const FileName = "sitemap.xml"

const namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// Options configures generation.
type Options struct {
	SiteURL string
	// Pages selects the pages below the output root. Defaults to **/*.html.
	Pages      []string
	ChangeFreq string
	Priority   float64
}

// Entry is one <url> element.
type Entry struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

type urlset struct {
	XMLName xml.Name `xml:"urlset"`
	Xmlns   string   `xml:"xmlns,attr"`
	URLs    []Entry  `xml:"url"`
}

// Collect lists the pages under root as sitemap entries in path order.
// Pages whose names normalise to the same URL share one entry carrying the
// newest modification date. An empty tree yields no entries.
func Collect(root string, opts Options) ([]Entry, error) {
	base, err := url.Parse(strings.TrimSuffix(opts.SiteURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid site URL %q", opts.SiteURL)
	}

	patterns := opts.Pages
	if len(patterns) == 0 {
		patterns = []string{"**/*.html"}
	}

	files, err := glob.New(patterns...).Resolve(root)
	if err != nil {
		return nil, err
	}

	changeFreq := opts.ChangeFreq
	if changeFreq == "" {
		changeFreq = "weekly"
	}
	priority := ""
	if opts.Priority > 0 {
		priority = strconv.FormatFloat(opts.Priority, 'f', 1, 64)
	}

	entries := make([]Entry, 0, len(files))
	seen := make(map[string]int, len(files))
	for _, f := range files {
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(f.Path)))
		if err != nil {
			return nil, err
		}

		loc := Loc(base, f.Path)
		lastMod := info.ModTime().UTC().Format("2006-01-02")
		if i, ok := seen[loc]; ok {
			entries[i].LastMod = max(entries[i].LastMod, lastMod)
			continue
		}
		seen[loc] = len(entries)

		entries = append(entries, Entry{
			Loc:        loc,
			LastMod:    lastMod,
			ChangeFreq: changeFreq,
			Priority:   priority,
		})
	}

	return entries, nil
}

// Loc joins a slash separated page path onto the site URL. Paths are NFC
// normalised first so the same page always yields the same URL regardless
// of how the file system spelled its name.
func Loc(site *url.URL, page string) string {
	segments := strings.Split(norm.NFC.String(page), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	return strings.TrimSuffix(site.String(), "/") + "/" + strings.Join(segments, "/")
}

// Render encodes entries as a sitemap document.
func Render(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(urlset{Xmlns: namespace, URLs: entries}); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')

	return buf.Bytes(), nil
}

// Generate writes sitemap.xml at the root of the output tree and returns the
// entries it contains.
func Generate(ctx context.Context, root string, opts Options) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := Collect(root, opts)
	if err != nil {
		return nil, err
	}

	doc, err := Render(entries)
	if err != nil {
		return nil, err
	}

	if err := pipeline.WriteFile(filepath.Join(root, FileName), doc); err != nil {
		return nil, err
	}

	return entries, nil
}
