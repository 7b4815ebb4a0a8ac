package build

import (
	"github.com/conneroisu/sitesmith/internal/config"
)

// Profile names.
const (
	Development = "development"
	Production  = "production"
)

// StepOptions tunes the chain of one asset kind.
type StepOptions struct {
	Minify     bool
	Sourcemaps bool
	Targets    []string
}

// Profile is one destination with its chain options. Both profiles share the
// task bodies and differ only here.
type Profile struct {
	Name string
	// Root is the output root, relative to the project root unless absolute.
	Root    string
	Dirs    config.DirsConfig
	Options map[config.AssetKind]StepOptions
}

// NewProfile derives a profile from its configuration section. Raster
// images are copied as is; sourcemaps only apply to stylesheets.
func NewProfile(name string, pc config.ProfileConfig) Profile {
	p := Profile{
		Name:    name,
		Root:    pc.Root,
		Dirs:    pc.Dirs,
		Options: make(map[config.AssetKind]StepOptions, len(config.Kinds)),
	}

	for _, kind := range config.Kinds {
		opts := StepOptions{Targets: pc.Targets}
		switch kind {
		case config.KindJPEG, config.KindPNG:
		case config.KindStyles:
			opts.Minify = pc.Minify
			opts.Sourcemaps = pc.Sourcemaps
		default:
			opts.Minify = pc.Minify
		}
		p.Options[kind] = opts
	}

	return p
}

// TaskName returns the task that builds kind in this profile.
func (p Profile) TaskName(kind config.AssetKind) string {
	if p.Name == Production {
		return "pro_" + string(kind)
	}
	return string(kind)
}
