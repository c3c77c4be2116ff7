// Package discovery locates resource descriptors.
//
// A module tree has one directory per resource. Inside it the route unit is
// chosen by priority:
//
//  1. any file named *.route.yaml or *.route.yml (first in lexical order)
//  2. <dir>.routes.yaml
//  3. routes.yaml
//
// Directories without a match are skipped. A broken *.route.yaml unit is
// logged and its directory skipped; the legacy names are only consulted when
// no such unit exists, and a broken legacy file falls through to the next
// legacy name. One broken module never stops the others from loading.
package discovery

import (
	"io/fs"
	"path"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/artpar/calm/core/schema"
)

// UnitPattern matches route units relative to the module root.
const UnitPattern = "*/*.route.{yaml,yml}"

// Unit is one discovered resource descriptor.
type Unit struct {
	// Dir is the resource directory, empty for compiled-in descriptors.
	Dir string

	// Path is the file the module was read from.
	Path string

	Module schema.Module
}

// Source produces resource descriptors.
type Source interface {
	Discover() ([]Unit, error)
}

// Discoverer scans a module tree.
type Discoverer struct {
	fsys   fs.FS
	logger zerolog.Logger
}

// New creates a discoverer over fsys, whose root holds the resource directories.
func New(fsys fs.FS, logger zerolog.Logger) *Discoverer {
	return &Discoverer{fsys: fsys, logger: logger}
}

// Discover returns one unit per resource directory that has a loadable route
// unit, in directory order. It fails only when the root cannot be read.
func (d *Discoverer) Discover() ([]Unit, error) {
	entries, err := fs.ReadDir(d.fsys, ".")
	if err != nil {
		return nil, err
	}

	matches, err := doublestar.Glob(d.fsys, UnitPattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	byDir := make(map[string][]string)
	for _, m := range matches {
		dir := path.Dir(m)
		byDir[dir] = append(byDir[dir], m)
	}

	var units []Unit
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := entry.Name()

		candidates := []string{
			path.Join(dir, dir+".routes.yaml"),
			path.Join(dir, "routes.yaml"),
		}
		if primary := byDir[dir]; len(primary) > 0 {
			candidates = primary[:1]
		}

		unit, ok := d.load(dir, candidates)
		if !ok {
			continue
		}
		units = append(units, unit)
	}

	return units, nil
}

func (d *Discoverer) load(dir string, candidates []string) (Unit, bool) {
	found := false
	for _, p := range candidates {
		if _, err := fs.Stat(d.fsys, p); err != nil {
			continue
		}
		found = true

		mod, err := schema.ParseFS(d.fsys, p)
		if err != nil {
			d.logger.Error().
				Err(err).
				Str("dir", dir).
				Str("file", p).
				Msg("failed to load route unit")
			continue
		}

		d.logger.Debug().
			Str("module", mod.Name).
			Str("file", p).
			Msg("discovered module")
		return Unit{Dir: dir, Path: p, Module: mod}, true
	}

	if !found {
		d.logger.Warn().Str("dir", dir).Msg("no route unit found, skipping")
	}
	return Unit{}, false
}

// Static is a Source of compiled-in descriptors.
type Static []schema.Module

// Discover returns one unit per module. Modules are validated when they are
// registered, not here.
func (s Static) Discover() ([]Unit, error) {
	units := make([]Unit, 0, len(s))
	for _, mod := range s {
		units = append(units, Unit{Module: mod})
	}
	return units, nil
}

// Multi combines sources in order. A failing source fails the whole call.
type Multi []Source

// Discover concatenates the units of every source.
func (m Multi) Discover() ([]Unit, error) {
	var units []Unit
	for _, src := range m {
		u, err := src.Discover()
		if err != nil {
			return nil, err
		}
		units = append(units, u...)
	}
	return units, nil
}
