package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const maxDefinitionSize = 1 << 20 // 1 MiB

// Loaded pairs a Definition with the directory it won from, for collision
// logging and reload diagnostics.
type Loaded struct {
	Definition Definition
	Source     string // directory this definition was loaded from
}

// Loader scans one or more directories, in priority order, for agent
// definition files. A name found in an earlier directory shadows the same
// name in a later one, mirroring the teacher's project/user/installed
// skill-source precedence generalized to two tiers (project, then user).
type Loader struct {
	dirs []string
}

// NewLoader creates a Loader scanning dirs in the given priority order.
// Empty entries are ignored.
func NewLoader(dirs ...string) *Loader {
	var cleaned []string
	for _, d := range dirs {
		if strings.TrimSpace(d) != "" {
			cleaned = append(cleaned, d)
		}
	}
	return &Loader{dirs: cleaned}
}

// LoadAll scans every configured directory and returns the winning
// definition for each distinct name, plus a joined error for any file
// that failed to parse (scanning continues past individual failures).
func (l *Loader) LoadAll(ctx context.Context) ([]Loaded, error) {
	seen := make(map[string]string) // lowercased name -> winning dir
	var out []Loaded
	var errs []error

	for _, dir := range l.dirs {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			errs = append(errs, fmt.Errorf("abs agents dir (%s): %w", dir, err))
			continue
		}

		entries, err := os.ReadDir(abs)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			errs = append(errs, fmt.Errorf("read agents dir (%s): %w", abs, err))
			continue
		}

		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, ent := range entries {
			if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".md") {
				continue
			}
			path := filepath.Join(abs, ent.Name())
			def, err := l.loadOne(path)
			if err != nil {
				errs = append(errs, fmt.Errorf("load agent (%s): %w", path, err))
				continue
			}

			key := strings.ToLower(def.Name)
			if _, ok := seen[key]; ok {
				continue // earlier directory already won this name
			}
			seen[key] = abs
			out = append(out, Loaded{Definition: def, Source: abs})
		}
	}

	return out, errors.Join(errs...)
}

func (l *Loader) loadOne(path string) (Definition, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Definition{}, fmt.Errorf("stat: %w", err)
	}
	if fi.Size() > maxDefinitionSize {
		return Definition{}, fmt.Errorf("definition too large: %d bytes (max %d)", fi.Size(), maxDefinitionSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read: %w", err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return Definition{}, err
	}
	def.SourcePath = path
	return def, nil
}
