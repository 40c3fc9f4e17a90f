package effects

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/breaktools/meffec/internal/protocol"
	"github.com/rs/zerolog"
)

type effectKey struct{ category, name string }

// Library indexes the definitions in one folder. Reload replaces the
// whole index; readers always see one complete generation.
type Library struct {
	dir string
	log zerolog.Logger

	mu      sync.RWMutex
	byKey   map[effectKey]Definition
	catalog protocol.Catalog
}

func NewLibrary(dir string, log zerolog.Logger) *Library {
	return &Library{
		dir:     dir,
		log:     log,
		byKey:   make(map[effectKey]Definition),
		catalog: protocol.Catalog{},
	}
}

func (l *Library) Dir() string { return l.dir }

// IsDefinitionFile reports whether name looks like an effect definition.
func IsDefinitionFile(name string) bool {
	if strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Reload rescans the folder and returns the new catalog. Files that fail
// to parse are logged and skipped; only an unreadable folder is an error,
// and then the previous index is kept.
func (l *Library) Reload() (protocol.Catalog, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && IsDefinitionFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	byKey := make(map[effectKey]Definition, len(names))
	catalog := protocol.Catalog{}
	position := make(map[string]int)

	for _, name := range names {
		def, err := LoadDefinition(filepath.Join(l.dir, name))
		if err != nil {
			l.log.Warn().Err(err).Str("file", name).Msg("could not load effect, skipped")
			continue
		}
		key := effectKey{def.Category, def.Name}
		if prev, dup := byKey[key]; dup {
			l.log.Warn().Str("file", name).Str("first", filepath.Base(prev.Path)).
				Str("category", def.Category).Str("effect", def.Name).Msg("duplicate effect, skipped")
			continue
		}
		byKey[key] = def

		effect := protocol.Effect{Name: def.Name, Description: def.Description}
		if i, ok := position[def.Category]; ok {
			catalog[i].Effects = append(catalog[i].Effects, effect)
			continue
		}
		position[def.Category] = len(catalog)
		catalog = append(catalog, protocol.Category{Name: def.Category, Effects: []protocol.Effect{effect}})
	}

	l.mu.Lock()
	l.byKey = byKey
	l.catalog = catalog
	l.mu.Unlock()

	l.log.Info().Str("folder", l.dir).Int("categories", len(catalog)).Int("effects", catalog.EffectCount()).Msg("indexed effects")
	return catalog.Clone(), nil
}

// Catalog returns the catalog from the last successful Reload.
func (l *Library) Catalog() protocol.Catalog {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.catalog.Clone()
}

func (l *Library) Lookup(category, name string) (Definition, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	def, ok := l.byKey[effectKey{category, name}]
	return def, ok
}

// Resolve makes a path from a definition relative to the library folder.
func (l *Library) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.dir, path)
}
