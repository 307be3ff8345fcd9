package lgptune

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
)

// ConfigsDirEnv overrides the configs directory.
const ConfigsDirEnv = "LGP_CONFIGS_DIR"

// Catalog lists the recognized environment names.
type Catalog interface {
	Environments() ([]string, error)
}

// DirCatalog recognizes every subdirectory of Dir that holds a default.toml.
type DirCatalog struct {
	Dir string
}

// Environments implements Catalog. A missing directory yields no names.
func (c DirCatalog) Environments() ([]string, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, err
	}

	var names []string

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		if _, err := os.Stat(filepath.Join(c.Dir, e.Name(), defaultConfigFile)); err == nil {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)

	return names, nil
}

// StaticCatalog is a fixed list of names, kept in the given order.
type StaticCatalog []string

// Environments implements Catalog.
func (c StaticCatalog) Environments() ([]string, error) {
	return append([]string(nil), c...), nil
}

// catalogContains reports whether name is in the catalog, along with every
// recognized name.
func catalogContains(c Catalog, name string) (bool, []string, error) {
	names, err := c.Environments()
	if err != nil {
		return false, nil, err
	}

	for _, n := range names {
		if n == name {
			return true, names, nil
		}
	}

	return false, names, nil
}
