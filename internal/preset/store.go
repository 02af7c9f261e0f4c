package preset

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/prettymaps-go/prettymaps/internal/logging"
	"github.com/prettymaps-go/prettymaps/internal/params"
)

var extensions = []string{".yaml", ".json"}

// Store manages preset files in a single directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore returns a store rooted at dir. The directory is created on the first save.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("preset directory is empty")
	}
	return &Store{dir: dir, logger: logging.OrDiscard(logger)}, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

// Initialized reports whether the preset directory exists.
func (s *Store) Initialized() (bool, error) {
	info, err := os.Stat(s.dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat preset directory %s: %w", s.dir, err)
	case !info.IsDir():
		return false, fmt.Errorf("preset directory %s is not a directory", s.dir)
	}
	return true, nil
}

// List returns every readable preset sorted by name.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read preset directory %s: %w", s.dir, err)
	}

	seen := make(map[string]bool)
	var out []Summary
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".json" {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ext)
		if seen[name] || ValidateName(name) != nil {
			continue
		}
		seen[name] = true

		p, err := s.Load(name)
		if err != nil {
			s.logger.Warn("skip unreadable preset", "name", name, "error", err)
			out = append(out, Summary{Name: name, Summary: "unreadable: " + err.Error()})
			continue
		}
		out = append(out, Summary{Name: name, Summary: p.Params.Summary()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Load reads the preset called name.
func (s *Store) Load(name string) (Preset, error) {
	if err := ValidateName(name); err != nil {
		return Preset{}, err
	}
	file, err := s.find(name)
	if err != nil {
		return Preset{}, err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return Preset{}, fmt.Errorf("read preset %s: %w", file, err)
	}
	p, err := decode(name, data)
	if err != nil {
		return Preset{}, fmt.Errorf("parse preset %s: %w", file, err)
	}
	return p, nil
}

// Save writes p under name. An existing preset is replaced only when overwrite is set.
func (s *Store) Save(name string, p Preset, overwrite bool) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := params.Validate(p.Params); err != nil {
		return err
	}
	existing, err := s.find(name)
	switch {
	case err == nil && !overwrite:
		return &ExistsError{Name: name}
	case err != nil && !IsNotFound(err):
		return err
	}

	data, err := yaml.Marshal(p.Params)
	if err != nil {
		return fmt.Errorf("encode preset %q: %w", name, err)
	}
	target := s.path(name, ".yaml")
	if err := writeAtomic(target, data); err != nil {
		return fmt.Errorf("write preset %q: %w", name, err)
	}
	// Drop a legacy JSON copy so one file backs the name.
	if existing != "" && existing != target {
		if err := os.Remove(existing); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove old preset file %s: %w", existing, err)
		}
	}
	s.logger.Debug("saved preset", "name", name, "path", target)
	return nil
}

// Delete removes the preset called name.
func (s *Store) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	removed := false
	for _, ext := range extensions {
		err := os.Remove(s.path(name, ext))
		switch {
		case err == nil:
			removed = true
		case !errors.Is(err, os.ErrNotExist):
			return fmt.Errorf("delete preset %q: %w", name, err)
		}
	}
	if !removed {
		return &NotFoundError{Name: name}
	}
	s.logger.Debug("deleted preset", "name", name)
	return nil
}

// Seed installs every *.yaml preset from fsys that the store does not have yet and
// returns the names it installed.
func (s *Store) Seed(fsys fs.FS) ([]string, error) {
	files, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, fmt.Errorf("list seed presets: %w", err)
	}
	var installed []string
	for _, f := range files {
		name := strings.TrimSuffix(path.Base(f), ".yaml")
		data, err := fs.ReadFile(fsys, f)
		if err != nil {
			return installed, fmt.Errorf("read seed preset %s: %w", f, err)
		}
		p, err := decode(name, data)
		if err != nil {
			return installed, fmt.Errorf("parse seed preset %s: %w", f, err)
		}
		if err := s.Save(name, p, false); err != nil {
			if IsExists(err) {
				continue
			}
			return installed, err
		}
		installed = append(installed, name)
	}
	return installed, nil
}

// BuiltinFS returns the embedded presets with the directory prefix stripped.
func BuiltinFS() fs.FS {
	sub, err := fs.Sub(Builtin, "builtin")
	if err != nil {
		panic(err)
	}
	return sub
}

// LoadBuiltin reads an embedded preset without touching the store.
func LoadBuiltin(name string) (Preset, error) {
	data, err := fs.ReadFile(BuiltinFS(), name+".yaml")
	if err != nil {
		return Preset{}, &NotFoundError{Name: name}
	}
	return decode(name, data)
}

func (s *Store) find(name string) (string, error) {
	for _, ext := range extensions {
		p := s.path(name, ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat preset %s: %w", p, err)
		}
	}
	return "", &NotFoundError{Name: name}
}

func (s *Store) path(name, ext string) string {
	return filepath.Join(s.dir, name+ext)
}

func decode(name string, data []byte) (Preset, error) {
	p := Preset{Name: name}
	if len(bytes.TrimSpace(data)) == 0 {
		return p, nil
	}
	if err := yaml.Unmarshal(data, &p.Params); err != nil {
		return Preset{}, err
	}
	return p, nil
}

// writeAtomic writes to a temp file next to target then renames it into place.
func writeAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
