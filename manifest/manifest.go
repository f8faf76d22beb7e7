// Package manifest handles ilasm.toml project configuration.
package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up by FindAndLoad.
const FileName = "ilasm.toml"

// ErrUnknownKey is returned when the manifest has keys ilasm does not know.
var ErrUnknownKey = errors.New("unknown manifest key")

// Manifest represents an ilasm.toml project configuration.
type Manifest struct {
	Project   Project   `toml:"project"`
	Source    Source    `toml:"source"`
	Output    Output    `toml:"output"`
	Assembler Assembler `toml:"assembler"`
	Cache     Cache     `toml:"cache"`
	Log       Log       `toml:"log"`

	// Dir is the directory containing the ilasm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures listing locations.
type Source struct {
	Dirs []string `toml:"dirs"`
	Ext  string   `toml:"ext"`
}

// Output configures the image file.
type Output struct {
	Path string `toml:"path"`
	Mmap bool   `toml:"mmap"`
}

// Assembler configures method body assembly.
type Assembler struct {
	InitLocals bool `toml:"init-locals"`
	Workers    int  `toml:"workers"` // 0 means one per CPU
}

// Cache configures the assembled body cache.
type Cache struct {
	Path    string `toml:"path"`
	Enabled bool   `toml:"enabled"`
}

// Log configures logging.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no manifest exists.
func Default(dir string) *Manifest {
	return &Manifest{
		Source:    Source{Dirs: []string{"src"}, Ext: ".il"},
		Output:    Output{Path: "out.ilbi", Mmap: true},
		Assembler: Assembler{InitLocals: true},
		Cache:     Cache{Path: filepath.Join(".ilasm", "cache.db"), Enabled: true},
		Dir:       dir,
	}
}

// Load parses an ilasm.toml file from the given directory. Keys missing
// from the file keep their defaults.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	m := Default(abs)
	md, err := toml.Decode(string(data), m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w in %s: %s", ErrUnknownKey, path, strings.Join(keys, ", "))
	}

	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	if m.Source.Ext == "" {
		m.Source.Ext = ".il"
	} else if !strings.HasPrefix(m.Source.Ext, ".") {
		m.Source.Ext = "." + m.Source.Ext
	}
	if m.Assembler.Workers < 0 {
		return nil, fmt.Errorf("%s: assembler.workers must not be negative", path)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find an ilasm.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// resolve makes p absolute relative to the manifest directory.
func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, m.resolve(d))
	}
	return paths
}

// OutputPath returns the absolute image path.
func (m *Manifest) OutputPath() string {
	return m.resolve(m.Output.Path)
}

// CachePath returns the absolute cache database path.
func (m *Manifest) CachePath() string {
	return m.resolve(m.Cache.Path)
}

// LogPath returns the absolute log file path, or nil to log to stderr.
func (m *Manifest) LogPath() *string {
	if m.Log.File == "" {
		return nil
	}
	p := m.resolve(m.Log.File)
	return &p
}

// SourceFiles lists every listing under the source directories in a
// stable order. Missing directories are skipped.
func (m *Manifest) SourceFiles() ([]string, error) {
	var files []string
	for _, dir := range m.SourceDirPaths() {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) && path == dir {
					return fs.SkipDir
				}
				return err
			}
			if !d.IsDir() && filepath.Ext(path) == m.Source.Ext {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}
