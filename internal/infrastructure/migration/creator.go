package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"
)

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

var migrationTemplate = template.Must(template.New("migration").Parse(`-- {{.Direction}}: {{.Name}}
-- Created: {{.Created}}

`))

// Entry is one numbered migration pair
type Entry struct {
	Version uint
	Name    string
	HasDown bool
}

// FileName returns the base name shared by the up and down files
func (e Entry) FileName() string {
	return fmt.Sprintf("%06d_%s", e.Version, e.Name)
}

// Created describes a freshly written migration pair
type Created struct {
	Entry
	UpPath   string
	DownPath string
}

// Create writes an empty up/down pair into dir, numbered after the highest existing version
func Create(dir, name string) (*Created, error) {
	name = sanitizeName(name)
	if name == "" {
		return nil, errors.New("migration name must contain letters or digits")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create migrations directory: %w", err)
	}

	existing, err := List(os.DirFS(dir))
	if err != nil {
		return nil, err
	}
	var next uint = 1
	if len(existing) > 0 {
		next = existing[len(existing)-1].Version + 1
	}

	c := &Created{Entry: Entry{Version: next, Name: name, HasDown: true}}
	c.UpPath = filepath.Join(dir, c.FileName()+upSuffix)
	c.DownPath = filepath.Join(dir, c.FileName()+downSuffix)

	created := time.Now().UTC().Format(time.RFC3339)
	if err := writeTemplate(c.UpPath, "up", name, created); err != nil {
		return nil, err
	}
	if err := writeTemplate(c.DownPath, "down", name, created); err != nil {
		_ = os.Remove(c.UpPath)
		return nil, err
	}
	return c, nil
}

func writeTemplate(path, direction, name, created string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	data := struct{ Direction, Name, Created string }{direction, name, created}
	if err := migrationTemplate.Execute(f, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// List returns the migrations in fsys ordered by version.
// Files that do not follow NNNNNN_name.{up,down}.sql are ignored.
func List(fsys fs.FS) ([]Entry, error) {
	files, err := fs.ReadDir(fsys, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	byVersion := make(map[uint]*Entry)
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		base, down := strings.CutSuffix(f.Name(), downSuffix)
		if !down {
			var up bool
			if base, up = strings.CutSuffix(f.Name(), upSuffix); !up {
				continue
			}
		}
		num, name, ok := strings.Cut(base, "_")
		if !ok {
			continue
		}
		version, err := strconv.ParseUint(num, 10, 64)
		if err != nil {
			continue
		}

		e, seen := byVersion[uint(version)]
		if !seen {
			e = &Entry{Version: uint(version), Name: name}
			byVersion[uint(version)] = e
		}
		if down {
			e.HasDown = true
		}
	}

	entries := make([]Entry, 0, len(byVersion))
	for _, e := range byVersion {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Version < entries[j].Version })
	return entries, nil
}

// sanitizeName lowercases name and joins its alphanumeric runs with underscores
func sanitizeName(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, c := range strings.ToLower(name) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(c)
		case c == ' ' || c == '-' || c == '_':
			pendingSep = true
		}
	}
	return b.String()
}
