package database

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
)

// Migration is one numbered pair of up/down SQL scripts.
type Migration struct {
	Version    int
	Name       string
	UpScript   string
	DownScript string
}

func (m Migration) String() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrations is loaded at init; a malformed embedded set is a build
// mistake, so it panics rather than starting with a partial schema.
var migrations = mustLoad(migrationFS, "migrations")

var upScriptName = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.up\.sql$`)

func mustLoad(fsys fs.FS, dir string) []Migration {
	out, err := LoadMigrations(fsys, dir)
	if err != nil {
		panic(fmt.Sprintf("embedded migrations: %v", err))
	}
	return out
}

// LoadMigrations reads NNNNNN_name.up.sql files from dir, each with a
// matching .down.sql. Other files are ignored. The result is sorted by
// version; two files claiming one version is an error.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	ups, err := fs.Glob(fsys, path.Join(dir, "*.up.sql"))
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int]Migration, len(ups))
	for _, up := range ups {
		match := upScriptName.FindStringSubmatch(path.Base(up))
		if match == nil {
			return nil, fmt.Errorf("migration %s: name must look like 000001_name.up.sql", path.Base(up))
		}
		version, err := strconv.Atoi(match[1])
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", path.Base(up), err)
		}
		m := Migration{Version: version, Name: match[2]}
		if prev, dup := byVersion[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %06d (%s and %s)", version, prev.Name, m.Name)
		}

		if m.UpScript, err = readScript(fsys, up); err != nil {
			return nil, err
		}
		down := path.Join(dir, fmt.Sprintf("%s_%s.down.sql", match[1], match[2]))
		if m.DownScript, err = readScript(fsys, down); err != nil {
			return nil, err
		}
		byVersion[version] = m
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func readScript(fsys fs.FS, name string) (string, error) {
	b, err := fs.ReadFile(fsys, name)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path.Base(name), err)
	}
	return string(b), nil
}

// GetMigrations returns the embedded migrations in version order.
func GetMigrations() []Migration {
	return migrations
}

// GetMigrationByVersion returns nil when version is unknown.
func GetMigrationByVersion(version int) *Migration {
	i := sort.Search(len(migrations), func(i int) bool { return migrations[i].Version >= version })
	if i < len(migrations) && migrations[i].Version == version {
		return &migrations[i]
	}
	return nil
}
