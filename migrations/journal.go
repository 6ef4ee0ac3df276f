// Package migrations locates the dispatch journal schema for each supported
// SQL dialect.
package migrations

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	rendezvous "github.com/goliatone/go-rendezvous"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// JournalTable is created by the first journal migration.
const JournalTable = "rendezvous_dispatch_journal"

const embeddedRoot = "data/sql/migrations"

// JournalSchema is the ordered journal migration set for one dialect.
type JournalSchema struct {
	Dialect  string
	Dir      string
	FS       fs.FS
	Versions []string
}

// Journal returns the embedded journal schema for dialect, which may also be
// a database/sql driver name such as "sqlite3".
func Journal(dialect string) (JournalSchema, error) {
	return JournalFrom(rendezvous.GetMigrationsFS(), dialect)
}

// JournalFrom reads the journal schema for dialect from root. Root holds
// either a data/sql/migrations tree or the postgres files at its top level.
// The sqlite variants always live under a sqlite/ directory.
func JournalFrom(root fs.FS, dialect string) (JournalSchema, error) {
	normalized, err := NormalizeDialect(dialect)
	if err != nil {
		return JournalSchema{}, err
	}
	if root == nil {
		return JournalSchema{}, errors.New("migrations: filesystem is nil")
	}

	dir := "."
	if info, statErr := fs.Stat(root, embeddedRoot); statErr == nil && info.IsDir() {
		dir = embeddedRoot
	}
	if normalized == DialectSQLite {
		dir = path.Join(dir, "sqlite")
	}

	sub := root
	if dir != "." {
		sub, err = fs.Sub(root, dir)
		if err != nil {
			return JournalSchema{}, fmt.Errorf("migrations: resolve %s: %w", dir, err)
		}
	}
	versions, err := pairedVersions(sub)
	if err != nil {
		return JournalSchema{}, fmt.Errorf("migrations: %s journal schema in %q: %w", normalized, dir, err)
	}
	return JournalSchema{
		Dialect:  normalized,
		Dir:      dir,
		FS:       sub,
		Versions: versions,
	}, nil
}

// NormalizeDialect maps dialect and driver aliases onto DialectPostgres or
// DialectSQLite.
func NormalizeDialect(name string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(name)) {
	case DialectSQLite, "sqlite3":
		return DialectSQLite, nil
	case DialectPostgres, "postgresql", "pg":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("migrations: unsupported dialect %q", name)
	}
}

// Up returns the up script for version.
func (s JournalSchema) Up(version string) (string, error) {
	return s.read(version, ".up.sql")
}

// Down returns the down script for version.
func (s JournalSchema) Down(version string) (string, error) {
	return s.read(version, ".down.sql")
}

func (s JournalSchema) read(version string, suffix string) (string, error) {
	if !slices.Contains(s.Versions, version) {
		return "", fmt.Errorf("migrations: unknown %s journal version %q", s.Dialect, version)
	}
	content, err := fs.ReadFile(s.FS, version+suffix)
	if err != nil {
		return "", fmt.Errorf("migrations: read %s%s: %w", version, suffix, err)
	}
	return string(content), nil
}

// pairedVersions lists migrations in order and requires each up script to
// ship a non-empty down script.
func pairedVersions(fsys fs.FS) ([]string, error) {
	ups, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, err
	}
	if len(ups) == 0 {
		return nil, errors.New("no *.up.sql files")
	}
	versions := make([]string, 0, len(ups))
	for _, up := range ups {
		version := strings.TrimSuffix(up, ".up.sql")
		down, readErr := fs.ReadFile(fsys, version+".down.sql")
		if readErr != nil {
			return nil, fmt.Errorf("%s has no down migration", version)
		}
		if strings.TrimSpace(string(down)) == "" {
			return nil, fmt.Errorf("%s down migration is empty", version)
		}
		versions = append(versions, version)
	}
	slices.Sort(versions)
	return versions, nil
}
