// Package migrations exposes the embedded SQL migrations for the sync
// stores, one set per dialect.
package migrations

import (
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	feishu "github.com/goliatone/go-feishu"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	rootDir    = "data/sql/migrations"
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// dialectDirs locates each dialect below rootDir. Postgres files sit at the
// root, sqlite ones in a subdirectory.
var dialectDirs = map[string]string{
	DialectPostgres: ".",
	DialectSQLite:   "sqlite",
}

// DialectForDriver maps a database/sql driver name to its migration dialect.
func DialectForDriver(driver string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(driver)) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("migrations: unsupported driver %q", driver)
	}
}

// Set is the migration directory of one dialect. Names lists the
// migrations in apply order, without the up/down suffix.
type Set struct {
	Dialect string
	Path    string
	FS      fs.FS
	Names   []string
}

// Load reads the sets of every dialect from root, or from the embedded
// files when root is nil. Each migration needs both an up and a down file,
// and every dialect must carry the same migrations.
func Load(root fs.FS) ([]Set, error) {
	if root == nil {
		root = feishu.GetMigrationsFS()
	}
	sets := make([]Set, 0, len(dialectDirs))
	for _, dialect := range []string{DialectPostgres, DialectSQLite} {
		set, err := loadSet(root, dialect)
		if err != nil {
			return nil, err
		}
		if len(sets) > 0 && !slices.Equal(sets[0].Names, set.Names) {
			return nil, fmt.Errorf(
				"migrations: %s set %v differs from %s set %v",
				set.Dialect, set.Names, sets[0].Dialect, sets[0].Names,
			)
		}
		sets = append(sets, set)
	}
	return sets, nil
}

// ForDriver returns the embedded set matching a database/sql driver.
func ForDriver(driver string) (Set, error) {
	dialect, err := DialectForDriver(driver)
	if err != nil {
		return Set{}, err
	}
	sets, err := Load(nil)
	if err != nil {
		return Set{}, err
	}
	for _, set := range sets {
		if set.Dialect == dialect {
			return set, nil
		}
	}
	return Set{}, fmt.Errorf("migrations: no %s set", dialect)
}

func loadSet(root fs.FS, dialect string) (Set, error) {
	dir := path.Join(rootDir, dialectDirs[dialect])
	sub, err := fs.Sub(root, dir)
	if err != nil {
		return Set{}, fmt.Errorf("migrations: open %s: %w", dir, err)
	}
	ups, err := fs.Glob(sub, "*"+upSuffix)
	if err != nil {
		return Set{}, fmt.Errorf("migrations: list %s: %w", dir, err)
	}
	if len(ups) == 0 {
		return Set{}, fmt.Errorf("migrations: %s has no %s files", dir, upSuffix)
	}
	names := make([]string, 0, len(ups))
	for _, up := range ups {
		name := strings.TrimSuffix(up, upSuffix)
		if _, err := fs.Stat(sub, name+downSuffix); err != nil {
			return Set{}, fmt.Errorf("migrations: %s/%s has no down migration", dir, name)
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return Set{Dialect: dialect, Path: dir, FS: sub, Names: names}, nil
}
