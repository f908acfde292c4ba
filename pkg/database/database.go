// Package database provides the persistent package store backing porter: the
// synced repository package table and the installed package table, kept in
// one SQLite file per profile root. Repository metadata is replaced wholesale
// per repository inside a transaction; install records are single-row
// transactional writes. Readers never observe a partially written row.
package database

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/glorpus-work/porter/pkg/database/migrations"
	"github.com/glorpus-work/porter/pkg/errors"
	"github.com/glorpus-work/porter/pkg/fsutil"
	"github.com/glorpus-work/porter/pkg/model"
)

// DB is the SQLite-backed package database.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the package database under dbDir and
// runs pending migrations. WAL mode keeps concurrent CLI readers consistent
// with a single writer; the busy timeout serializes cross-process writers.
func Open(dbDir string) (*DB, error) {
	if dbDir == "" {
		return nil, errors.Wrap(errors.ErrInvalidPath, "database directory cannot be empty")
	}
	if err := fsutil.EnsureDir(dbDir, fsutil.DirModePrivate); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}

	dbPath := filepath.Join(dbDir, "porter.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}

	d := &DB{db: db, path: dbPath}
	if err := d.migrate(migrations.FS); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

func (d *DB) migrate(fsys embed.FS) error {
	if _, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	if err := d.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			return fmt.Errorf("migration %s has no numeric prefix: %w", name, err)
		}
		if version <= currentVersion {
			continue
		}
		script, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		tx, err := d.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(script)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("applying migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}
	return nil
}

// ReplaceRepoPackages replaces all package records for a repository in one
// transaction: either all new rows become visible or none do.
func (d *DB) ReplaceRepoPackages(ctx context.Context, repoName string, records []model.PackageRecord) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM remote_packages WHERE repo_name = ?", repoName); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO remote_packages (repo_name, pkg_id, name, version, checksum, size, bin_name, origin_url, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	defer func() { _ = stmt.Close() }()

	for _, rec := range records {
		notes, err := json.Marshal(rec.Notes)
		if err != nil {
			return errors.Wrap(errors.ErrDatabase, err.Error())
		}
		if _, err := stmt.ExecContext(ctx,
			repoName, rec.PkgID, rec.Name, rec.Version, rec.Checksum, rec.Size,
			rec.BinName, rec.OriginURL, string(notes),
		); err != nil {
			return errors.Wrapf(errors.ErrDatabase, "inserting package %s: %v", rec.PkgID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

// Filter narrows a package query. Zero values mean "no constraint".
type Filter struct {
	RepoName string
	PkgID    string
	Name     string // exact bare-name match
	Search   string // substring match on name
	// CaseSensitive applies to Search only.
	CaseSensitive bool
	Limit         int
}

// Query returns the remote package records matching the filter, ordered by
// name ascending then semantic version descending, so "latest" queries take
// the first match per name.
func (d *DB) Query(ctx context.Context, f Filter) ([]model.PackageRecord, error) {
	query := `
		SELECT repo_name, pkg_id, name, version, checksum, size, bin_name, origin_url, notes
		FROM remote_packages
	`
	var conds []string
	var args []interface{}
	if f.RepoName != "" {
		conds = append(conds, "repo_name = ?")
		args = append(args, f.RepoName)
	}
	if f.PkgID != "" {
		conds = append(conds, "pkg_id = ?")
		args = append(args, f.PkgID)
	}
	if f.Name != "" {
		conds = append(conds, "name = ?")
		args = append(args, f.Name)
	}
	if f.Search != "" {
		if f.CaseSensitive {
			conds = append(conds, "instr(name, ?) > 0")
			args = append(args, f.Search)
		} else {
			conds = append(conds, "instr(lower(name), lower(?)) > 0")
			args = append(args, f.Search)
		}
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name ASC, version DESC"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	defer func() { _ = rows.Close() }()

	var records []model.PackageRecord
	for rows.Next() {
		var rec model.PackageRecord
		var notes string
		if err := rows.Scan(&rec.RepoName, &rec.PkgID, &rec.Name, &rec.Version, &rec.Checksum,
			&rec.Size, &rec.BinName, &rec.OriginURL, &notes); err != nil {
			return nil, errors.Wrap(errors.ErrDatabase, err.Error())
		}
		if err := json.Unmarshal([]byte(notes), &rec.Notes); err != nil {
			return nil, errors.Wrap(errors.ErrDatabase, err.Error())
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}

	// SQLite compares versions lexically, which misorders 1.10.0 below 1.9.0.
	// Re-rank semantically, then apply the limit.
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Name != records[j].Name {
			return records[i].Name < records[j].Name
		}
		return versionGreater(records[i].Version, records[j].Version)
	})
	if f.Limit > 0 && len(records) > f.Limit {
		records = records[:f.Limit]
	}
	return records, nil
}

// versionGreater reports whether a ranks above b. Versions that do not parse
// as semantic versions compare lexically.
func versionGreater(a, b string) bool {
	av, aerr := version.NewVersion(a)
	bv, berr := version.NewVersion(b)
	if aerr != nil || berr != nil {
		return a > b
	}
	return av.GreaterThan(bv)
}

// RecordInstall inserts or replaces the installed record for a package.
func (d *DB) RecordInstall(ctx context.Context, pkg *model.InstalledPackage) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO installed_packages
		(pkg_id, repo_name, name, version, checksum, install_path, bin_symlink, profile,
		 portable_base, portable_home, portable_config, portable_share, installed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, pkg.PkgID, pkg.RepoName, pkg.Name, pkg.Version, pkg.Checksum, pkg.InstallPath,
		pkg.BinSymlink, pkg.Profile, pkg.PortableBase, pkg.PortableHome, pkg.PortableConfig,
		pkg.PortableShare, pkg.InstalledAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

// RemoveInstall deletes the installed record for pkgID. It reports
// ErrNotInstalled when no row exists.
func (d *DB) RemoveInstall(ctx context.Context, pkgID string) error {
	res, err := d.db.ExecContext(ctx, "DELETE FROM installed_packages WHERE pkg_id = ?", pkgID)
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	if n == 0 {
		return errors.Wrapf(errors.ErrNotInstalled, "package %s", pkgID)
	}
	return nil
}

// FindInstalled returns the installed record for pkgID, or nil when absent.
func (d *DB) FindInstalled(ctx context.Context, pkgID string) (*model.InstalledPackage, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT pkg_id, repo_name, name, version, checksum, install_path, bin_symlink, profile,
		       portable_base, portable_home, portable_config, portable_share, installed_at
		FROM installed_packages WHERE pkg_id = ?
	`, pkgID)
	pkg, err := scanInstalled(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return pkg, nil
}

// ListInstalled returns installed records, optionally filtered by repository,
// ordered by name then version descending. A positive limit caps the result.
func (d *DB) ListInstalled(ctx context.Context, repoName string, limit int) ([]*model.InstalledPackage, error) {
	query := `
		SELECT pkg_id, repo_name, name, version, checksum, install_path, bin_symlink, profile,
		       portable_base, portable_home, portable_config, portable_share, installed_at
		FROM installed_packages
	`
	var args []interface{}
	if repoName != "" {
		query += " WHERE repo_name = ?"
		args = append(args, repoName)
	}
	query += " ORDER BY name ASC, version DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	defer func() { _ = rows.Close() }()

	var pkgs []*model.InstalledPackage
	for rows.Next() {
		pkg, err := scanInstalled(rows)
		if err != nil {
			return nil, errors.Wrap(errors.ErrDatabase, err.Error())
		}
		pkgs = append(pkgs, pkg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return pkgs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstalled(row rowScanner) (*model.InstalledPackage, error) {
	var pkg model.InstalledPackage
	var installedAt string
	if err := row.Scan(&pkg.PkgID, &pkg.RepoName, &pkg.Name, &pkg.Version, &pkg.Checksum,
		&pkg.InstallPath, &pkg.BinSymlink, &pkg.Profile, &pkg.PortableBase, &pkg.PortableHome,
		&pkg.PortableConfig, &pkg.PortableShare, &installedAt); err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, installedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing installed_at: %w", err)
	}
	pkg.InstalledAt = ts
	return &pkg, nil
}
