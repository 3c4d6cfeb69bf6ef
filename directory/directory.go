// ABOUTME: Registry of contact directories with a package rescan and a read cache
// ABOUTME: Rows 0 and 1 are the built-in local directories and are never removed
package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/logctx"
	"github.com/harperreed/roster/models"
)

// PackageDirectories is what one installed package advertises.
type PackageDirectories struct {
	PackageName string             `json:"package"`
	Directories []models.Directory `json:"directories"`
}

// PackageScanner discovers directory providers.
type PackageScanner interface {
	Scan(ctx context.Context) ([]PackageDirectories, error)
}

// StaticScanner reports a fixed set of packages, typically from configuration.
type StaticScanner []PackageDirectories

func (s StaticScanner) Scan(context.Context) ([]PackageDirectories, error) {
	return s, nil
}

// ScanResult counts the rows a rescan touched.
type ScanResult struct {
	Upserted int
	Deleted  int
}

type Registry struct {
	scanner PackageScanner

	mu     sync.RWMutex
	cache  map[int64]models.Directory
	loaded bool
}

func NewRegistry(scanner PackageScanner) *Registry {
	if scanner == nil {
		scanner = StaticScanner(nil)
	}
	return &Registry{scanner: scanner}
}

// Invalidate drops the cache; the next read reloads from the table.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = nil
	r.loaded = false
}

// Rescan upserts every advertised directory and deletes external rows no
// package advertises any more.
func (r *Registry) Rescan(ctx context.Context, q db.Querier) (ScanResult, error) {
	pkgs, err := r.scanner.Scan(ctx)
	if err != nil {
		return ScanResult{}, fmt.Errorf("failed to scan directory packages: %w", err)
	}
	res, err := r.apply(ctx, q, pkgs, "")
	if err != nil {
		return res, err
	}
	if err := db.SetProperty(ctx, q, db.PropDirectoryScanComplete, "1"); err != nil {
		return res, err
	}
	logger := logctx.FromContext(ctx)
	logger.Info().
		Int("upserted", res.Upserted).
		Int("deleted", res.Deleted).
		Msg("directory rescan complete")
	return res, nil
}

// RescanPackage refreshes the rows of one package, for example after it was
// installed, updated or removed.
func (r *Registry) RescanPackage(ctx context.Context, q db.Querier, packageName string) (ScanResult, error) {
	pkgs, err := r.scanner.Scan(ctx)
	if err != nil {
		return ScanResult{}, fmt.Errorf("failed to scan directory packages: %w", err)
	}
	var only []PackageDirectories
	for _, p := range pkgs {
		if p.PackageName == packageName {
			only = append(only, p)
		}
	}
	return r.apply(ctx, q, only, packageName)
}

// ScanComplete reports whether a full rescan has ever finished.
func ScanComplete(ctx context.Context, q db.Querier) (bool, error) {
	v, err := db.GetProperty(ctx, q, db.PropDirectoryScanComplete, "0")
	return v == "1", err
}

// apply writes pkgs and removes stale rows. With onlyPackage set, only that
// package's rows are candidates for removal.
func (r *Registry) apply(ctx context.Context, q db.Querier, pkgs []PackageDirectories, onlyPackage string) (ScanResult, error) {
	defer r.Invalidate()

	var res ScanResult
	keep := make(map[int64]bool)
	for _, p := range pkgs {
		for _, d := range p.Directories {
			if d.Authority == "" {
				return res, models.ValidationErrorf("directory from package %q has no authority", p.PackageName)
			}
			id, err := upsertDirectory(ctx, q, p.PackageName, d)
			if err != nil {
				return res, err
			}
			keep[id] = true
			res.Upserted++
		}
	}

	query := `SELECT _id FROM directories WHERE _id >= ?`
	args := []any{models.FirstRemoteDirectoryID}
	if onlyPackage != "" {
		query += ` AND package_name = ?`
		args = append(args, onlyPackage)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return res, fmt.Errorf("failed to list directories: %w", err)
	}
	var stale []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return res, err
		}
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return res, err
	}

	for _, id := range stale {
		if _, err := q.ExecContext(ctx, `DELETE FROM directories WHERE _id = ?`, id); err != nil {
			return res, fmt.Errorf("failed to delete directory %d: %w", id, err)
		}
		res.Deleted++
	}
	return res, nil
}

func upsertDirectory(ctx context.Context, q db.Querier, pkg string, d models.Directory) (int64, error) {
	_, err := q.ExecContext(ctx, `
		INSERT INTO directories (_id, package_name, authority, account_name, account_type, display_name,
			export_support, shortcut_support, photo_support)
		VALUES ((SELECT MAX(MAX(_id) + 1, ?) FROM directories), ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(package_name, authority, account_name, account_type) DO UPDATE SET
			display_name = excluded.display_name,
			export_support = excluded.export_support,
			shortcut_support = excluded.shortcut_support,
			photo_support = excluded.photo_support
	`, models.FirstRemoteDirectoryID, pkg, d.Authority, d.AccountName, d.AccountType, nullable(d.DisplayName),
		d.ExportSupport, d.ShortcutSupport, d.PhotoSupport)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert directory %s/%s: %w", pkg, d.Authority, err)
	}
	var id int64
	err = q.QueryRowContext(ctx, `
		SELECT _id FROM directories
		WHERE package_name = ? AND authority = ? AND account_name = ? AND account_type = ?
	`, pkg, d.Authority, d.AccountName, d.AccountType).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read directory id: %w", err)
	}
	return id, nil
}

func (r *Registry) load(ctx context.Context, q db.Querier) (map[int64]models.Directory, error) {
	r.mu.RLock()
	if r.loaded {
		c := r.cache
		r.mu.RUnlock()
		return c, nil
	}
	r.mu.RUnlock()

	rows, err := q.QueryContext(ctx, `
		SELECT _id, package_name, authority, account_name, account_type, IFNULL(display_name, ''),
			export_support, shortcut_support, photo_support
		FROM directories
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load directories: %w", err)
	}
	defer rows.Close()

	cache := make(map[int64]models.Directory)
	for rows.Next() {
		var d models.Directory
		if err := rows.Scan(&d.ID, &d.PackageName, &d.Authority, &d.AccountName, &d.AccountType, &d.DisplayName,
			&d.ExportSupport, &d.ShortcutSupport, &d.PhotoSupport); err != nil {
			return nil, err
		}
		cache[d.ID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache = cache
	r.loaded = true
	r.mu.Unlock()
	return cache, nil
}

// Resolve returns the directory with id, or false when there is none.
func (r *Registry) Resolve(ctx context.Context, q db.Querier, id int64) (models.Directory, bool, error) {
	cache, err := r.load(ctx, q)
	if err != nil {
		return models.Directory{}, false, err
	}
	d, ok := cache[id]
	return d, ok, nil
}

// List returns all directories in id order.
func (r *Registry) List(ctx context.Context, q db.Querier) ([]models.Directory, error) {
	cache, err := r.load(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]models.Directory, 0, len(cache))
	for _, d := range cache {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
