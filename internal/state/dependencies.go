package state

import (
	"fmt"

	"github.com/loomharness/loom/pkg/models"
)

// InsertDependency records an edge row. Duplicate (src, dst, type) is
// rejected by the PRIMARY KEY constraint; callers should have already
// validated uniqueness at the store layer (spec.md invariant 6).
func (db *DB) InsertDependency(d *models.Dependency) error {
	_, err := db.Exec(`
		INSERT INTO dependencies (src_id, dst_id, type, weight) VALUES (?, ?, ?, ?)
	`, d.SrcID, d.DstID, string(d.Type), d.Weight)
	if err != nil {
		return fmt.Errorf("insert dependency: %w", err)
	}
	return nil
}

// DeleteDependency removes an edge row.
func (db *DB) DeleteDependency(src, dst string, typ models.DependencyType) error {
	_, err := db.Exec(`
		DELETE FROM dependencies WHERE src_id = ? AND dst_id = ? AND type = ?
	`, src, dst, string(typ))
	if err != nil {
		return fmt.Errorf("delete dependency: %w", err)
	}
	return nil
}

// ListDependencies returns every dependency row, ordered for deterministic
// export.
func (db *DB) ListDependencies() ([]*models.Dependency, error) {
	rows, err := db.Query(`
		SELECT src_id, dst_id, type, weight FROM dependencies ORDER BY src_id, dst_id, type
	`)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	defer rows.Close()

	var out []*models.Dependency
	for rows.Next() {
		var d models.Dependency
		var typ string
		if err := rows.Scan(&d.SrcID, &d.DstID, &typ, &d.Weight); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		d.Type = models.DependencyType(typ)
		out = append(out, &d)
	}
	return out, nil
}

// ListDependenciesByDst returns edges pointing at dst, used to recompute
// blocked_by_count on recovery.
func (db *DB) ListDependenciesByDst(dst string) ([]*models.Dependency, error) {
	rows, err := db.Query(`
		SELECT src_id, dst_id, type, weight FROM dependencies WHERE dst_id = ?
	`, dst)
	if err != nil {
		return nil, fmt.Errorf("list dependencies by dst: %w", err)
	}
	defer rows.Close()

	var out []*models.Dependency
	for rows.Next() {
		var d models.Dependency
		var typ string
		if err := rows.Scan(&d.SrcID, &d.DstID, &typ, &d.Weight); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		d.Type = models.DependencyType(typ)
		out = append(out, &d)
	}
	return out, nil
}
