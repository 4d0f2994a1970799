package state

import (
	"io"

	"github.com/loomharness/loom/pkg/models"
)

// SessionRowStore handles session-related persistence operations.
type SessionRowStore interface {
	CreateSessionRow(s *models.Session) error
	GetSessionRow(id string) (*models.Session, error)
	UpdateSessionRow(s *models.Session) error
	LatestSessionRow() (*models.Session, error)
}

// TaskRowStore handles task-related persistence operations.
type TaskRowStore interface {
	UpsertTask(t *models.Task) error
	GetTaskRow(id string) (*models.Task, error)
	DeleteTaskRow(id string) error
	ListTaskRows(status *models.TaskStatus) ([]*models.Task, error)
}

// DependencyRowStore handles dependency edge persistence.
type DependencyRowStore interface {
	InsertDependency(d *models.Dependency) error
	DeleteDependency(src, dst string, typ models.DependencyType) error
	ListDependencies() ([]*models.Dependency, error)
	ListDependenciesByDst(dst string) ([]*models.Dependency, error)
}

// Migrator handles database schema migrations. Separating this allows
// clients to depend only on migration functionality.
type Migrator interface {
	Migrate() error
}

// StateStore defines the interface for relational state persistence. The
// orchestrator and persistence layer depend on this rather than the
// concrete SQLite implementation.
type StateStore interface {
	io.Closer
	Migrator
	SessionRowStore
	TaskRowStore
	DependencyRowStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ StateStore          = (*DB)(nil)
	_ Migrator             = (*DB)(nil)
	_ SessionRowStore      = (*DB)(nil)
	_ TaskRowStore         = (*DB)(nil)
	_ DependencyRowStore   = (*DB)(nil)
)
