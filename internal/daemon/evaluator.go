package daemon

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnitUnavailable marks a unit that vanished between enumeration and
// evaluation, for example a database deleted concurrently. It excludes the
// unit from the current tick and nothing more.
var ErrUnitUnavailable = errors.New("unit unavailable")

// Engine is the storage engine surface the daemon consumes. The daemon is a
// pure control plane: it reads size accounting and requests compactions, it
// never touches file contents itself.
type Engine interface {
	ListOpenDatabases() []string
	ListViews(db string) ([]string, error)
	DatabaseInfo(db string) (fileSize, dataSize int64, err error)
	ViewInfo(db, view string) (fileSize, dataSize int64, err error)
	CompactDatabase(ctx context.Context, db string) error
	CompactView(ctx context.Context, db, view string) error
}

// Sample is one fresh fragmentation measurement of a unit. Samples are never
// cached across ticks; concurrent writes change them continuously.
type Sample struct {
	Unit          Unit
	FileSize      int64
	DataSize      int64
	Fragmentation int // percentage, 0..100
}

// Evaluator computes fragmentation samples from the engine's size accounting.
type Evaluator struct {
	store Engine
}

// NewEvaluator creates an evaluator reading sizes from store.
func NewEvaluator(store Engine) *Evaluator {
	return &Evaluator{store: store}
}

// Evaluate measures a unit. Units that cannot be read report
// ErrUnitUnavailable with the underlying cause attached.
func (e *Evaluator) Evaluate(u Unit) (Sample, error) {
	var fileSize, dataSize int64
	var err error

	switch u.Kind {
	case UnitView:
		fileSize, dataSize, err = e.store.ViewInfo(u.DB, u.View)
	default:
		fileSize, dataSize, err = e.store.DatabaseInfo(u.DB)
	}
	if err != nil {
		return Sample{}, fmt.Errorf("%w: %s: %v", ErrUnitUnavailable, u, err)
	}

	return Sample{
		Unit:          u,
		FileSize:      fileSize,
		DataSize:      dataSize,
		Fragmentation: FragmentationPct(fileSize, dataSize),
	}, nil
}

// FragmentationPct computes round((file-data)/file*100). A zero-size file has
// no measurable fragmentation, and transiently inconsistent accounting with
// data exceeding file clamps to zero instead of going negative.
func FragmentationPct(fileSize, dataSize int64) int {
	if fileSize <= 0 || dataSize >= fileSize {
		return 0
	}
	garbage := fileSize - dataSize
	return int((garbage*100 + fileSize/2) / fileSize)
}
