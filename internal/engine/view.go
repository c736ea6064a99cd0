package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/btree"

	"github.com/strata-db/strata/internal/logger"
)

// viewKey is one entry of the ordered view index: an emitted key pointing at
// the document it came from.
type viewKey struct {
	Key   string
	DocID string
}

func viewKeyLess(a, b viewKey) bool {
	if a.Key != b.Key {
		return a.Key < b.Key
	}
	return a.DocID < b.DocID
}

// viewRow tracks the current emitted row for a document.
type viewRow struct {
	key  string
	size int64 // framed size of the row's record on disk
}

// View is a secondary index over one document field. The index itself lives
// in memory (an ordered btree); the view file persists emitted rows in the
// same append-only record format as database files, so it fragments as
// documents change and is compacted the same way.
type View struct {
	db    *Database
	name  string
	field string
	path  string
	log   *logger.Logger

	mu       sync.RWMutex
	file     *os.File
	fileSize int64
	dataSize int64
	tree     *btree.BTreeG[viewKey]
	rows     map[string]viewRow // doc id -> current row
	builtSeq uint64

	compactMu sync.Mutex
}

// DefineView creates (or reopens) a view indexing the given document field.
func (d *Database) DefineView(name, field string) (*View, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if v, ok := d.views[name]; ok {
		if v.field != field {
			return nil, fmt.Errorf("%w: %s indexes field %q", ErrViewExists, name, v.field)
		}
		return v, nil
	}

	path := filepath.Join(filepath.Dir(d.path), d.name+"."+name+".view")
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open view %s/%s: %w", d.name, name, err)
	}

	v := &View{
		db:    d,
		name:  name,
		field: field,
		path:  path,
		log:   d.log.With(logger.Field{Key: "view", Value: name}),
		file:  file,
		tree:  btree.NewG(16, viewKeyLess),
		rows:  make(map[string]viewRow),
	}
	if err := v.recover(); err != nil {
		file.Close()
		return nil, err
	}

	d.views[name] = v
	return v, nil
}

// View returns a previously defined view.
func (d *Database) View(name string) (*View, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	v, ok := d.views[name]
	if !ok {
		return nil, ErrViewNotFound
	}
	return v, nil
}

// ListViews returns the names of the database's views, sorted.
func (d *Database) ListViews() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.views))
	for name := range d.views {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// recover replays the view file. Row records use the document id as record id
// and the emitted key as body; a later record for the same document
// supersedes the earlier one.
func (v *View) recover() error {
	valid, err := scanRecords(v.file, func(off, size int64, rec *record) error {
		if rec.Seq > v.builtSeq {
			v.builtSeq = rec.Seq
		}
		if prev, ok := v.rows[rec.ID]; ok {
			v.tree.Delete(viewKey{Key: prev.key, DocID: rec.ID})
			v.dataSize -= prev.size
			delete(v.rows, rec.ID)
		}
		if rec.Deleted {
			return nil
		}
		key := string(rec.Body)
		v.tree.ReplaceOrInsert(viewKey{Key: key, DocID: rec.ID})
		v.rows[rec.ID] = viewRow{key: key, size: size}
		v.dataSize += size
		return nil
	})
	if err != nil {
		return fmt.Errorf("recover view %s/%s: %w", v.db.name, v.name, err)
	}

	info, err := v.file.Stat()
	if err != nil {
		return err
	}
	if valid < info.Size() {
		if err := v.file.Truncate(valid); err != nil {
			return err
		}
	}
	if _, err := v.file.Seek(valid, 0); err != nil {
		return err
	}
	v.fileSize = valid
	return nil
}

// Update brings the view up to date with the database: changed documents get
// a fresh row appended (superseding the old one in place in the index),
// removed documents get a tombstone row.
func (v *View) Update() error {
	// Record reads stay under the database read lock: a concurrent
	// compaction swaps and closes the file handle under the write lock, and
	// the copied offsets are only valid against the handle they came from.
	v.db.mu.RLock()
	entries := v.db.collectAfter(0)
	seq := v.db.updateSeq

	emitted := make(map[string]string, len(entries))
	for _, it := range entries {
		rec, _, err := readRecordAt(v.db.file, it.entry.offset)
		if err != nil {
			v.db.mu.RUnlock()
			return fmt.Errorf("update view %s/%s: %w", v.db.name, v.name, err)
		}
		key, ok := extractField(rec.Body, v.field)
		if !ok {
			continue
		}
		emitted[it.id] = key
	}
	v.db.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	for id, key := range emitted {
		prev, ok := v.rows[id]
		if ok && prev.key == key {
			continue
		}
		n, err := writeRecord(v.file, &record{ID: id, Seq: seq, Body: []byte(key)})
		if err != nil {
			return err
		}
		if ok {
			v.tree.Delete(viewKey{Key: prev.key, DocID: id})
			v.dataSize -= prev.size
		}
		v.tree.ReplaceOrInsert(viewKey{Key: key, DocID: id})
		v.rows[id] = viewRow{key: key, size: n}
		v.fileSize += n
		v.dataSize += n
	}

	for id, prev := range v.rows {
		if _, ok := emitted[id]; ok {
			continue
		}
		n, err := writeRecord(v.file, &record{ID: id, Seq: seq, Deleted: true})
		if err != nil {
			return err
		}
		v.tree.Delete(viewKey{Key: prev.key, DocID: id})
		delete(v.rows, id)
		v.fileSize += n
		v.dataSize -= prev.size
	}

	v.builtSeq = seq
	return nil
}

// Lookup returns the ids of documents whose emitted key equals key, in
// document id order.
func (v *View) Lookup(key string) []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var ids []string
	v.tree.AscendGreaterOrEqual(viewKey{Key: key}, func(it viewKey) bool {
		if it.Key != key {
			return false
		}
		ids = append(ids, it.DocID)
		return true
	})
	return ids
}

// Len returns the number of rows in the view.
func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.tree.Len()
}

// Name returns the view name.
func (v *View) Name() string {
	return v.name
}

// Info returns current size accounting for the view file.
func (v *View) Info() SizeInfo {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return SizeInfo{FileSize: v.fileSize, DataSize: v.dataSize}
}

// Compact rewrites the view file keeping one row per document. The in-memory
// index stays queryable throughout; rows written while the snapshot is copied
// are caught up under the write lock before the swap.
func (v *View) Compact(ctx context.Context) error {
	v.compactMu.Lock()
	defer v.compactMu.Unlock()

	v.mu.RLock()
	snapshot := make(map[string]viewRow, len(v.rows))
	for id, row := range v.rows {
		snapshot[id] = row
	}
	seq := v.builtSeq
	v.mu.RUnlock()

	tmpPath := v.path + ".compact"
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("compact view %s/%s: %w", v.db.name, v.name, err)
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	newRows := make(map[string]viewRow, len(snapshot))
	var tmpSize int64

	appendRow := func(id, key string) error {
		n, err := writeRecord(tmp, &record{ID: id, Seq: seq, Body: []byte(key)})
		if err != nil {
			return err
		}
		newRows[id] = viewRow{key: key, size: n}
		tmpSize += n
		return nil
	}

	for id, row := range snapshot {
		if err := ctx.Err(); err != nil {
			cleanup()
			return err
		}
		if err := appendRow(id, row.key); err != nil {
			cleanup()
			return fmt.Errorf("compact view %s/%s: %w", v.db.name, v.name, err)
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	// Catch up rows that changed while the snapshot was written.
	for id, cur := range v.rows {
		if prev, ok := snapshot[id]; ok && prev.key == cur.key {
			continue
		}
		if err := appendRow(id, cur.key); err != nil {
			cleanup()
			return fmt.Errorf("compact view %s/%s: %w", v.db.name, v.name, err)
		}
	}
	for id := range snapshot {
		if _, ok := v.rows[id]; ok {
			continue
		}
		n, err := writeRecord(tmp, &record{ID: id, Seq: seq, Deleted: true})
		if err != nil {
			cleanup()
			return fmt.Errorf("compact view %s/%s: %w", v.db.name, v.name, err)
		}
		tmpSize += n
		delete(newRows, id)
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("compact view %s/%s: %w", v.db.name, v.name, err)
	}
	if err := os.Rename(tmpPath, v.path); err != nil {
		cleanup()
		return fmt.Errorf("compact view %s/%s: %w", v.db.name, v.name, err)
	}

	old := v.file
	v.file = tmp
	old.Close()

	var dataSize int64
	rows := make(map[string]viewRow, len(newRows))
	for id, row := range newRows {
		final := viewRow{key: v.rows[id].key, size: row.size}
		rows[id] = final
		dataSize += final.size
	}
	v.rows = rows
	v.fileSize = tmpSize
	v.dataSize = dataSize

	v.log.Info("view compacted",
		logger.Field{Key: "file_size", Value: v.fileSize},
		logger.Field{Key: "data_size", Value: v.dataSize})
	return nil
}

func (v *View) close() {
	v.file.Sync()
	v.file.Close()
}

// extractField pulls a field out of a JSON document body and renders it as
// the view key. Documents without the field emit nothing.
func extractField(body []byte, field string) (string, bool) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", false
	}
	value, ok := doc[field]
	if !ok || value == nil {
		return "", false
	}
	switch t := value.(type) {
	case string:
		return t, true
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(raw), true
	}
}
