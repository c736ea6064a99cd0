package engine

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/huandu/skiplist"

	"github.com/strata-db/strata/internal/logger"
)

// liveEntry pairs a document id with its index entry for copying.
type liveEntry struct {
	id    string
	entry indexEntry
}

// Compact rewrites the database file keeping only live records. The rewrite
// is online: readers and writers proceed against the old file while live
// records are copied in passes, each pass picking up records written since
// the previous one. Only the final catch-up and the file swap run under the
// write lock, so the stall is bounded by the write rate, not the file size.
// On any failure the original file is left untouched.
func (d *Database) Compact(ctx context.Context) error {
	d.compactMu.Lock()
	defer d.compactMu.Unlock()

	tmpPath := d.path + ".compact"
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("compact %s: %w", d.name, err)
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	copied := make(map[string]indexEntry)
	var tmpSize int64

	appendLive := func(src *os.File, it liveEntry) error {
		rec, _, err := readRecordAt(src, it.entry.offset)
		if err != nil {
			return err
		}
		n, err := writeRecord(tmp, rec)
		if err != nil {
			return err
		}
		copied[it.id] = indexEntry{offset: tmpSize, size: n, rev: it.entry.rev, seq: it.entry.seq}
		tmpSize += n
		return nil
	}

	// Copy passes without the write lock. Records appended concurrently get
	// picked up by the next pass via the update sequence watermark.
	var watermark uint64
	for {
		if err := ctx.Err(); err != nil {
			cleanup()
			return err
		}

		d.mu.RLock()
		batch := d.collectAfter(watermark)
		seq := d.updateSeq
		src := d.file
		d.mu.RUnlock()

		if len(batch) == 0 {
			break
		}
		for _, it := range batch {
			if err := ctx.Err(); err != nil {
				cleanup()
				return err
			}
			if err := appendLive(src, it); err != nil {
				cleanup()
				return fmt.Errorf("compact %s: %w", d.name, err)
			}
		}
		watermark = seq
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Final catch-up with writers blocked.
	for _, it := range d.collectAfter(watermark) {
		if err := appendLive(d.file, it); err != nil {
			cleanup()
			return fmt.Errorf("compact %s: %w", d.name, err)
		}
	}

	// Documents deleted while the copy ran were copied live; tombstone them
	// in the new file so a crash-recovery scan does not resurrect them.
	for id, entry := range copied {
		if _, live := d.lookup(id); live {
			continue
		}
		n, err := writeRecord(tmp, &record{ID: id, Rev: entry.rev + 1, Seq: d.updateSeq, Deleted: true})
		if err != nil {
			cleanup()
			return fmt.Errorf("compact %s: %w", d.name, err)
		}
		tmpSize += n
		delete(copied, id)
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("compact %s: %w", d.name, err)
	}
	if err := os.Rename(tmpPath, d.path); err != nil {
		cleanup()
		return fmt.Errorf("compact %s: %w", d.name, err)
	}

	// The rename made tmp's inode the database file; adopt its handle as the
	// append handle and retire the old one.
	old := d.file
	d.file = tmp
	old.Close()

	index := skiplist.New(skiplist.String)
	var dataSize int64
	for id, entry := range copied {
		index.Set(id, entry)
		dataSize += entry.size
	}
	d.index = index
	d.fileSize = tmpSize
	d.dataSize = dataSize

	d.log.Info("database compacted",
		logger.Field{Key: "file_size", Value: d.fileSize},
		logger.Field{Key: "data_size", Value: d.dataSize})
	return nil
}

// collectAfter returns live entries with a sequence above the watermark,
// ordered by file offset for sequential reads. Callers must hold d.mu.
func (d *Database) collectAfter(watermark uint64) []liveEntry {
	var out []liveEntry
	for elem := d.index.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(indexEntry)
		if entry.seq <= watermark {
			continue
		}
		out = append(out, liveEntry{id: elem.Key().(string), entry: entry})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].entry.offset < out[j].entry.offset })
	return out
}
