package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/huandu/skiplist"

	"github.com/strata-db/strata/internal/logger"
)

// SizeInfo reports a unit's size accounting: the file size on disk and the
// bytes occupied by live data. The difference is reclaimable garbage from
// superseded revisions and tombstoned documents.
type SizeInfo struct {
	FileSize int64
	DataSize int64
}

// Document is a revisioned document stored in a database.
type Document struct {
	ID   string
	Rev  uint32
	Body []byte
}

// indexEntry locates the current revision of a document in the data file.
type indexEntry struct {
	offset int64
	size   int64 // framed size on disk
	rev    uint32
	seq    uint64
}

// Database is an append-only document store. Updates append a new record and
// supersede the previous one in place in the in-memory index; superseded
// records stay in the file as garbage until compaction rewrites it.
type Database struct {
	name string
	path string
	log  *logger.Logger

	mu        sync.RWMutex
	file      *os.File
	fileSize  int64
	dataSize  int64
	updateSeq uint64
	index     *skiplist.SkipList // doc id -> indexEntry
	views     map[string]*View

	// compactMu serializes compactions of this database file. The daemon's
	// in-progress set already guarantees at most one, this is the engine's
	// own line of defense for direct callers.
	compactMu sync.Mutex
}

func openDatabase(dataDir, name string, log *logger.Logger) (*Database, error) {
	path := filepath.Join(dataDir, name+".strata")

	file, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrDatabaseNotFound
		}
		return nil, fmt.Errorf("open database %s: %w", name, err)
	}

	db := &Database{
		name:  name,
		path:  path,
		log:   log.With(logger.Field{Key: "db", Value: name}),
		file:  file,
		index: skiplist.New(skiplist.String),
		views: make(map[string]*View),
	}
	if err := db.recover(); err != nil {
		file.Close()
		return nil, err
	}
	return db, nil
}

func createDatabase(dataDir, name string, log *logger.Logger) (*Database, error) {
	path := filepath.Join(dataDir, name+".strata")

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrDatabaseExists
		}
		return nil, fmt.Errorf("create database %s: %w", name, err)
	}

	return &Database{
		name:  name,
		path:  path,
		log:   log.With(logger.Field{Key: "db", Value: name}),
		file:  file,
		index: skiplist.New(skiplist.String),
		views: make(map[string]*View),
	}, nil
}

// recover rebuilds the in-memory index from the data file, truncating any
// torn tail left by an interrupted write.
func (d *Database) recover() error {
	valid, err := scanRecords(d.file, func(off, size int64, rec *record) error {
		if rec.Seq > d.updateSeq {
			d.updateSeq = rec.Seq
		}
		if prev, ok := d.lookup(rec.ID); ok {
			d.dataSize -= prev.size
		}
		if rec.Deleted {
			d.index.Remove(rec.ID)
			return nil
		}
		d.index.Set(rec.ID, indexEntry{offset: off, size: size, rev: rec.Rev, seq: rec.Seq})
		d.dataSize += size
		return nil
	})
	if err != nil {
		return fmt.Errorf("recover database %s: %w", d.name, err)
	}

	info, err := d.file.Stat()
	if err != nil {
		return err
	}
	if valid < info.Size() {
		d.log.Warn("truncating torn tail",
			logger.Field{Key: "valid_bytes", Value: valid},
			logger.Field{Key: "file_bytes", Value: info.Size()})
		if err := d.file.Truncate(valid); err != nil {
			return fmt.Errorf("truncate database %s: %w", d.name, err)
		}
	}
	if _, err := d.file.Seek(valid, 0); err != nil {
		return err
	}
	d.fileSize = valid
	return nil
}

func (d *Database) lookup(id string) (indexEntry, bool) {
	elem := d.index.Get(id)
	if elem == nil {
		return indexEntry{}, false
	}
	return elem.Value.(indexEntry), true
}

// Name returns the database name.
func (d *Database) Name() string {
	return d.name
}

// Put writes a document revision and returns the new revision number.
func (d *Database) Put(id string, body []byte) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var rev uint32 = 1
	prev, existed := d.lookup(id)
	if existed {
		rev = prev.rev + 1
	}

	d.updateSeq++
	rec := &record{ID: id, Rev: rev, Seq: d.updateSeq, Body: body}
	n, err := writeRecord(d.file, rec)
	if err != nil {
		return 0, err
	}

	d.index.Set(id, indexEntry{offset: d.fileSize, size: n, rev: rev, seq: d.updateSeq})
	d.fileSize += n
	if existed {
		d.dataSize -= prev.size
	}
	d.dataSize += n
	return rev, nil
}

// Get reads the current revision of a document. The read happens under the
// read lock: compaction swaps and closes the file handle under the write
// lock, so a released handle is never read.
func (d *Database) Get(id string) (Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.lookup(id)
	if !ok {
		return Document{}, ErrDocumentNotFound
	}

	rec, _, err := readRecordAt(d.file, entry.offset)
	if err != nil {
		return Document{}, fmt.Errorf("read document %s: %w", id, err)
	}
	return Document{ID: rec.ID, Rev: rec.Rev, Body: rec.Body}, nil
}

// Delete tombstones a document.
func (d *Database) Delete(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, ok := d.lookup(id)
	if !ok {
		return ErrDocumentNotFound
	}

	d.updateSeq++
	rec := &record{ID: id, Rev: prev.rev + 1, Seq: d.updateSeq, Deleted: true}
	n, err := writeRecord(d.file, rec)
	if err != nil {
		return err
	}

	d.index.Remove(id)
	d.fileSize += n
	d.dataSize -= prev.size
	return nil
}

// Info returns current size accounting for the database file.
func (d *Database) Info() SizeInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return SizeInfo{FileSize: d.fileSize, DataSize: d.dataSize}
}

// UpdateSeq returns the database's update sequence number.
func (d *Database) UpdateSeq() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.updateSeq
}

// DocCount returns the number of live documents.
func (d *Database) DocCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.index.Len()
}

func (d *Database) close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, v := range d.views {
		v.close()
	}
	if err := d.file.Sync(); err != nil {
		return err
	}
	return d.file.Close()
}
