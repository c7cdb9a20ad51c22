// Package flush implements the flush operation that writes an immutable
// memtable out to an SST file.
//
// This package is internal and not part of the public API.
package flush

import (
	"errors"
	"fmt"

	"github.com/aalhour/rockyardkv/internal/dbformat"
	"github.com/aalhour/rockyardkv/internal/manifest"
	"github.com/aalhour/rockyardkv/internal/memtable"
	"github.com/aalhour/rockyardkv/internal/table"
	"github.com/aalhour/rockyardkv/internal/vfs"
)

// ErrNoOutput is returned when a flush produces no output (empty memtable).
var ErrNoOutput = errors.New("flush: no output")

// DB is the interface that flush jobs require from the database.
type DB interface {
	// NextFileNumber allocates and returns the next file number.
	NextFileNumber() uint64

	// SSTFilePath returns the full path for an SST file with the given number.
	SSTFilePath(fileNum uint64) string

	// FS returns the virtual file system.
	FS() vfs.FS

	// DBPath returns the database directory path.
	DBPath() string

	// ComparatorName returns the name of the comparator.
	ComparatorName() string
}

// Job flushes a memtable to an SST file.
type Job struct {
	db DB

	// The memtable being flushed
	mem *memtable.MemTable

	// Output file number
	fileNum uint64
}

// NewJob creates a new flush job for the given memtable.
func NewJob(db DB, mem *memtable.MemTable) *Job {
	return &Job{
		db:  db,
		mem: mem,
	}
}

// Run executes the flush job.
// Returns the metadata of the created SST file, or an error.
func (fj *Job) Run() (*manifest.FileMetaData, error) {
	fj.fileNum = fj.db.NextFileNumber()
	sstPath := fj.db.SSTFilePath(fj.fileNum)

	file, err := fj.db.FS().Create(sstPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create SST file: %w", err)
	}
	defer func() { _ = file.Close() }()

	opts := table.DefaultBuilderOptions()
	opts.ComparatorName = fj.db.ComparatorName()
	builder := table.NewTableBuilder(file, opts)

	iter := fj.mem.NewIterator()
	var firstKey, lastKey []byte
	var smallestSeq, largestSeq dbformat.SequenceNumber

	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		key := iter.Key()
		value := iter.Value()

		isDeletion := dbformat.ExtractValueType(key) == dbformat.TypeDeletion
		if err := builder.Add(key, value, isDeletion); err != nil {
			builder.Abandon()
			return nil, fmt.Errorf("failed to add entry to SST: %w", err)
		}

		seq := dbformat.ExtractSequenceNumber(key)
		if firstKey == nil {
			firstKey = append([]byte{}, key...)
			smallestSeq = seq
		}
		lastKey = append(lastKey[:0], key...)
		if seq < smallestSeq {
			smallestSeq = seq
		}
		if seq > largestSeq {
			largestSeq = seq
		}
	}

	if err := iter.Error(); err != nil {
		builder.Abandon()
		return nil, fmt.Errorf("memtable iteration error: %w", err)
	}

	if builder.NumEntries() == 0 {
		builder.Abandon()
		_ = fj.db.FS().Remove(sstPath) // Best-effort cleanup
		return nil, ErrNoOutput
	}

	if err := builder.Finish(); err != nil {
		return nil, fmt.Errorf("failed to finish SST file: %w", err)
	}
	fileSize := builder.FileSize()

	if err := file.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync SST file: %w", err)
	}

	// Sync directory to make SST file entry durable.
	// This is required before updating MANIFEST to reference this SST.
	// Without this, a crash could leave MANIFEST referencing a non-existent SST
	// (the file content is synced but the directory entry is not).
	if err := fj.db.FS().SyncDir(fj.db.DBPath()); err != nil {
		return nil, fmt.Errorf("failed to sync directory after SST write: %w", err)
	}

	meta := manifest.NewFileMetaData()
	meta.FD = manifest.NewFileDescriptor(fj.fileNum, 0, fileSize)
	meta.FD.SmallestSeqno = manifest.SequenceNumber(smallestSeq)
	meta.FD.LargestSeqno = manifest.SequenceNumber(largestSeq)
	meta.Smallest = firstKey
	meta.Largest = lastKey

	return meta, nil
}
