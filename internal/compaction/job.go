// job.go implements CompactionJob which executes a single compaction.
//
// CompactionJob runs the compaction process: reading input files,
// merging keys, dropping obsolete entries, and writing output files.
package compaction

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/aalhour/rockyardkv/internal/dbformat"
	"github.com/aalhour/rockyardkv/internal/iterator"
	"github.com/aalhour/rockyardkv/internal/manifest"
	"github.com/aalhour/rockyardkv/internal/table"
	"github.com/aalhour/rockyardkv/internal/vfs"
)

// CompactionJob performs a single compaction operation.
// It reads from input files, merges them, and writes to new output files.
type CompactionJob struct {
	compaction *Compaction
	dbPath     string
	fs         vfs.FS
	tableCache *table.TableCache

	// File number generator
	nextFileNum func() uint64

	// Output files created by this job
	outputFiles []*manifest.FileMetaData

	// Earliest snapshot sequence number: entries superseded by a newer
	// version of the same user key can be dropped once no open snapshot
	// can still observe them.
	earliestSnapshot dbformat.SequenceNumber
}

// NewCompactionJob creates a new compaction job.
func NewCompactionJob(
	c *Compaction,
	dbPath string,
	fs vfs.FS,
	tableCache *table.TableCache,
	nextFileNum func() uint64,
) *CompactionJob {
	return NewCompactionJobWithSnapshot(c, dbPath, fs, tableCache, nextFileNum, 0)
}

// NewCompactionJobWithSnapshot creates a new compaction job with an earliest snapshot.
// Older versions of a key can only be dropped once earliestSnapshot has advanced past them.
func NewCompactionJobWithSnapshot(
	c *Compaction,
	dbPath string,
	fs vfs.FS,
	tableCache *table.TableCache,
	nextFileNum func() uint64,
	earliestSnapshot dbformat.SequenceNumber,
) *CompactionJob {
	return &CompactionJob{
		compaction:       c,
		dbPath:           dbPath,
		fs:               fs,
		tableCache:       tableCache,
		nextFileNum:      nextFileNum,
		earliestSnapshot: earliestSnapshot,
	}
}

// Run executes the compaction.
// Returns the list of output files created.
func (j *CompactionJob) Run() ([]*manifest.FileMetaData, error) {
	// Check for trivial move
	if j.compaction.IsTrivialMove {
		return j.doTrivialMove()
	}

	// Create iterators for all input files
	iters, err := j.createInputIterators()
	if err != nil {
		return nil, fmt.Errorf("create input iterators: %w", err)
	}

	// Create merging iterator
	mergingIter := iterator.NewMergingIterator(iters, dbformat.CompareInternalKeys)

	// Process all entries
	err = j.processEntries(mergingIter)
	if err != nil {
		return nil, fmt.Errorf("process entries: %w", err)
	}

	return j.outputFiles, nil
}

// doTrivialMove handles trivial move compactions (just update metadata).
func (j *CompactionJob) doTrivialMove() ([]*manifest.FileMetaData, error) {
	// For trivial move, we just update the level in the edit
	// The file itself doesn't need to be rewritten
	for _, input := range j.compaction.Inputs {
		for _, f := range input.Files {
			// Add the file to the output level
			outputMeta := manifest.NewFileMetaData()
			outputMeta.FD = f.FD
			outputMeta.Smallest = f.Smallest
			outputMeta.Largest = f.Largest
			j.compaction.Edit.AddFile(j.compaction.OutputLevel, outputMeta)

			// Delete from the input level
			j.compaction.Edit.DeleteFile(input.Level, f.FD.GetNumber())
		}
	}
	return nil, nil
}

// createInputIterators creates iterators for all input files.
func (j *CompactionJob) createInputIterators() ([]iterator.Iterator, error) {
	var iters []iterator.Iterator
	var openedFiles []uint64 // Track opened files for cleanup on error

	for _, input := range j.compaction.Inputs {
		for _, f := range input.Files {
			// Construct the file path
			filePath := j.sstPath(f.FD.GetNumber())

			// Verify file exists before opening
			if !j.fs.Exists(filePath) {
				// Clean up already opened files
				for _, fileNum := range openedFiles {
					j.tableCache.Release(fileNum)
				}
				return nil, fmt.Errorf("input file %d does not exist: %s", f.FD.GetNumber(), filePath)
			}

			reader, err := j.tableCache.Get(f.FD.GetNumber(), filePath)
			if err != nil {
				// Clean up already opened files
				for _, fileNum := range openedFiles {
					j.tableCache.Release(fileNum)
				}
				return nil, fmt.Errorf("get table reader %d: %w", f.FD.GetNumber(), err)
			}
			openedFiles = append(openedFiles, f.FD.GetNumber())

			// Wrap the table iterator
			iters = append(iters, &tableIteratorWrapper{
				iter:       reader.NewIterator(),
				fileNumber: f.FD.GetNumber(),
			})
		}
	}

	return iters, nil
}

// sstPath returns the path to an SST file.
func (j *CompactionJob) sstPath(fileNum uint64) string {
	return filepath.Join(j.dbPath, fmt.Sprintf("%06d.sst", fileNum))
}

// processEntries iterates through all entries in internal-key order and
// writes the surviving ones to output files. Entries are dropped per the
// rules below, applied in merge order so only one pass over the data is
// needed:
//
//   - An entry hidden by a newer entry already emitted for the same user
//     key is dropped, unless that newer entry's sequence is still visible
//     to some live snapshot (sequence > earliestSnapshot) — in which case
//     the first entry at or below earliestSnapshot is kept so a snapshot
//     read can still find it, and anything older than that is dropped.
//   - A DELETION tombstone is dropped once no snapshot can observe it
//     (sequence <= earliestSnapshot) and this is the bottommost level for
//     its key range, so there is no older value left for it to shadow.
func (j *CompactionJob) processEntries(iter *iterator.MergingIterator) error {
	var builder *table.TableBuilder
	var currentFile *compactionOutputFile
	var err error

	var currentUserKey []byte
	hasCurrentUserKey := false
	lastSequenceForKey := dbformat.MaxSequenceNumber

	iter.SeekToFirst()

	for iter.Valid() {
		key := iter.Key()
		value := iter.Value()

		userKey := dbformat.ExtractUserKey(key)
		seq := dbformat.ExtractSequenceNumber(key)
		vtype := dbformat.ExtractValueType(key)

		if !hasCurrentUserKey || !bytes.Equal(userKey, currentUserKey) {
			currentUserKey = append(currentUserKey[:0], userKey...)
			hasCurrentUserKey = true
			lastSequenceForKey = dbformat.MaxSequenceNumber
		}

		drop := false
		if lastSequenceForKey <= j.earliestSnapshot {
			// A newer entry for this user key was already emitted and is
			// visible to every live snapshot; this older one is redundant.
			drop = true
		} else if vtype == dbformat.TypeDeletion && seq <= j.earliestSnapshot && j.compaction.IsBottommostLevel {
			drop = true
		}
		lastSequenceForKey = seq

		if drop {
			iter.Next()
			continue
		}

		// Check if we should start a new output file
		if builder == nil || j.shouldFinishFile(currentFile, key) {
			// Finish current file if any
			if builder != nil {
				err = j.finishOutputFile(builder, currentFile)
				if err != nil {
					return err
				}
			}

			// Start new file
			currentFile, builder, err = j.startOutputFile()
			if err != nil {
				return err
			}
		}

		// Add the key-value pair
		err = builder.Add(key, value, vtype == dbformat.TypeDeletion)
		if err != nil {
			return fmt.Errorf("add to builder: %w", err)
		}

		// Track key range
		if currentFile.smallest == nil {
			currentFile.smallest = append([]byte{}, key...)
		}
		currentFile.largest = append(currentFile.largest[:0], key...)

		iter.Next()
	}

	if err := iter.Error(); err != nil {
		return fmt.Errorf("iterator error: %w", err)
	}

	// Finish the last file
	if builder != nil {
		err = j.finishOutputFile(builder, currentFile)
		if err != nil {
			return err
		}
	}

	return nil
}

type compactionOutputFile struct {
	fileNumber uint64
	file       vfs.WritableFile
	path       string
	smallest   []byte
	largest    []byte
}

// startOutputFile creates a new output file.
func (j *CompactionJob) startOutputFile() (*compactionOutputFile, *table.TableBuilder, error) {
	fileNum := j.nextFileNum()
	fileName := fmt.Sprintf("%06d.sst", fileNum)
	filePath := filepath.Join(j.dbPath, fileName)

	file, err := j.fs.Create(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("create file %s: %w", filePath, err)
	}

	opts := table.DefaultBuilderOptions()
	builder := table.NewTableBuilder(file, opts)

	output := &compactionOutputFile{
		fileNumber: fileNum,
		file:       file,
		path:       filePath,
	}

	return output, builder, nil
}

// finishOutputFile completes an output file and records its metadata.
func (j *CompactionJob) finishOutputFile(builder *table.TableBuilder, output *compactionOutputFile) error {
	err := builder.Finish()
	if err != nil {
		_ = output.file.Close()
		return fmt.Errorf("finish builder: %w", err)
	}

	fileSize := builder.FileSize()

	err = output.file.Sync()
	if err != nil {
		_ = output.file.Close()
		return fmt.Errorf("sync file: %w", err)
	}

	err = output.file.Close()
	if err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	// Sync directory to make SST file entry durable.
	// This is required before updating MANIFEST to reference this SST.
	// Without this, a crash could leave MANIFEST referencing a non-existent SST.
	if err := j.fs.SyncDir(j.dbPath); err != nil {
		return fmt.Errorf("sync directory after compaction SST write: %w", err)
	}

	// Record the output file metadata
	fileMeta := manifest.NewFileMetaData()
	fileMeta.FD = manifest.NewFileDescriptor(output.fileNumber, 0, fileSize)
	fileMeta.Smallest = output.smallest
	fileMeta.Largest = output.largest

	j.outputFiles = append(j.outputFiles, fileMeta)

	// Add to the edit
	j.compaction.Edit.AddFile(j.compaction.OutputLevel, fileMeta)

	return nil
}

// shouldFinishFile returns true if we should start a new output file.
func (j *CompactionJob) shouldFinishFile(current *compactionOutputFile, _ []byte) bool {
	if current == nil {
		return true
	}

	// Check file size
	// A full implementation would track the builder's current size
	// For now, we rely on the builder to handle file size limits

	return false
}

// tableIteratorWrapper wraps a table.TableIterator to implement iterator.Iterator.
type tableIteratorWrapper struct {
	iter       *table.TableIterator
	fileNumber uint64
}

func (w *tableIteratorWrapper) Valid() bool {
	return w.iter.Valid()
}

func (w *tableIteratorWrapper) Key() []byte {
	return w.iter.Key()
}

func (w *tableIteratorWrapper) Value() []byte {
	return w.iter.Value()
}

func (w *tableIteratorWrapper) SeekToFirst() {
	w.iter.SeekToFirst()
}

func (w *tableIteratorWrapper) SeekToLast() {
	w.iter.SeekToLast()
}

func (w *tableIteratorWrapper) Seek(target []byte) {
	w.iter.Seek(target)
}

func (w *tableIteratorWrapper) Next() {
	w.iter.Next()
}

func (w *tableIteratorWrapper) Prev() {
	w.iter.Prev()
}

func (w *tableIteratorWrapper) Error() error {
	return w.iter.Error()
}
