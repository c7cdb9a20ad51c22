// compaction_apis.go implements the diagnostic and maintenance surface built
// on top of compaction and the on-disk table format: approximate size
// estimation, manual range compaction, and the next-level overlap bound
// that the sparse-merge constraint keeps in check.
//
// Reference: RocksDB v10.7.5 db/db_impl/db_impl.cc (GetApproximateSizes),
// LevelDB db/db_impl.h (TEST_CompactRange, TEST_MaxNextLevelOverlappingBytes)
package rockyardkv

import (
	"fmt"

	"github.com/aalhour/rockyardkv/internal/compaction"
	"github.com/aalhour/rockyardkv/internal/dbformat"
	"github.com/aalhour/rockyardkv/internal/manifest"
	"github.com/aalhour/rockyardkv/internal/version"
)

// Range is a half-open key range [Start, Limit) used by GetApproximateSizes.
type Range struct {
	Start []byte
	Limit []byte
}

// GetApproximateSizes returns, for each range, the approximate number of
// on-disk bytes across all levels that fall within [Start, Limit). It does
// not account for memtable contents.
func (db *DBImpl) GetApproximateSizes(ranges []Range) ([]uint64, error) {
	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return nil, ErrDBClosed
	}
	v := db.versions.Current()
	if v != nil {
		v.Ref()
	}
	db.mu.RUnlock()
	if v == nil {
		return make([]uint64, len(ranges)), nil
	}
	defer v.Unref()

	sizes := make([]uint64, len(ranges))
	for i, r := range ranges {
		var size uint64
		for level := 0; level < v.NumLevels(); level++ {
			for _, f := range v.Files(level) {
				size += db.approximateFileRangeSize(f, r.Start, r.Limit)
			}
		}
		sizes[i] = size
	}
	return sizes, nil
}

// approximateFileRangeSize estimates how many of f's bytes fall within
// [start, limit) using the table's offset index: keys outside the file
// naturally clamp to 0 or the file's data size, so files that don't
// overlap the range contribute nothing.
func (db *DBImpl) approximateFileRangeSize(f *manifest.FileMetaData, start, limit []byte) uint64 {
	fileNum := f.FD.GetNumber()
	reader, err := db.tableCache.Get(fileNum, db.sstFilePath(fileNum))
	if err != nil {
		return 0
	}
	defer db.tableCache.Release(fileNum)

	startOffset := uint64(0)
	if start != nil {
		startOffset = reader.ApproximateOffsetOf(dbformat.NewInternalKey(start, dbformat.MaxSequenceNumber, dbformat.ValueTypeForSeek))
	}
	endOffset := f.FD.FileSize
	if limit != nil {
		endOffset = reader.ApproximateOffsetOf(dbformat.NewInternalKey(limit, dbformat.MaxSequenceNumber, dbformat.ValueTypeForSeek))
	}
	if endOffset < startOffset {
		return 0
	}
	return endOffset - startOffset
}

// CompactRange force-compacts the files at level that overlap [begin, end)
// into level+1. A nil begin or end means unbounded in that direction. The
// overlapping set in level may be expanded to cover every L0 file when
// level is 0, since L0 files can overlap each other.
func (db *DBImpl) CompactRange(level int, begin, end []byte) error {
	db.mu.RLock()
	closed := db.closed
	db.mu.RUnlock()
	if closed {
		return ErrDBClosed
	}
	if level < 0 || level >= numLevels-1 {
		return fmt.Errorf("rockyardkv: invalid compaction level %d", level)
	}

	var beginInternal, endInternal []byte
	if begin != nil {
		beginInternal = dbformat.NewInternalKey(begin, dbformat.MaxSequenceNumber, dbformat.ValueTypeForSeek)
	}
	if end != nil {
		endInternal = dbformat.NewInternalKey(end, 0, dbformat.TypeDeletion)
	}

	for {
		v := db.versions.Current()
		if v == nil {
			return nil
		}
		v.Ref()

		var levelFiles []*manifest.FileMetaData
		if level == 0 {
			levelFiles = append([]*manifest.FileMetaData(nil), v.Files(0)...)
		} else {
			levelFiles = v.OverlappingInputs(level, beginInternal, endInternal)
		}
		levelFiles = withoutBeingCompacted(levelFiles)
		if len(levelFiles) == 0 {
			v.Unref()
			return nil
		}

		var smallest, largest []byte
		for _, f := range levelFiles {
			if smallest == nil || dbformat.CompareInternalKeys(f.Smallest, smallest) < 0 {
				smallest = f.Smallest
			}
			if largest == nil || dbformat.CompareInternalKeys(f.Largest, largest) > 0 {
				largest = f.Largest
			}
		}

		nextLevel := level + 1
		nextFiles := withoutBeingCompacted(v.OverlappingInputs(nextLevel, smallest, largest))
		bottommost := isBottommostLevel(v, nextLevel, smallest, largest)
		v.Unref()

		inputs := []*compaction.CompactionInputFiles{{Level: level, Files: levelFiles}}
		if len(nextFiles) > 0 {
			inputs = append(inputs, &compaction.CompactionInputFiles{Level: nextLevel, Files: nextFiles})
		}

		c := compaction.NewCompaction(inputs, nextLevel)
		c.Reason = compaction.CompactionReasonManualCompaction
		c.IsBottommostLevel = bottommost

		c.MarkFilesBeingCompacted(true)
		err := db.bgWork.executeCompaction(c)
		c.MarkFilesBeingCompacted(false)
		if err != nil {
			return err
		}

		if level > 0 {
			// Disjoint levels: one pass covers the whole overlapping set.
			return nil
		}
		// L0 files can keep arriving from concurrent writes; each pass
		// re-reads the whole level, so loop until no L0 file is left outside
		// a running compaction.
	}
}

func withoutBeingCompacted(files []*manifest.FileMetaData) []*manifest.FileMetaData {
	var out []*manifest.FileMetaData
	for _, f := range files {
		if !f.BeingCompacted {
			out = append(out, f)
		}
	}
	return out
}

// isBottommostLevel reports whether no level below outputLevel holds a file
// overlapping [smallest, largest], mirroring the picker's own bottommost
// check so manually-compacted deletion tombstones can still be dropped.
func isBottommostLevel(v *version.Version, outputLevel int, smallest, largest []byte) bool {
	for level := outputLevel + 1; level < v.NumLevels(); level++ {
		if len(v.OverlappingInputs(level, smallest, largest)) > 0 {
			return false
		}
	}
	return true
}

// MaxNextLevelOverlappingBytes returns, across every file at every level
// 1..N-2, the largest total size of the files at level+1 it overlaps. The
// compaction grandparent-overlap limit is sized to keep this bounded.
func (db *DBImpl) MaxNextLevelOverlappingBytes() (uint64, error) {
	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return 0, ErrDBClosed
	}
	v := db.versions.Current()
	if v != nil {
		v.Ref()
	}
	db.mu.RUnlock()
	if v == nil {
		return 0, nil
	}
	defer v.Unref()

	var result uint64
	for level := 1; level < v.NumLevels()-1; level++ {
		for _, f := range v.Files(level) {
			overlapping := v.OverlappingInputs(level+1, f.Smallest, f.Largest)
			var sum uint64
			for _, of := range overlapping {
				sum += of.FD.FileSize
			}
			if sum > result {
				result = sum
			}
		}
	}
	return result, nil
}
