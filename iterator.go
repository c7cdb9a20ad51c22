// iterator.go implements an ordered, snapshot-isolated cursor over the
// database: the active memtable, the immutable memtable (if any), and every
// on-disk SST file, merged into a single internal-key order and filtered
// down to the entries visible as of a sequence number.
//
// Reference: RocksDB v10.7.5 db/db_iter.cc
package rockyardkv

import (
	"bytes"

	"github.com/aalhour/rockyardkv/internal/dbformat"
	"github.com/aalhour/rockyardkv/internal/iterator"
	"github.com/aalhour/rockyardkv/internal/memtable"
	"github.com/aalhour/rockyardkv/internal/version"
)

// Iterator provides ordered iteration over the keys in a database as of a
// fixed point in time. An Iterator is not safe for concurrent use by
// multiple goroutines.
type Iterator struct {
	db       *DBImpl
	seq      dbformat.SequenceNumber
	merged   *iterator.MergingIterator
	mem      *memtable.MemTable
	imm      *memtable.MemTable
	version  *version.Version
	ownedSnap *Snapshot
	openFiles []uint64

	valid bool
	key   []byte
	value []byte
	err   error
}

// NewIterator returns an iterator over the database state captured at
// opts.Snapshot, or the current state if no snapshot is given. The caller
// must call Close when done.
func (db *DBImpl) NewIterator(opts *ReadOptions) (*Iterator, error) {
	if opts == nil {
		opts = DefaultReadOptions()
	}

	var ownedSnap *Snapshot
	snap := opts.Snapshot
	if snap == nil {
		ownedSnap = db.GetSnapshot()
		snap = ownedSnap
	}

	db.mu.RLock()
	mem, imm := db.mem, db.imm
	mem.Ref()
	if imm != nil {
		imm.Ref()
	}
	v := db.versions.Current()
	if v != nil {
		v.Ref()
	}
	db.mu.RUnlock()

	children := []iterator.Iterator{mem.NewIterator()}
	if imm != nil {
		children = append(children, imm.NewIterator())
	}

	var openFiles []uint64
	if v != nil {
		for level := 0; level < v.NumLevels(); level++ {
			for _, f := range v.Files(level) {
				fileNum := f.FD.GetNumber()
				reader, err := db.tableCache.Get(fileNum, db.sstFilePath(fileNum))
				if err != nil {
					for _, fn := range openFiles {
						db.tableCache.Release(fn)
					}
					mem.Unref()
					if imm != nil {
						imm.Unref()
					}
					v.Unref()
					if ownedSnap != nil {
						ownedSnap.Release()
					}
					return nil, err
				}
				openFiles = append(openFiles, fileNum)
				children = append(children, reader.NewIterator())
			}
		}
	}

	it := &Iterator{
		db:        db,
		seq:       dbformat.SequenceNumber(snap.Sequence()),
		merged:    iterator.NewMergingIterator(children, dbformat.CompareInternalKeys),
		mem:       mem,
		imm:       imm,
		version:   v,
		ownedSnap: ownedSnap,
		openFiles: openFiles,
	}
	return it, nil
}

// Close releases all resources held by the iterator.
func (it *Iterator) Close() error {
	for _, fileNum := range it.openFiles {
		it.db.tableCache.Release(fileNum)
	}
	it.mem.Unref()
	if it.imm != nil {
		it.imm.Unref()
	}
	if it.version != nil {
		it.version.Unref()
	}
	if it.ownedSnap != nil {
		it.ownedSnap.Release()
	}
	return it.err
}

// Valid returns true if the iterator is positioned at an entry.
func (it *Iterator) Valid() bool { return it.valid }

// Key returns the user key at the current position.
func (it *Iterator) Key() []byte { return it.key }

// Value returns the value at the current position.
func (it *Iterator) Value() []byte { return it.value }

// Error returns the first error encountered, if any.
func (it *Iterator) Error() error {
	if it.err != nil {
		return it.err
	}
	return it.merged.Error()
}

// SeekToFirst positions the iterator at the first visible key.
func (it *Iterator) SeekToFirst() {
	it.merged.SeekToFirst()
	it.findNextVisible()
}

// SeekToLast positions the iterator at the last visible key.
func (it *Iterator) SeekToLast() {
	it.merged.SeekToLast()
	it.findPrevVisible()
}

// Seek positions the iterator at the first visible key >= target.
func (it *Iterator) Seek(target []byte) {
	internalTarget := dbformat.NewInternalKey(target, it.seq, dbformat.ValueTypeForSeek)
	it.merged.Seek(internalTarget)
	it.findNextVisible()
}

// Next advances to the next visible key.
func (it *Iterator) Next() {
	if !it.valid {
		return
	}
	// Skip past any remaining older versions of the current user key.
	for it.merged.Valid() && bytes.Equal(dbformat.ExtractUserKey(it.merged.Key()), it.key) {
		it.merged.Next()
	}
	it.findNextVisible()
}

// Prev moves to the previous visible key.
func (it *Iterator) Prev() {
	if !it.valid {
		return
	}
	for it.merged.Valid() && bytes.Equal(dbformat.ExtractUserKey(it.merged.Key()), it.key) {
		it.merged.Prev()
	}
	it.findPrevVisible()
}

// findNextVisible scans forward from the merged iterator's current position,
// collapsing each run of internal keys sharing a user key down to the first
// entry with sequence <= it.seq (the merged iterator yields entries for a
// user key in descending-sequence order), and skips the run entirely if
// that entry is a deletion tombstone.
func (it *Iterator) findNextVisible() {
	for it.merged.Valid() {
		ikey := it.merged.Key()
		userKey := dbformat.ExtractUserKey(ikey)

		if dbformat.ExtractSequenceNumber(ikey) > it.seq {
			it.merged.Next()
			continue
		}

		if dbformat.ExtractValueType(ikey) == dbformat.TypeDeletion {
			// Skip the rest of this user key's versions; none are visible
			// beyond the deletion, which already is the most recent visible one.
			for it.merged.Valid() && bytes.Equal(dbformat.ExtractUserKey(it.merged.Key()), userKey) {
				it.merged.Next()
			}
			continue
		}

		it.valid = true
		it.key = append(it.key[:0], userKey...)
		it.value = append([]byte(nil), it.merged.Value()...)
		return
	}
	it.valid = false
	it.key = nil
	it.value = nil
}

// findPrevVisible scans backward, which visits a user key's versions in
// ascending-sequence order, so the full run must be scanned to find the
// highest sequence number still <= it.seq before a visibility decision for
// that user key can be made.
func (it *Iterator) findPrevVisible() {
	for it.merged.Valid() {
		userKey := append([]byte(nil), dbformat.ExtractUserKey(it.merged.Key())...)

		var (
			bestSeq   dbformat.SequenceNumber
			bestType  dbformat.ValueType
			bestValue []byte
			found     bool
		)

		for it.merged.Valid() && bytes.Equal(dbformat.ExtractUserKey(it.merged.Key()), userKey) {
			ikey := it.merged.Key()
			seq := dbformat.ExtractSequenceNumber(ikey)
			if seq <= it.seq && (!found || seq > bestSeq) {
				bestSeq = seq
				bestType = dbformat.ExtractValueType(ikey)
				bestValue = append([]byte(nil), it.merged.Value()...)
				found = true
			}
			it.merged.Prev()
		}

		if found && bestType != dbformat.TypeDeletion {
			it.valid = true
			it.key = userKey
			it.value = bestValue
			return
		}
		// Either nothing in this run was visible, or the visible entry was a
		// deletion: move on to the previous user key.
	}
	it.valid = false
	it.key = nil
	it.value = nil
}
