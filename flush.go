// flush.go drives the flush of an immutable memtable to an on-disk SST file.
//
// Reference: RocksDB v10.7.5 db/flush_job.cc
package rockyardkv

import (
	"errors"
	"fmt"

	"github.com/aalhour/rockyardkv/internal/flush"
	"github.com/aalhour/rockyardkv/internal/manifest"
)

// doFlush writes the current immutable memtable (if any) to a new level-0
// SST file and installs it into the current version.
func (db *DBImpl) doFlush() error {
	db.mu.Lock()
	if db.imm == nil {
		db.mu.Unlock()
		return nil
	}
	imm := db.imm
	db.mu.Unlock()

	job := flush.NewJob(db, imm)
	meta, err := job.Run()
	if err != nil {
		if errors.Is(err, flush.ErrNoOutput) {
			db.mu.Lock()
			db.imm = nil
			db.cond.Broadcast()
			db.mu.Unlock()
			return nil
		}

		db.mu.Lock()
		if db.backgroundError == nil {
			db.backgroundError = err
		}
		db.cond.Broadcast()
		db.mu.Unlock()
		db.logger.Warnf("[flush] flush job failed: %v", err)
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	// LastSequence must stay monotonic across a flush even when the active
	// memtable (not this one) has since advanced db.seq further, so take
	// the max of the flushed file's LargestSeqno and the prior value rather
	// than reading db.seq directly.
	newLastSeq := meta.FD.LargestSeqno
	if prev := manifest.SequenceNumber(db.versions.LastSequence()); prev > newLastSeq {
		newLastSeq = prev
	}

	edit := manifest.NewVersionEdit()
	edit.SetLastSequence(newLastSeq)
	// The just-flushed memtable is now durable in an SST file. The log
	// backing the active memtable is db.logFileNumber, so recovery never
	// needs to replay anything older than that.
	edit.SetLogNumber(db.logFileNumber)
	edit.AddFile(0, meta)

	if err := db.versions.LogAndApply(edit); err != nil {
		return fmt.Errorf("apply flush edit: %w", err)
	}
	db.versions.SetLastSequence(uint64(newLastSeq))

	db.imm = nil
	db.cond.Broadcast()
	return nil
}
