// background.go drives background flush and compaction work.
//
// Reference: RocksDB v10.7.5 db/db_impl/db_impl_compaction_flush.cc
package rockyardkv

import (
	"sync"

	"github.com/aalhour/rockyardkv/internal/compaction"
)

// BackgroundWork schedules and runs flush and compaction jobs on a single
// background goroutine, separate from the foreground write path.
type BackgroundWork struct {
	db     *DBImpl
	picker *compaction.LeveledCompactionPicker

	compactionCh chan struct{}
	flushCh      chan struct{}
	shutdownCh   chan struct{}
	done         sync.WaitGroup

	mu                sync.Mutex
	compactionRunning bool
	flushRunning      bool
	backgroundErrors  int
}

func newBackgroundWork(db *DBImpl) *BackgroundWork {
	picker := compaction.DefaultLeveledCompactionPicker()
	if db.options.Level0FileNumCompactionTrigger > 0 {
		picker.L0CompactionTrigger = db.options.Level0FileNumCompactionTrigger
	}
	if db.options.Level0StopWritesTrigger > 0 {
		picker.L0StopWritesTrigger = db.options.Level0StopWritesTrigger
	}
	if db.options.MaxBytesForLevelBase > 0 {
		picker.MaxBytesForLevelBase = db.options.MaxBytesForLevelBase
	}

	return &BackgroundWork{
		db:           db,
		picker:       picker,
		compactionCh: make(chan struct{}, 1),
		flushCh:      make(chan struct{}, 1),
		shutdownCh:   make(chan struct{}),
	}
}

// Start launches the background worker goroutine.
func (bg *BackgroundWork) Start() {
	bg.done.Add(1)
	go bg.loop()
}

// Stop signals the background worker to exit and waits for it to finish.
func (bg *BackgroundWork) Stop() {
	close(bg.shutdownCh)
	bg.done.Wait()
}

// MaybeScheduleFlush requests a flush of the immutable memtable, if any.
// Non-blocking: a pending request is coalesced with any already queued.
func (bg *BackgroundWork) MaybeScheduleFlush() {
	select {
	case bg.flushCh <- struct{}{}:
	default:
	}
}

// MaybeScheduleCompaction requests a compaction pass.
func (bg *BackgroundWork) MaybeScheduleCompaction() {
	if bg.db.options.DisableAutoCompactions {
		return
	}
	select {
	case bg.compactionCh <- struct{}{}:
	default:
	}
}

func (bg *BackgroundWork) loop() {
	defer bg.done.Done()
	for {
		select {
		case <-bg.shutdownCh:
			return
		case <-bg.flushCh:
			bg.doFlushWork()
		case <-bg.compactionCh:
			bg.doCompactionWork()
		}
	}
}

func (bg *BackgroundWork) doFlushWork() {
	bg.mu.Lock()
	if bg.flushRunning {
		bg.mu.Unlock()
		return
	}
	bg.flushRunning = true
	bg.mu.Unlock()

	defer func() {
		bg.mu.Lock()
		bg.flushRunning = false
		bg.mu.Unlock()
	}()

	bg.db.mu.RLock()
	hasImm := bg.db.imm != nil
	bg.db.mu.RUnlock()
	if !hasImm {
		return
	}

	if err := bg.db.doFlush(); err != nil {
		bg.db.setBackgroundError(err)
		bg.incrementBackgroundErrors()
		return
	}

	bg.MaybeScheduleCompaction()
}

func (bg *BackgroundWork) doCompactionWork() {
	bg.mu.Lock()
	if bg.compactionRunning {
		bg.mu.Unlock()
		return
	}
	bg.compactionRunning = true
	bg.mu.Unlock()

	defer func() {
		bg.mu.Lock()
		bg.compactionRunning = false
		bg.mu.Unlock()
	}()

	v := bg.db.versions.Current()
	if v == nil {
		return
	}
	v.Ref()
	defer v.Unref()

	if !bg.picker.NeedsCompaction(v) {
		return
	}
	c := bg.picker.PickCompaction(v)
	if c == nil {
		return
	}

	c.MarkFilesBeingCompacted(true)
	defer c.MarkFilesBeingCompacted(false)

	if err := bg.executeCompaction(c); err != nil {
		bg.db.setBackgroundError(err)
		bg.incrementBackgroundErrors()
		return
	}

	// A single compaction may not be enough to clear a backlog; keep going
	// until the picker reports the tree is balanced.
	bg.MaybeScheduleCompaction()
}

func (bg *BackgroundWork) executeCompaction(c *compaction.Compaction) error {
	db := bg.db

	for _, inputs := range c.Inputs {
		for _, f := range inputs.Files {
			path := db.sstFilePath(f.FD.GetNumber())
			if !db.fs.Exists(path) {
				return nil
			}
		}
	}

	nextFileNum := func() uint64 { return db.versions.NextFileNumber() }
	earliestSnapshot := db.oldestSnapshotSequence()

	job := compaction.NewCompactionJobWithSnapshot(c, db.name, db.fs, db.tableCache, nextFileNum, earliestSnapshot)
	if _, err := job.Run(); err != nil {
		return err
	}

	c.AddInputDeletions()

	db.mu.Lock()
	err := db.versions.LogAndApply(c.Edit)
	db.mu.Unlock()
	if err != nil {
		return err
	}

	for _, deleted := range c.DeletedFiles() {
		db.tableCache.Evict(deleted.FileNumber)
		_ = db.fs.Remove(db.sstFilePath(deleted.FileNumber))
	}

	db.cond.Broadcast()
	return nil
}

func (bg *BackgroundWork) incrementBackgroundErrors() {
	bg.mu.Lock()
	bg.backgroundErrors++
	bg.mu.Unlock()
}

// IsCompactionPending reports whether the current version needs compaction.
func (bg *BackgroundWork) IsCompactionPending() bool {
	v := bg.db.versions.Current()
	if v == nil {
		return false
	}
	return bg.picker.NeedsCompaction(v)
}

// NumRunningFlushes returns 1 if a flush is currently executing, else 0.
func (bg *BackgroundWork) NumRunningFlushes() int {
	bg.mu.Lock()
	defer bg.mu.Unlock()
	if bg.flushRunning {
		return 1
	}
	return 0
}

// NumRunningCompactions returns 1 if a compaction is currently executing, else 0.
func (bg *BackgroundWork) NumRunningCompactions() int {
	bg.mu.Lock()
	defer bg.mu.Unlock()
	if bg.compactionRunning {
		return 1
	}
	return 0
}

// NumBackgroundErrors returns the number of background job failures observed
// since the database was opened.
func (bg *BackgroundWork) NumBackgroundErrors() int {
	bg.mu.Lock()
	defer bg.mu.Unlock()
	return bg.backgroundErrors
}
