// db.go implements the core engine: database lifecycle, point reads and
// writes, snapshots, and diagnostic properties.
//
// Reference: RocksDB v10.7.5 db/db_impl/db_impl.cc, db/db_impl/db_impl_open.cc
package rockyardkv

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aalhour/rockyardkv/internal/batch"
	"github.com/aalhour/rockyardkv/internal/dbformat"
	"github.com/aalhour/rockyardkv/internal/flush"
	"github.com/aalhour/rockyardkv/internal/logging"
	"github.com/aalhour/rockyardkv/internal/manifest"
	"github.com/aalhour/rockyardkv/internal/memtable"
	"github.com/aalhour/rockyardkv/internal/table"
	"github.com/aalhour/rockyardkv/internal/vfs"
	"github.com/aalhour/rockyardkv/internal/version"
	"github.com/aalhour/rockyardkv/internal/wal"
)

// Errors returned by database operations.
var (
	ErrNotFound       = errors.New("rockyardkv: not found")
	ErrDBClosed       = errors.New("rockyardkv: database closed")
	ErrDBExists       = errors.New("rockyardkv: database already exists")
	ErrDBNotFound     = errors.New("rockyardkv: database does not exist")
	ErrBackgroundError = errors.New("rockyardkv: background error")
)

// Property name constants for GetProperty.
const (
	PropertyNumImmutableMemTable     = "rocksdb.num-immutable-mem-table"
	PropertyMemTableFlushPending     = "rocksdb.mem-table-flush-pending"
	PropertyCurSizeActiveMemTable    = "rocksdb.cur-size-active-mem-table"
	PropertyCurSizeAllMemTables      = "rocksdb.cur-size-all-mem-tables"
	PropertyNumEntriesActiveMemTable = "rocksdb.num-entries-active-mem-table"
	PropertyCompactionPending        = "rocksdb.compaction-pending"
	PropertyNumRunningFlushes        = "rocksdb.num-running-flushes"
	PropertyNumRunningCompactions    = "rocksdb.num-running-compactions"
	PropertyNumFilesAtLevelPrefix    = "rocksdb.num-files-at-level"
	PropertyLevelStats               = "rocksdb.levelstats"
	PropertyNumSnapshots             = "rocksdb.num-snapshots"
	PropertyOldestSnapshotTime       = "rocksdb.oldest-snapshot-time"
	PropertyEstimateNumKeys          = "rocksdb.estimate-num-keys"
	PropertyTotalSstFilesSize        = "rocksdb.total-sst-files-size"
	PropertyBackgroundErrors         = "rocksdb.background-errors"
	PropertyNumColumnFamilies        = "rocksdb.num-column-families"
)

// numLevels is the number of levels in the LSM tree.
const numLevels = 7

// DBImpl is the embedded key/value database.
type DBImpl struct {
	name       string
	options    *Options
	fs         vfs.FS
	comparator Comparator
	logger     Logger

	mu sync.RWMutex
	// cond is broadcast whenever state relevant to a waiting writer, flusher,
	// or Flush() caller changes: a flush completes, a compaction completes,
	// or the database is closed.
	cond *sync.Cond

	versions *version.VersionSet

	logFile       vfs.WritableFile
	logFileNumber uint64
	logWriter     *wal.Writer

	mem *memtable.MemTable
	imm *memtable.MemTable
	seq uint64

	tableCache *table.TableCache

	snapshots    *Snapshot
	snapshotLock sync.Mutex

	bgWork *BackgroundWork

	backgroundError error

	closed     bool
	shutdownCh chan struct{}
}

// Open opens (or creates) a database at path.
func Open(path string, opts *Options) (*DBImpl, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	fs := opts.FS
	if fs == nil {
		fs = vfs.Default()
	}

	comparator := opts.Comparator
	if comparator == nil {
		comparator = DefaultComparator()
	}

	exists := fs.Exists(filepath.Join(path, "CURRENT"))

	if exists && opts.ErrorIfExists {
		return nil, ErrDBExists
	}
	if !exists && !opts.CreateIfMissing {
		return nil, ErrDBNotFound
	}
	if !exists {
		if err := fs.MkdirAll(path, 0o755); err != nil {
			return nil, err
		}
	}

	logger := logging.OrDefault(opts.Logger)

	db := &DBImpl{
		name:       path,
		options:    opts,
		fs:         fs,
		comparator: comparator,
		logger:     logger,
		shutdownCh: make(chan struct{}),
		tableCache: table.NewTableCache(fs, table.DefaultTableCacheOptions()),
	}
	db.cond = sync.NewCond(&db.mu)

	vsOpts := version.VersionSetOptions{
		DBName:              path,
		FS:                  fs,
		MaxManifestFileSize: 1024 * 1024 * 1024,
		NumLevels:           numLevels,
		ComparatorName:      comparator.Name(),
	}
	db.versions = version.NewVersionSet(vsOpts)

	var err error
	if exists {
		err = db.recover()
	} else {
		err = db.create()
	}
	if err != nil {
		return nil, err
	}

	db.bgWork = newBackgroundWork(db)
	db.bgWork.Start()
	db.bgWork.MaybeScheduleCompaction()

	return db, nil
}

// create bootstraps a brand new, empty database.
func (db *DBImpl) create() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.versions.Create(); err != nil {
		return err
	}

	logNumber := db.versions.NextFileNumber()
	logFile, err := db.fs.Create(db.logFilePath(logNumber))
	if err != nil {
		return err
	}
	db.logFile = logFile
	db.logFileNumber = logNumber
	db.logWriter = wal.NewWriter(logFile, logNumber, false)

	db.mem = memtable.NewMemTable(db.comparator.Compare)
	db.seq = 0

	edit := manifest.NewVersionEdit()
	edit.SetLogNumber(logNumber)
	return db.versions.LogAndApply(edit)
}

// recover reopens an existing database, replaying its write-ahead log.
func (db *DBImpl) recover() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.versions.Recover(); err != nil {
		return err
	}
	db.seq = db.versions.LastSequence()

	db.mem = memtable.NewMemTable(db.comparator.Compare)
	if err := db.replayLog(db.versions.LogNumber()); err != nil {
		return fmt.Errorf("replay WAL: %w", err)
	}

	logNumber := db.versions.NextFileNumber()
	logFile, err := db.fs.Create(db.logFilePath(logNumber))
	if err != nil {
		return err
	}
	db.logFile = logFile
	db.logFileNumber = logNumber
	db.logWriter = wal.NewWriter(logFile, logNumber, false)

	edit := manifest.NewVersionEdit()
	edit.SetLastSequence(db.seq)

	// The replayed data lives only in db.mem and the old log at this point.
	// Flush it to an SST immediately so LogNumber can safely advance past
	// the old log: otherwise, if this session closes again without ever
	// flushing, the next recovery would replay only the old (stale) log
	// number and miss every write made in this session's new log file.
	if !db.mem.Empty() {
		imm := db.mem
		db.mem = memtable.NewMemTable(db.comparator.Compare)

		job := flush.NewJob(db, imm)
		meta, err := job.Run()
		if err != nil {
			return fmt.Errorf("flush recovered memtable: %w", err)
		}
		if meta != nil {
			edit.AddFile(0, meta)
		}
	}
	edit.SetLogNumber(logNumber)

	return db.versions.LogAndApply(edit)
}

// replayLog replays the records of the WAL file numbered logNumber into
// db.mem. Other log files are not read.
// REQUIRES: db.mu held.
func (db *DBImpl) replayLog(logNumber uint64) error {
	path := db.logFilePath(logNumber)
	if !db.fs.Exists(path) {
		return nil
	}

	file, err := db.fs.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	reporter := &walCorruptionReporter{logger: db.logger}
	reader := wal.NewReader(file, reporter, true, logNumber)

	inserter := &memtableInserter{mem: db.mem}
	maxSeq := db.seq

	for {
		record, err := reader.ReadRecord()
		if err != nil {
			break
		}

		wb, err := batch.NewFromData(record)
		if err != nil {
			if db.options.ParanoidChecks {
				return err
			}
			continue
		}

		inserter.sequence = wb.Sequence()
		if err := wb.Iterate(inserter); err != nil {
			if db.options.ParanoidChecks {
				return err
			}
			continue
		}

		if last := wb.Sequence() + uint64(wb.Count()) - 1; wb.Count() > 0 && last > maxSeq {
			maxSeq = last
		}
	}

	if db.options.ParanoidChecks && reporter.err != nil {
		return reporter.err
	}

	db.seq = maxSeq
	return nil
}

// walCorruptionReporter logs WAL corruption encountered during recovery and
// keeps the first error.
type walCorruptionReporter struct {
	logger Logger
	err    error
}

func (r *walCorruptionReporter) Corruption(bytes int, err error) {
	if r.err == nil {
		r.err = err
	}
	if r.logger != nil {
		r.logger.Warnf("%sdropped %d bytes during WAL replay: %v", logging.NSRecovery, bytes, err)
	}
}

func (r *walCorruptionReporter) OldLogRecord(bytes int) {}

// memtableInserter applies a decoded WriteBatch to a memtable.
type memtableInserter struct {
	mem      *memtable.MemTable
	sequence uint64
}

func (m *memtableInserter) Put(key, value []byte) error {
	m.mem.Add(dbformat.SequenceNumber(m.sequence), dbformat.TypeValue, key, value)
	m.sequence++
	return nil
}

func (m *memtableInserter) Delete(key []byte) error {
	m.mem.Add(dbformat.SequenceNumber(m.sequence), dbformat.TypeDeletion, key, nil)
	m.sequence++
	return nil
}

func (m *memtableInserter) LogData(blob []byte) {}

// Put sets the value for key.
func (db *DBImpl) Put(opts *WriteOptions, key, value []byte) error {
	wb := batch.New()
	wb.Put(key, value)
	return db.write(opts, wb)
}

// Delete removes key.
func (db *DBImpl) Delete(opts *WriteOptions, key []byte) error {
	wb := batch.New()
	wb.Delete(key)
	return db.write(opts, wb)
}

// Write atomically applies the operations in wb.
func (db *DBImpl) Write(opts *WriteOptions, wb *WriteBatch) error {
	return db.write(opts, wb.internalBatch())
}

func (db *DBImpl) write(opts *WriteOptions, wb *batch.WriteBatch) error {
	if opts == nil {
		opts = DefaultWriteOptions()
	}

	if err := db.makeRoomForWrite(); err != nil {
		return err
	}

	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return ErrDBClosed
	}
	if db.backgroundError != nil {
		err := fmt.Errorf("%w: %w", ErrBackgroundError, db.backgroundError)
		db.mu.Unlock()
		return err
	}

	count := wb.Count()
	firstSeq := db.seq + 1
	wb.SetSequence(firstSeq)
	if count > 0 {
		db.seq += uint64(count)
	}

	if !opts.DisableWAL {
		if _, err := db.logWriter.AddRecord(wb.Data()); err != nil {
			db.mu.Unlock()
			return err
		}
		if opts.Sync {
			if err := db.logWriter.Sync(); err != nil {
				db.mu.Unlock()
				return err
			}
		}
	}

	mem := db.mem
	db.mu.Unlock()

	return wb.Iterate(&memtableInserter{mem: mem, sequence: firstSeq})
}

// makeRoomForWrite applies the write-stall policy: a one-time sleep once L0
// reaches its slowdown trigger, a wait for compaction once L0 reaches its
// stop-writes trigger, and a wait for flush once the active memtable is full
// and an immutable memtable is already pending flush.
func (db *DBImpl) makeRoomForWrite() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for {
		if db.closed {
			return ErrDBClosed
		}
		if db.backgroundError != nil {
			return fmt.Errorf("%w: %w", ErrBackgroundError, db.backgroundError)
		}

		numL0 := 0
		if v := db.versions.Current(); v != nil {
			numL0 = len(v.Files(0))
		}

		if numL0 >= db.options.Level0StopWritesTrigger {
			db.bgWork.MaybeScheduleCompaction()
			db.cond.Wait()
			continue
		}

		if db.mem.ApproximateMemoryUsage() < int64(db.options.WriteBufferSize) {
			if numL0 >= db.options.Level0SlowdownWritesTrigger {
				db.mu.Unlock()
				time.Sleep(time.Millisecond)
				db.mu.Lock()
			}
			return nil
		}

		if db.imm != nil {
			db.cond.Wait()
			continue
		}

		db.imm = db.mem
		db.mem = memtable.NewMemTable(db.comparator.Compare)
		db.bgWork.MaybeScheduleFlush()
		return nil
	}
}

// Get returns the value for key, or ErrNotFound.
func (db *DBImpl) Get(opts *ReadOptions, key []byte) ([]byte, error) {
	if opts == nil {
		opts = DefaultReadOptions()
	}

	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return nil, ErrDBClosed
	}
	seq := dbformat.SequenceNumber(db.seq)
	if opts.Snapshot != nil {
		seq = dbformat.SequenceNumber(opts.Snapshot.Sequence())
	}
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

	defer mem.Unref()
	defer func() {
		if imm != nil {
			imm.Unref()
		}
		if v != nil {
			v.Unref()
		}
	}()

	if value, found, deleted := mem.Get(key, seq); found {
		if deleted {
			return nil, ErrNotFound
		}
		return value, nil
	}
	if imm != nil {
		if value, found, deleted := imm.Get(key, seq); found {
			if deleted {
				return nil, ErrNotFound
			}
			return value, nil
		}
	}
	if v != nil {
		value, found, deleted, err := db.getFromVersion(v, key, seq)
		if err != nil {
			return nil, err
		}
		if found {
			if deleted {
				return nil, ErrNotFound
			}
			return value, nil
		}
	}
	return nil, ErrNotFound
}

// getFromVersion looks up userKey among the on-disk files of v, visible as
// of seq. L0 files may overlap in key range and are scanned newest file
// first; files at L1 and below are disjoint and sorted, so a binary search
// on Largest locates the one candidate file directly.
func (db *DBImpl) getFromVersion(v *version.Version, userKey []byte, seq dbformat.SequenceNumber) (value []byte, found, deleted bool, err error) {
	target := dbformat.NewInternalKey(userKey, seq, dbformat.ValueTypeForSeek)

	l0 := append([]*manifest.FileMetaData(nil), v.Files(0)...)
	sort.Slice(l0, func(i, j int) bool {
		return l0[i].FD.GetNumber() > l0[j].FD.GetNumber()
	})
	for _, f := range l0 {
		value, found, deleted, err = db.getFromFile(f, userKey, target)
		if err != nil || found {
			return
		}
	}

	for level := 1; level < v.NumLevels(); level++ {
		files := v.Files(level)
		idx := sort.Search(len(files), func(i int) bool {
			return db.comparator.Compare(dbformat.ExtractUserKey(files[i].Largest), userKey) >= 0
		})
		if idx >= len(files) {
			continue
		}
		f := files[idx]
		if db.comparator.Compare(userKey, dbformat.ExtractUserKey(f.Smallest)) < 0 {
			continue
		}
		value, found, deleted, err = db.getFromFile(f, userKey, target)
		if err != nil || found {
			return
		}
	}

	return nil, false, false, nil
}

func (db *DBImpl) getFromFile(f *manifest.FileMetaData, userKey, target []byte) ([]byte, bool, bool, error) {
	fileNum := f.FD.GetNumber()
	reader, err := db.tableCache.Get(fileNum, db.sstFilePath(fileNum))
	if err != nil {
		return nil, false, false, err
	}
	defer db.tableCache.Release(fileNum)

	iter := reader.NewIterator()
	iter.Seek(target)
	if !iter.Valid() {
		return nil, false, false, iter.Error()
	}
	key := iter.Key()
	if !bytes.Equal(dbformat.ExtractUserKey(key), userKey) {
		return nil, false, false, nil
	}
	if dbformat.ExtractValueType(key) == dbformat.TypeDeletion {
		return nil, true, true, nil
	}
	return append([]byte(nil), iter.Value()...), true, false, nil
}

// Flush seals the active memtable (if non-empty) and writes it to an SST
// file at level 0, waiting for any flush already in progress rather than
// failing.
func (db *DBImpl) Flush(opts *FlushOptions) error {
	if opts == nil {
		opts = DefaultFlushOptions()
	}

	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return ErrDBClosed
	}
	if db.backgroundError != nil {
		err := fmt.Errorf("%w: %w", ErrBackgroundError, db.backgroundError)
		db.mu.Unlock()
		return err
	}

	for db.imm != nil {
		db.cond.Wait()
		if db.closed {
			db.mu.Unlock()
			return ErrDBClosed
		}
		if db.backgroundError != nil {
			err := fmt.Errorf("%w: %w", ErrBackgroundError, db.backgroundError)
			db.mu.Unlock()
			return err
		}
	}

	if db.mem.Empty() {
		db.mu.Unlock()
		return nil
	}

	db.imm = db.mem
	db.mem = memtable.NewMemTable(db.comparator.Compare)
	db.mu.Unlock()

	if err := db.doFlush(); err != nil {
		return err
	}

	db.bgWork.MaybeScheduleCompaction()
	return nil
}

// SyncWAL fsyncs the current write-ahead log.
func (db *DBImpl) SyncWAL() error {
	db.mu.RLock()
	lw := db.logWriter
	db.mu.RUnlock()
	if lw == nil {
		return nil
	}
	return lw.Sync()
}

// GetLatestSequenceNumber returns the most recently assigned sequence number.
func (db *DBImpl) GetLatestSequenceNumber() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.seq
}

// Close shuts down the database, stopping background work and releasing
// file handles.
func (db *DBImpl) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	db.cond.Broadcast()
	db.mu.Unlock()

	if db.bgWork != nil {
		db.bgWork.Stop()
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.logFile != nil {
		_ = db.logFile.Close()
	}
	return db.versions.Close()
}

// GetSnapshot returns a handle to the database state as of now. The caller
// must call Release (or ReleaseSnapshot) when done with it.
func (db *DBImpl) GetSnapshot() *Snapshot {
	db.mu.RLock()
	seq := db.seq
	db.mu.RUnlock()

	s := newSnapshot(db, seq)

	db.snapshotLock.Lock()
	s.next = db.snapshots
	if db.snapshots != nil {
		db.snapshots.prev = s
	}
	db.snapshots = s
	db.snapshotLock.Unlock()

	return s
}

// ReleaseSnapshot releases a snapshot obtained from GetSnapshot.
func (db *DBImpl) ReleaseSnapshot(s *Snapshot) {
	if s != nil {
		s.Release()
	}
}

// releaseSnapshot unlinks s from the snapshot list. Called by Snapshot.Release
// once its reference count reaches zero.
func (db *DBImpl) releaseSnapshot(s *Snapshot) {
	db.snapshotLock.Lock()
	defer db.snapshotLock.Unlock()

	if s.prev != nil {
		s.prev.next = s.next
	} else if db.snapshots == s {
		db.snapshots = s.next
	}
	if s.next != nil {
		s.next.prev = s.prev
	}
	s.prev, s.next = nil, nil
}

func (db *DBImpl) countSnapshots() int {
	db.snapshotLock.Lock()
	defer db.snapshotLock.Unlock()
	n := 0
	for s := db.snapshots; s != nil; s = s.next {
		n++
	}
	return n
}

// oldestSnapshotSequence returns the sequence number of the oldest live
// snapshot, or the current sequence number if there are none — meaning
// compaction may drop any superseded entry.
func (db *DBImpl) oldestSnapshotSequence() dbformat.SequenceNumber {
	db.snapshotLock.Lock()
	defer db.snapshotLock.Unlock()

	if db.snapshots == nil {
		db.mu.RLock()
		seq := db.seq
		db.mu.RUnlock()
		return dbformat.SequenceNumber(seq)
	}

	oldest := db.snapshots.sequence
	for s := db.snapshots.next; s != nil; s = s.next {
		if s.sequence < oldest {
			oldest = s.sequence
		}
	}
	return dbformat.SequenceNumber(oldest)
}

// setBackgroundError records an unrecoverable background error, rejecting
// further writes while still allowing reads.
func (db *DBImpl) setBackgroundError(err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.backgroundError == nil {
		db.backgroundError = err
	}
	db.cond.Broadcast()
}

// GetProperty returns the value of an internal diagnostic property, or
// false if the property is unknown.
func (db *DBImpl) GetProperty(name string) (string, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return "", false
	}

	if after, ok := strings.CutPrefix(name, PropertyNumFilesAtLevelPrefix); ok {
		level, err := strconv.Atoi(after)
		if err != nil || level < 0 || level >= numLevels {
			return "", false
		}
		v := db.versions.Current()
		if v == nil {
			return "0", true
		}
		return strconv.Itoa(len(v.Files(level))), true
	}

	switch name {
	case PropertyNumImmutableMemTable:
		if db.imm != nil {
			return "1", true
		}
		return "0", true

	case PropertyMemTableFlushPending:
		if db.imm != nil {
			return "1", true
		}
		return "0", true

	case PropertyCurSizeActiveMemTable:
		return strconv.FormatUint(uint64(db.mem.ApproximateMemoryUsage()), 10), true

	case PropertyCurSizeAllMemTables:
		size := uint64(db.mem.ApproximateMemoryUsage())
		if db.imm != nil {
			size += uint64(db.imm.ApproximateMemoryUsage())
		}
		return strconv.FormatUint(size, 10), true

	case PropertyNumEntriesActiveMemTable:
		return strconv.FormatInt(db.mem.Count(), 10), true

	case PropertyCompactionPending:
		if db.bgWork != nil && db.bgWork.IsCompactionPending() {
			return "1", true
		}
		return "0", true

	case PropertyNumRunningFlushes:
		return strconv.Itoa(db.bgWork.NumRunningFlushes()), true

	case PropertyNumRunningCompactions:
		return strconv.Itoa(db.bgWork.NumRunningCompactions()), true

	case PropertyLevelStats:
		return db.getLevelStats(), true

	case PropertyNumSnapshots:
		return strconv.Itoa(db.countSnapshots()), true

	case PropertyOldestSnapshotTime:
		db.snapshotLock.Lock()
		defer db.snapshotLock.Unlock()
		if db.snapshots == nil {
			return "0", true
		}
		oldest := db.snapshots
		for s := db.snapshots.next; s != nil; s = s.next {
			if s.sequence < oldest.sequence {
				oldest = s
			}
		}
		return strconv.FormatInt(oldest.createdAt, 10), true

	case PropertyEstimateNumKeys:
		return strconv.FormatUint(db.estimateNumKeys(), 10), true

	case PropertyTotalSstFilesSize:
		return strconv.FormatUint(db.totalSstFilesSize(), 10), true

	case PropertyBackgroundErrors:
		return strconv.Itoa(db.bgWork.NumBackgroundErrors()), true

	case PropertyNumColumnFamilies:
		return "1", true

	default:
		return "", false
	}
}

func (db *DBImpl) getLevelStats() string {
	var sb strings.Builder
	sb.WriteString("Level Files Size(MB)\n")

	v := db.versions.Current()
	for level := 0; level < numLevels; level++ {
		var files []*manifest.FileMetaData
		if v != nil {
			files = v.Files(level)
		}
		var size uint64
		for _, f := range files {
			size += f.FD.FileSize
		}
		fmt.Fprintf(&sb, "  %d   %5d %8.2f\n", level, len(files), float64(size)/(1024*1024))
	}
	return sb.String()
}

func (db *DBImpl) estimateNumKeys() uint64 {
	estimate := uint64(db.mem.Count())
	if db.imm != nil {
		estimate += uint64(db.imm.Count())
	}
	if v := db.versions.Current(); v != nil {
		for level := 0; level < numLevels; level++ {
			for _, f := range v.Files(level) {
				estimate += f.FD.FileSize / 100
			}
		}
	}
	return estimate
}

func (db *DBImpl) totalSstFilesSize() uint64 {
	v := db.versions.Current()
	if v == nil {
		return 0
	}
	var size uint64
	for level := 0; level < numLevels; level++ {
		for _, f := range v.Files(level) {
			size += f.FD.FileSize
		}
	}
	return size
}

// NextFileNumber implements flush.DB and is also used by background compaction.
func (db *DBImpl) NextFileNumber() uint64 {
	return db.versions.NextFileNumber()
}

// SSTFilePath implements flush.DB.
func (db *DBImpl) SSTFilePath(fileNum uint64) string {
	return db.sstFilePath(fileNum)
}

// FS implements flush.DB.
func (db *DBImpl) FS() vfs.FS {
	return db.fs
}

// DBPath implements flush.DB.
func (db *DBImpl) DBPath() string {
	return db.name
}

// ComparatorName implements flush.DB.
func (db *DBImpl) ComparatorName() string {
	return db.comparator.Name()
}

var _ flush.DB = (*DBImpl)(nil)

func (db *DBImpl) sstFilePath(number uint64) string {
	return filepath.Join(db.name, fmt.Sprintf("%06d.sst", number))
}

func (db *DBImpl) logFilePath(number uint64) string {
	return filepath.Join(db.name, fmt.Sprintf("%06d.log", number))
}
