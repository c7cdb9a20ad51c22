package rockyardkv

// options.go implements database configuration options.

import (
	"github.com/aalhour/rockyardkv/internal/checksum"
	"github.com/aalhour/rockyardkv/internal/compression"
	"github.com/aalhour/rockyardkv/internal/logging"
	"github.com/aalhour/rockyardkv/internal/vfs"
)

// Logger is an alias for the logging.Logger interface.
// This allows users to pass their own logger implementation.
type Logger = logging.Logger

// CompressionType is an alias for the compression type.
type CompressionType = compression.Type

// Compression type constants.
const (
	NoCompression     = compression.NoCompression
	SnappyCompression = compression.SnappyCompression
	ZlibCompression   = compression.ZlibCompression
	LZ4Compression    = compression.LZ4Compression
	LZ4HCCompression  = compression.LZ4HCCompression
	ZstdCompression   = compression.ZstdCompression
)

// ChecksumType is an alias for the checksum type.
type ChecksumType = checksum.Type

// Checksum type constants
const (
	ChecksumTypeNoChecksum = checksum.TypeNoChecksum
	ChecksumTypeCRC32C     = checksum.TypeCRC32C
	ChecksumTypeXXH3       = checksum.TypeXXH3
)

// Options contains all configuration options for opening a database.
type Options struct {
	// CreateIfMissing causes Open to create the database if it does not exist.
	CreateIfMissing bool

	// ErrorIfExists causes Open to return an error if the database already exists.
	ErrorIfExists bool

	// ParanoidChecks enables additional checks for data integrity, including
	// rejecting a WAL with trailing corruption instead of tolerating it.
	ParanoidChecks bool

	// FS is the filesystem implementation to use.
	// If nil, the OS filesystem is used.
	FS vfs.FS

	// Comparator defines the order of keys in the database.
	// If nil, a default bytewise comparator is used.
	Comparator Comparator

	// WriteBufferSize is the size of a single memtable, in bytes, before it
	// is sealed as immutable and flushed.
	// Default: 4MB
	WriteBufferSize int

	// MaxOpenFiles is the maximum number of SST files to keep open in the
	// table cache.
	// Default: 1000
	MaxOpenFiles int

	// BlockSize is the approximate size of data blocks within SST files.
	// Default: 4KB
	BlockSize int

	// BlockRestartInterval is how often to create restart points in blocks.
	// Default: 16
	BlockRestartInterval int

	// ChecksumType specifies the checksum algorithm for SST files.
	// Default: CRC32C
	ChecksumType ChecksumType

	// Level0FileNumCompactionTrigger is the number of files in level-0 that
	// triggers compaction to level-1.
	// Default: 4
	Level0FileNumCompactionTrigger int

	// MaxBytesForLevelBase is the maximum total data size for level-1.
	// Default: 256MB
	MaxBytesForLevelBase uint64

	// BloomFilterBitsPerKey is the number of bits per key for bloom filters.
	// 0 disables bloom filters. Default: 10
	BloomFilterBitsPerKey int

	// Level0SlowdownWritesTrigger is the number of L0 files that triggers a
	// brief one-time sleep on the writing goroutine, to yield to compaction.
	// Default: 8
	Level0SlowdownWritesTrigger int

	// Level0StopWritesTrigger is the number of L0 files that stalls all
	// writers until compaction reduces the count.
	// Default: 20
	Level0StopWritesTrigger int

	// DisableAutoCompactions disables the background compaction worker.
	// Default: false
	DisableAutoCompactions bool

	// Compression specifies the compression algorithm for SST blocks.
	// Default: NoCompression
	Compression CompressionType

	// Logger is the logger for database operations.
	// If nil, a default logger writing to stderr is used.
	Logger Logger
}

// DefaultOptions returns a new Options with default values.
func DefaultOptions() *Options {
	return &Options{
		CreateIfMissing:                false,
		ErrorIfExists:                  false,
		ParanoidChecks:                 false,
		FS:                             nil, // Will use vfs.Default()
		Comparator:                     nil, // Will use BytewiseComparator
		WriteBufferSize:                4 * 1024 * 1024,
		MaxOpenFiles:                   1000,
		BlockSize:                      4096,
		BlockRestartInterval:           16,
		ChecksumType:                   ChecksumTypeCRC32C,
		Level0FileNumCompactionTrigger: 4,
		MaxBytesForLevelBase:           256 * 1024 * 1024,
		BloomFilterBitsPerKey:          10,
		Level0SlowdownWritesTrigger:    8,
		Level0StopWritesTrigger:        20,
		DisableAutoCompactions:         false,
		Compression:                    NoCompression,
		Logger:                         nil, // Will use logging.OrDefault
	}
}

// ReadOptions contains options for read operations.
type ReadOptions struct {
	// VerifyChecksums enables checksum verification when reading blocks.
	VerifyChecksums bool

	// FillCache indicates whether to fill the block cache on reads.
	FillCache bool

	// Snapshot provides a consistent view of the database.
	// If nil, the most recent state is used.
	Snapshot *Snapshot
}

// DefaultReadOptions returns ReadOptions with default values.
func DefaultReadOptions() *ReadOptions {
	return &ReadOptions{
		VerifyChecksums: true,
		FillCache:       true,
		Snapshot:        nil,
	}
}

// WriteOptions contains options for write operations.
type WriteOptions struct {
	// Sync causes writes to be flushed to the WAL and fsynced before returning.
	// This provides the strongest durability guarantee but reduces throughput.
	Sync bool

	// DisableWAL disables the write-ahead log for this write.
	//
	// WARNING: with DisableWAL=true, writes go directly to the memtable.
	// If the process crashes before Flush() is called, data is lost.
	DisableWAL bool
}

// DefaultWriteOptions returns WriteOptions with default values.
func DefaultWriteOptions() *WriteOptions {
	return &WriteOptions{
		Sync:       false,
		DisableWAL: false,
	}
}

// FlushOptions contains options for flush operations.
type FlushOptions struct {
	// Wait indicates whether to wait for the flush to complete.
	Wait bool
}

// DefaultFlushOptions returns FlushOptions with default values.
func DefaultFlushOptions() *FlushOptions {
	return &FlushOptions{
		Wait: true,
	}
}
