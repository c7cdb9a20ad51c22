// Package table provides SST file reading and writing.
//
// A TableBuilder assembles a sorted run of internal keys into an immutable
// table file: a sequence of data blocks, an index block mapping the last key
// of each data block to its handle, an optional Bloom filter block, a
// properties block, a metaindex block, and a fixed-size footer.
package table

import (
	"encoding/binary"
	"errors"
	"io"
	"sort"

	"github.com/aalhour/rockyardkv/internal/block"
	"github.com/aalhour/rockyardkv/internal/checksum"
	"github.com/aalhour/rockyardkv/internal/compression"
	"github.com/aalhour/rockyardkv/internal/encoding"
	"github.com/aalhour/rockyardkv/internal/filter"
)

// compressionHasEmbeddedSize returns true if the compression type embeds the
// uncompressed size in its own format, so no external varint32 prefix is
// needed before the compressed bytes. Snappy is the only one of ours that does.
func compressionHasEmbeddedSize(t compression.Type) bool {
	return t == compression.SnappyCompression
}

// BuilderOptions configures the TableBuilder.
type BuilderOptions struct {
	// BlockSize is the target size for data blocks (default: 4KB).
	BlockSize int

	// BlockRestartInterval is the number of keys between restart points (default: 16).
	BlockRestartInterval int

	// ChecksumType is the checksum algorithm protecting each block.
	ChecksumType checksum.Type

	// ComparatorName is the name of the key comparator, recorded in properties.
	ComparatorName string

	// FilterBitsPerKey controls Bloom filter accuracy (default: 10 = ~1% FP rate).
	// Set to 0 to disable the filter.
	FilterBitsPerKey int

	// Compression is the compression type for data blocks.
	Compression compression.Type
}

// DefaultBuilderOptions returns default options for TableBuilder.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		BlockSize:            4096,
		BlockRestartInterval: 16,
		ChecksumType:         checksum.TypeCRC32C,
		ComparatorName:       "rockyardkv.BytewiseComparator",
		FilterBitsPerKey:     10,
		Compression:          compression.NoCompression,
	}
}

// TableBuilder builds SST files in the block-based table format.
type TableBuilder struct {
	writer  io.Writer
	options BuilderOptions

	dataBlock       *block.Builder
	indexBlock      *block.Builder
	propertiesBlock *block.Builder

	filterBuilder *filter.BloomFilterBuilder

	pendingIndexEntry bool
	pendingHandle     block.Handle
	lastKey           []byte

	offset uint64

	numEntries    uint64
	numDataBlocks uint64
	rawKeySize    uint64
	rawValueSize  uint64
	dataSize      uint64
	indexSize     uint64
	filterSize    uint64
	numDeletions  uint64

	finished bool
	err      error
}

// NewTableBuilder creates a new TableBuilder that writes to w.
func NewTableBuilder(w io.Writer, opts BuilderOptions) *TableBuilder {
	if opts.BlockSize <= 0 {
		opts.BlockSize = 4096
	}
	if opts.BlockRestartInterval <= 0 {
		opts.BlockRestartInterval = 16
	}
	if opts.ChecksumType == 0 {
		opts.ChecksumType = checksum.TypeCRC32C
	}
	if opts.ComparatorName == "" {
		opts.ComparatorName = "rockyardkv.BytewiseComparator"
	}

	tb := &TableBuilder{
		writer:          w,
		options:         opts,
		dataBlock:       block.NewBuilder(opts.BlockRestartInterval),
		indexBlock:      block.NewBuilder(1),
		propertiesBlock: block.NewBuilder(1),
	}

	if opts.FilterBitsPerKey > 0 {
		tb.filterBuilder = filter.NewBloomFilterBuilder(opts.FilterBitsPerKey)
	}

	return tb
}

// Add adds a key-value pair to the table. Keys must be added in
// ascending internal-key order. isDeletion marks the entry for the
// num.deletions property.
func (tb *TableBuilder) Add(key, value []byte, isDeletion bool) error {
	if tb.finished {
		return errors.New("table: builder already finished")
	}
	if tb.err != nil {
		return tb.err
	}

	if tb.pendingIndexEntry {
		tb.indexBlock.Add(tb.lastKey, tb.pendingHandle.EncodeToSlice())
		tb.pendingIndexEntry = false
	}

	tb.dataBlock.Add(key, value)
	tb.numEntries++
	tb.rawKeySize += uint64(len(key))
	tb.rawValueSize += uint64(len(value))
	if isDeletion {
		tb.numDeletions++
	}

	if tb.filterBuilder != nil {
		userKey := key
		if len(key) > 8 {
			userKey = key[:len(key)-8]
		}
		tb.filterBuilder.AddKey(userKey)
	}

	tb.lastKey = append(tb.lastKey[:0], key...)

	if tb.dataBlock.EstimatedSize() >= tb.options.BlockSize {
		if err := tb.flushDataBlock(); err != nil {
			tb.err = err
			return err
		}
	}

	return nil
}

// flushDataBlock writes the current data block to the file.
func (tb *TableBuilder) flushDataBlock() error {
	if tb.dataBlock.Empty() {
		return nil
	}

	blockContents := tb.dataBlock.Finish()

	handle, err := tb.writeBlockWithTrailer(blockContents, true)
	if err != nil {
		return err
	}

	tb.dataSize += handle.Size
	tb.numDataBlocks++

	tb.pendingHandle = handle
	tb.pendingIndexEntry = true

	tb.dataBlock.Reset()

	return nil
}

// writeBlockWithTrailer writes a block with its trailer (compression type +
// checksum). compressible controls whether the configured compression type
// is applied (data blocks are compressed; meta blocks are not).
// Returns the handle (offset, size) of the written block.
func (tb *TableBuilder) writeBlockWithTrailer(blockData []byte, compressible bool) (block.Handle, error) {
	writeData := blockData
	compressionType := compression.NoCompression

	if compressible && tb.options.Compression != compression.NoCompression {
		compressed, err := compression.Compress(tb.options.Compression, blockData)
		if err == nil && compressed != nil && len(compressed) < len(blockData) {
			if !compressionHasEmbeddedSize(tb.options.Compression) {
				prefix := encoding.AppendVarint32(nil, uint32(len(blockData)))
				writeData = append(prefix, compressed...)
			} else {
				writeData = compressed
			}
			compressionType = tb.options.Compression
		}
	}

	handle := block.Handle{
		Offset: tb.offset,
		Size:   uint64(len(writeData)),
	}

	n, err := tb.writer.Write(writeData)
	if err != nil {
		return block.Handle{}, err
	}
	tb.offset += uint64(n)

	trailer := make([]byte, block.BlockTrailerSize)
	trailer[0] = byte(compressionType)
	cksum := checksum.ComputeChecksum(tb.options.ChecksumType, writeData, trailer[0])
	binary.LittleEndian.PutUint32(trailer[1:], cksum)

	n, err = tb.writer.Write(trailer)
	if err != nil {
		return block.Handle{}, err
	}
	tb.offset += uint64(n)

	return handle, nil
}

// Finish finalizes the table and writes the footer.
// After calling Finish, the TableBuilder should not be used.
func (tb *TableBuilder) Finish() error {
	if tb.finished {
		return errors.New("table: builder already finished")
	}
	if tb.err != nil {
		return tb.err
	}
	tb.finished = true

	if err := tb.flushDataBlock(); err != nil {
		tb.err = err
		return err
	}

	if tb.pendingIndexEntry {
		tb.indexBlock.Add(tb.lastKey, tb.pendingHandle.EncodeToSlice())
		tb.pendingIndexEntry = false
	}

	type metaEntry struct {
		key   string
		value []byte
	}
	var metaEntries []metaEntry

	if tb.filterBuilder != nil && tb.filterBuilder.NumKeys() > 0 {
		filterHandle, err := tb.writeFilterBlock()
		if err != nil {
			tb.err = err
			return err
		}
		metaEntries = append(metaEntries, metaEntry{"fullfilter.rockyardkv.BuiltinBloomFilter", filterHandle.EncodeToSlice()})
	}

	propertiesHandle, err := tb.writePropertiesBlock()
	if err != nil {
		tb.err = err
		return err
	}
	metaEntries = append(metaEntries, metaEntry{"rockyardkv.properties", propertiesHandle.EncodeToSlice()})

	indexContents := tb.indexBlock.Finish()
	indexHandle, err := tb.writeBlockWithTrailer(indexContents, false)
	if err != nil {
		tb.err = err
		return err
	}
	tb.indexSize = indexHandle.Size

	sort.Slice(metaEntries, func(i, j int) bool {
		return metaEntries[i].key < metaEntries[j].key
	})

	metaindexBuilder := block.NewBuilder(1)
	for _, entry := range metaEntries {
		metaindexBuilder.Add([]byte(entry.key), entry.value)
	}

	metaindexContents := metaindexBuilder.Finish()
	metaindexHandle, err := tb.writeBlockWithTrailer(metaindexContents, false)
	if err != nil {
		tb.err = err
		return err
	}

	if err := tb.writeFooter(metaindexHandle, indexHandle); err != nil {
		tb.err = err
		return err
	}

	return nil
}

// writeFilterBlock writes the Bloom filter block. The filter carries its own
// internal metadata trailer, so it is written with no compression.
func (tb *TableBuilder) writeFilterBlock() (block.Handle, error) {
	filterData := tb.filterBuilder.Finish()
	tb.filterSize = uint64(len(filterData))
	return tb.writeBlockWithTrailer(filterData, false)
}

// writePropertiesBlock writes the table properties block.
func (tb *TableBuilder) writePropertiesBlock() (block.Handle, error) {
	type prop struct {
		name  string
		value []byte
	}
	var properties []prop

	addUint64Prop := func(name string, value uint64) {
		buf := make([]byte, encoding.MaxVarintLen64)
		n := encoding.PutVarint64(buf, value)
		properties = append(properties, prop{name: name, value: buf[:n]})
	}
	addStringProp := func(name string, value string) {
		if value == "" {
			return
		}
		properties = append(properties, prop{name: name, value: []byte(value)})
	}

	addStringProp(PropComparator, tb.options.ComparatorName)
	addStringProp(PropCompression, tb.options.Compression.String())
	addUint64Prop(PropDataSize, tb.dataSize)
	if tb.filterSize > 0 {
		addStringProp(PropFilterPolicy, "rockyardkv.BuiltinBloomFilter")
	}
	addUint64Prop(PropFilterSize, tb.filterSize)
	addUint64Prop(PropIndexSize, tb.indexSize)
	addUint64Prop(PropNumDataBlocks, tb.numDataBlocks)
	addUint64Prop(PropNumEntries, tb.numEntries)
	addUint64Prop(PropNumDeletions, tb.numDeletions)
	addUint64Prop(PropRawKeySize, tb.rawKeySize)
	addUint64Prop(PropRawValueSize, tb.rawValueSize)

	sort.Slice(properties, func(i, j int) bool {
		return properties[i].name < properties[j].name
	})

	props := block.NewBuilder(1)
	for _, p := range properties {
		props.Add([]byte(p.name), p.value)
	}

	propsContents := props.Finish()
	return tb.writeBlockWithTrailer(propsContents, false)
}

// writeFooter writes the SST file footer.
func (tb *TableBuilder) writeFooter(metaindexHandle, indexHandle block.Handle) error {
	footer := &block.Footer{
		ChecksumType:    tb.options.ChecksumType,
		MetaindexHandle: metaindexHandle,
		IndexHandle:     indexHandle,
		FormatVersion:   block.FormatVersion,
		MagicNumber:     block.TableMagicNumber,
	}

	footerData := footer.EncodeTo()
	_, err := tb.writer.Write(footerData)
	if err != nil {
		return err
	}
	tb.offset += uint64(len(footerData))

	return nil
}

// Abandon abandons the table being built.
// After calling Abandon, the TableBuilder should not be used.
func (tb *TableBuilder) Abandon() {
	tb.finished = true
}

// NumEntries returns the number of entries added so far.
func (tb *TableBuilder) NumEntries() uint64 {
	return tb.numEntries
}

// FileSize returns the size of the file generated so far.
func (tb *TableBuilder) FileSize() uint64 {
	return tb.offset
}

// Status returns any error encountered during building.
func (tb *TableBuilder) Status() error {
	return tb.err
}
