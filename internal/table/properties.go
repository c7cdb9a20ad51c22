// Package table provides SST file reading and writing functionality.
// This file implements TableProperties parsing.
package table

import (
	"github.com/aalhour/rockyardkv/internal/block"
	"github.com/aalhour/rockyardkv/internal/encoding"
)

// Property name constants.
const (
	PropDataSize      = "rockyardkv.data.size"
	PropIndexSize     = "rockyardkv.index.size"
	PropFilterSize    = "rockyardkv.filter.size"
	PropRawKeySize    = "rockyardkv.raw.key.size"
	PropRawValueSize  = "rockyardkv.raw.value.size"
	PropNumDataBlocks = "rockyardkv.num.data.blocks"
	PropNumEntries    = "rockyardkv.num.entries"
	PropNumDeletions  = "rockyardkv.num.deletions"
	PropFormatVersion = "rockyardkv.format.version"
	PropFilterPolicy  = "rockyardkv.filter.policy"
	PropComparator    = "rockyardkv.comparator"
	PropCompression   = "rockyardkv.compression"
)

// TableProperties contains metadata about an SST file, collected while it
// was built and stored in the properties meta block.
type TableProperties struct {
	DataSize      uint64
	IndexSize     uint64
	FilterSize    uint64
	RawKeySize    uint64
	RawValueSize  uint64
	NumDataBlocks uint64
	NumEntries    uint64
	NumDeletions  uint64
	FormatVersion uint64

	FilterPolicyName string
	ComparatorName   string
	CompressionName  string

	UserCollectedProperties map[string]string
}

// ParsePropertiesBlock parses a properties block into TableProperties.
func ParsePropertiesBlock(data []byte) (*TableProperties, error) {
	blk, err := block.NewBlock(data)
	if err != nil {
		return nil, err
	}

	props := &TableProperties{
		UserCollectedProperties: make(map[string]string),
	}

	iter := blk.NewIterator()
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		key := string(iter.Key())
		value := iter.Value()

		if parseUint64Property(props, key, value) {
			continue
		}
		if parseStringProperty(props, key, value) {
			continue
		}
		props.UserCollectedProperties[key] = string(value)
	}

	return props, nil
}

func parseUint64Property(props *TableProperties, key string, value []byte) bool {
	var target *uint64

	switch key {
	case PropDataSize:
		target = &props.DataSize
	case PropIndexSize:
		target = &props.IndexSize
	case PropFilterSize:
		target = &props.FilterSize
	case PropRawKeySize:
		target = &props.RawKeySize
	case PropRawValueSize:
		target = &props.RawValueSize
	case PropNumDataBlocks:
		target = &props.NumDataBlocks
	case PropNumEntries:
		target = &props.NumEntries
	case PropNumDeletions:
		target = &props.NumDeletions
	case PropFormatVersion:
		target = &props.FormatVersion
	default:
		return false
	}

	v, _, err := encoding.DecodeVarint64(value)
	if err != nil {
		return false
	}
	*target = v
	return true
}

func parseStringProperty(props *TableProperties, key string, value []byte) bool {
	switch key {
	case PropFilterPolicy:
		props.FilterPolicyName = string(value)
	case PropComparator:
		props.ComparatorName = string(value)
	case PropCompression:
		props.CompressionName = string(value)
	default:
		return false
	}
	return true
}
