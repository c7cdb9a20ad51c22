// Package batch implements the WriteBatch format for atomic writes.
//
// WriteBatch Format:
//
//	Header (12 bytes):
//	  - 8 bytes: sequence number (little-endian uint64)
//	  - 4 bytes: count (little-endian uint32)
//	Records (repeated):
//	  - 1 byte: tag (record type)
//	  - length-prefixed key
//	  - (for Put): length-prefixed value
package batch

import (
	"encoding/binary"
	"errors"

	"github.com/aalhour/rockyardkv/internal/encoding"
)

// HeaderSize is the size in bytes of the WriteBatch header (8 bytes sequence + 4 bytes count).
const HeaderSize = 12

// Record types for WriteBatch entries.
const (
	TypeDeletion byte = 0x00
	TypeValue    byte = 0x01
	TypeLogData  byte = 0x03
)

var (
	// ErrCorrupted indicates a malformed WriteBatch.
	ErrCorrupted = errors.New("batch: corrupted write batch")

	// ErrTooSmall indicates the batch is smaller than the header.
	ErrTooSmall = errors.New("batch: too small")
)

// WriteBatch represents a collection of writes to be applied atomically.
type WriteBatch struct {
	data []byte // The raw batch data including header
}

// New creates a new empty WriteBatch.
func New() *WriteBatch {
	return &WriteBatch{
		data: make([]byte, HeaderSize),
	}
}

// NewFromData creates a WriteBatch from existing data.
func NewFromData(data []byte) (*WriteBatch, error) {
	if len(data) < HeaderSize {
		return nil, ErrTooSmall
	}
	return &WriteBatch{data: data}, nil
}

// Clear resets the batch to empty state.
func (wb *WriteBatch) Clear() {
	wb.data = wb.data[:HeaderSize]
	binary.LittleEndian.PutUint32(wb.data[8:12], 0)
}

// Data returns the raw batch data.
func (wb *WriteBatch) Data() []byte {
	return wb.data
}

// Clone creates a deep copy of the WriteBatch.
func (wb *WriteBatch) Clone() *WriteBatch {
	clone := &WriteBatch{
		data: make([]byte, len(wb.data)),
	}
	copy(clone.data, wb.data)
	return clone
}

// Size returns the size of the batch data in bytes.
func (wb *WriteBatch) Size() int {
	return len(wb.data)
}

// Count returns the number of records in the batch.
func (wb *WriteBatch) Count() uint32 {
	return binary.LittleEndian.Uint32(wb.data[8:12])
}

// SetCount sets the count field.
func (wb *WriteBatch) SetCount(count uint32) {
	binary.LittleEndian.PutUint32(wb.data[8:12], count)
}

// Sequence returns the sequence number of the batch.
func (wb *WriteBatch) Sequence() uint64 {
	return binary.LittleEndian.Uint64(wb.data[0:8])
}

// SetSequence sets the sequence number of the batch.
func (wb *WriteBatch) SetSequence(seq uint64) {
	binary.LittleEndian.PutUint64(wb.data[0:8], seq)
}

// Put adds a Put record to the batch.
func (wb *WriteBatch) Put(key, value []byte) {
	wb.data = append(wb.data, TypeValue)
	wb.data = encoding.AppendLengthPrefixedSlice(wb.data, key)
	wb.data = encoding.AppendLengthPrefixedSlice(wb.data, value)
	wb.SetCount(wb.Count() + 1)
}

// Delete adds a Delete record to the batch.
func (wb *WriteBatch) Delete(key []byte) {
	wb.data = append(wb.data, TypeDeletion)
	wb.data = encoding.AppendLengthPrefixedSlice(wb.data, key)
	wb.SetCount(wb.Count() + 1)
}

// PutLogData adds a log data record to the batch.
// LogData is not counted as a regular operation.
func (wb *WriteBatch) PutLogData(blob []byte) {
	wb.data = append(wb.data, TypeLogData)
	wb.data = encoding.AppendLengthPrefixedSlice(wb.data, blob)
}

// Append appends the contents of another batch to this batch.
// The sequence number of the source batch is ignored.
func (wb *WriteBatch) Append(src *WriteBatch) {
	if src.Count() == 0 {
		return
	}
	wb.data = append(wb.data, src.data[HeaderSize:]...)
	wb.SetCount(wb.Count() + src.Count())
}

// HasPut returns true if the batch contains at least one Put operation.
func (wb *WriteBatch) HasPut() bool {
	return wb.hasTag(TypeValue)
}

// HasDelete returns true if the batch contains at least one Delete operation.
func (wb *WriteBatch) HasDelete() bool {
	return wb.hasTag(TypeDeletion)
}

// hasTag checks if the batch contains a specific tag.
func (wb *WriteBatch) hasTag(tag byte) bool {
	data := wb.data[HeaderSize:]
	for len(data) > 0 {
		t := data[0]
		if t == tag {
			return true
		}
		var err error
		if _, data, err = decodeLengthPrefixed(data[1:]); err != nil {
			return false
		}
		if t == TypeValue {
			if _, data, err = decodeLengthPrefixed(data); err != nil {
				return false
			}
		} else if t != TypeDeletion && t != TypeLogData {
			return false
		}
	}
	return false
}

// Handler is called for each record in the batch during iteration.
type Handler interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	LogData(blob []byte)
}

// Iterate calls the handler for each record in the batch.
func (wb *WriteBatch) Iterate(handler Handler) error {
	if len(wb.data) < HeaderSize {
		return ErrTooSmall
	}

	data := wb.data[HeaderSize:]

	for len(data) > 0 {
		tag := data[0]
		data = data[1:]

		var key, value []byte
		var err error

		switch tag {
		case TypeValue:
			key, data, err = decodeLengthPrefixed(data)
			if err != nil {
				return err
			}
			value, data, err = decodeLengthPrefixed(data)
			if err != nil {
				return err
			}
			if err := handler.Put(key, value); err != nil {
				return err
			}

		case TypeDeletion:
			key, data, err = decodeLengthPrefixed(data)
			if err != nil {
				return err
			}
			if err := handler.Delete(key); err != nil {
				return err
			}

		case TypeLogData:
			var blob []byte
			blob, data, err = decodeLengthPrefixed(data)
			if err != nil {
				return err
			}
			handler.LogData(blob)

		default:
			return ErrCorrupted
		}
	}

	return nil
}

func decodeLengthPrefixed(data []byte) ([]byte, []byte, error) {
	if len(data) == 0 {
		return nil, nil, ErrCorrupted
	}
	length, n, err := encoding.DecodeVarint32(data)
	if err != nil {
		return nil, nil, ErrCorrupted
	}
	data = data[n:]
	if len(data) < int(length) {
		return nil, nil, ErrCorrupted
	}
	value := data[:length]
	return value, data[length:], nil
}
