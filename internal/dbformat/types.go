// Package dbformat implements the internal key format shared by the
// memtable, the write-ahead log, and table files: user keys tagged with a
// sequence number and a value type, ordered so that the newest version of
// a user key always sorts first.
package dbformat

import (
	"errors"
	"fmt"

	"github.com/aalhour/rockyardkv/internal/encoding"
)

// SequenceNumber is a 56-bit write sequence counter.
type SequenceNumber uint64

// MaxSequenceNumber is the largest representable sequence number.
const MaxSequenceNumber SequenceNumber = (1 << 56) - 1

// NumInternalBytes is the size of the internal key trailer (sequence + type).
const NumInternalBytes = 8

// ValueType distinguishes a live value from a tombstone.
type ValueType uint8

const (
	// TypeDeletion marks a tombstone: the user key has no value at this sequence.
	TypeDeletion ValueType = 0x00
	// TypeValue marks a live value.
	TypeValue ValueType = 0x01
)

// ValueTypeForSeek is the type used when constructing a seek key for a user
// key: the largest possible type so the seek lands before any real entry
// for that user key, regardless of which type it carries.
const ValueTypeForSeek = TypeValue

var (
	// ErrKeyTooSmall is returned when an internal key is shorter than the trailer.
	ErrKeyTooSmall = errors.New("dbformat: internal key too small")

	// ErrInvalidValueType is returned when the value type byte is unrecognized.
	ErrInvalidValueType = errors.New("dbformat: invalid value type")
)

// IsValueType reports whether t is one of the two value types this format stores.
func IsValueType(t ValueType) bool {
	return t == TypeValue || t == TypeDeletion
}

// PackSequenceAndType packs a sequence number and value type into a 64-bit trailer.
func PackSequenceAndType(seq SequenceNumber, t ValueType) uint64 {
	return (uint64(seq) << 8) | uint64(t)
}

// UnpackSequenceAndType extracts the sequence number and value type from a trailer.
func UnpackSequenceAndType(packed uint64) (SequenceNumber, ValueType) {
	return SequenceNumber(packed >> 8), ValueType(packed & 0xFF)
}

// ParsedInternalKey is the decomposed form of an internal key.
type ParsedInternalKey struct {
	UserKey  []byte
	Sequence SequenceNumber
	Type     ValueType
}

func (p *ParsedInternalKey) String() string {
	return fmt.Sprintf("{UserKey: %q, Seq: %d, Type: %d}", p.UserKey, p.Sequence, p.Type)
}

// EncodedLength returns the length of the encoded internal key.
func (p *ParsedInternalKey) EncodedLength() int {
	return len(p.UserKey) + NumInternalBytes
}

// AppendInternalKey appends the encoding of key to dst and returns the result.
func AppendInternalKey(dst []byte, key *ParsedInternalKey) []byte {
	dst = append(dst, key.UserKey...)
	packed := PackSequenceAndType(key.Sequence, key.Type)
	return encoding.AppendFixed64(dst, packed)
}

// ParseInternalKey parses an internal key, reporting ErrInvalidValueType if
// the trailer's type byte is not recognized.
func ParseInternalKey(data []byte) (*ParsedInternalKey, error) {
	n := len(data)
	if n < NumInternalBytes {
		return nil, ErrKeyTooSmall
	}

	packed := encoding.DecodeFixed64(data[n-NumInternalBytes:])
	seq, t := UnpackSequenceAndType(packed)

	result := &ParsedInternalKey{
		UserKey:  data[:n-NumInternalBytes],
		Sequence: seq,
		Type:     t,
	}

	if !IsValueType(t) {
		return result, ErrInvalidValueType
	}
	return result, nil
}

// ExtractUserKey returns the user key portion of an internal key.
func ExtractUserKey(internalKey []byte) []byte {
	if len(internalKey) < NumInternalBytes {
		return nil
	}
	return internalKey[:len(internalKey)-NumInternalBytes]
}

// ExtractValueType returns the value type of an internal key.
func ExtractValueType(internalKey []byte) ValueType {
	if len(internalKey) < NumInternalBytes {
		return TypeDeletion
	}
	n := len(internalKey)
	packed := encoding.DecodeFixed64(internalKey[n-NumInternalBytes:])
	return ValueType(packed & 0xFF)
}

// ExtractSequenceNumber returns the sequence number of an internal key.
func ExtractSequenceNumber(internalKey []byte) SequenceNumber {
	if len(internalKey) < NumInternalBytes {
		return 0
	}
	n := len(internalKey)
	packed := encoding.DecodeFixed64(internalKey[n-NumInternalBytes:])
	return SequenceNumber(packed >> 8)
}

// InternalKey is an encoded internal key.
type InternalKey []byte

// NewInternalKey builds an internal key from its parts.
func NewInternalKey(userKey []byte, seq SequenceNumber, t ValueType) InternalKey {
	return AppendInternalKey(nil, &ParsedInternalKey{
		UserKey:  userKey,
		Sequence: seq,
		Type:     t,
	})
}

func (k InternalKey) UserKey() []byte          { return ExtractUserKey(k) }
func (k InternalKey) Sequence() SequenceNumber { return ExtractSequenceNumber(k) }
func (k InternalKey) Type() ValueType          { return ExtractValueType(k) }

// Valid reports whether k decodes to a well-formed internal key.
func (k InternalKey) Valid() bool {
	if len(k) < NumInternalBytes {
		return false
	}
	_, err := ParseInternalKey(k)
	return err == nil
}

// Parse decomposes k into a ParsedInternalKey.
func (k InternalKey) Parse() (*ParsedInternalKey, error) {
	return ParseInternalKey(k)
}

// UserKeyComparer orders two user keys; negative/zero/positive as a < b, a == b, a > b.
type UserKeyComparer func(a, b []byte) int

// BytewiseCompare is the default (and only supported, per spec) user key ordering.
func BytewiseCompare(a, b []byte) int {
	minLen := min(len(a), len(b))
	for i := range minLen {
		if a[i] < b[i] {
			return -1
		}
		if a[i] > b[i] {
			return 1
		}
	}
	if len(a) < len(b) {
		return -1
	}
	if len(a) > len(b) {
		return 1
	}
	return 0
}

// InternalKeyComparator orders internal keys: user key ascending, then
// sequence descending, then value type descending, so the newest version of
// a user key always sorts first among its siblings.
type InternalKeyComparator struct {
	userCompare UserKeyComparer
}

// NewInternalKeyComparator builds a comparator over the given user key ordering.
func NewInternalKeyComparator(userCompare UserKeyComparer) *InternalKeyComparator {
	if userCompare == nil {
		userCompare = BytewiseCompare
	}
	return &InternalKeyComparator{userCompare: userCompare}
}

// DefaultInternalKeyComparator is the bytewise comparator used when no
// custom user key comparator is supplied (a pluggable comparator is a
// non-goal; this is the only one this module wires up).
var DefaultInternalKeyComparator = NewInternalKeyComparator(BytewiseCompare)

// Compare orders two internal keys.
func (c *InternalKeyComparator) Compare(a, b []byte) int {
	userKeyA := ExtractUserKey(a)
	userKeyB := ExtractUserKey(b)
	if userKeyA == nil {
		userKeyA = a
	}
	if userKeyB == nil {
		userKeyB = b
	}

	if cmp := c.userCompare(userKeyA, userKeyB); cmp != 0 {
		return cmp
	}

	if len(a) >= NumInternalBytes && len(b) >= NumInternalBytes {
		trailerA := encoding.DecodeFixed64(a[len(a)-NumInternalBytes:])
		trailerB := encoding.DecodeFixed64(b[len(b)-NumInternalBytes:])
		if trailerA > trailerB {
			return -1
		}
		if trailerA < trailerB {
			return 1
		}
	}
	return 0
}

// CompareUserKey compares just the user key portion of two internal keys.
func (c *InternalKeyComparator) CompareUserKey(a, b []byte) int {
	userKeyA := ExtractUserKey(a)
	userKeyB := ExtractUserKey(b)
	if userKeyA == nil {
		userKeyA = a
	}
	if userKeyB == nil {
		userKeyB = b
	}
	return c.userCompare(userKeyA, userKeyB)
}

// UserCompare returns the wrapped user key comparison function.
func (c *InternalKeyComparator) UserCompare() UserKeyComparer {
	return c.userCompare
}

// CompareInternalKeys compares two internal keys using the default bytewise comparator.
func CompareInternalKeys(a, b []byte) int {
	return DefaultInternalKeyComparator.Compare(a, b)
}

// ShortestSeparator returns the shortest user key >= a and < b, trimming
// trailing bytes of a where possible. Used to keep SST index entries small;
// purely a size optimization, never affects correctness.
func ShortestSeparator(a, b []byte) []byte {
	minLen := min(len(a), len(b))
	diffIdx := 0
	for diffIdx < minLen && a[diffIdx] == b[diffIdx] {
		diffIdx++
	}
	if diffIdx >= minLen {
		return a
	}
	if a[diffIdx] >= 0xff || a[diffIdx]+1 >= b[diffIdx] {
		return a
	}
	shortest := make([]byte, diffIdx+1)
	copy(shortest, a[:diffIdx+1])
	shortest[diffIdx]++
	return shortest
}

// ShortSuccessor returns a short byte string >= a, used as the upper bound
// for the last index entry in a block.
func ShortSuccessor(a []byte) []byte {
	for i := 0; i < len(a); i++ {
		if a[i] != 0xff {
			short := make([]byte, i+1)
			copy(short, a[:i+1])
			short[i]++
			return short
		}
	}
	return a
}
