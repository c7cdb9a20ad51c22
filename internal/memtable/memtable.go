package memtable

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/aalhour/rockyardkv/internal/dbformat"
)

// MemTable is an in-memory data structure that holds writes before they are
// flushed to SST files. It uses a SkipList for ordered storage.
//
// Entry format stored in the SkipList:
//
//	internal_key_size : varint32 (length of internal_key)
//	internal_key      : internal_key_size bytes (user_key + 8 bytes for seq+type)
//	value_size        : varint32 (length of value)
//	value             : value_size bytes
type MemTable struct {
	skiplist *SkipList
	compare  Comparator

	memoryUsage int64

	firstSeqno    dbformat.SequenceNumber
	earliestSeqno dbformat.SequenceNumber

	refs int32

	// nextLogNumber indicates which WAL files can be deleted after this
	// memtable is flushed. WAL files with number < nextLogNumber can be
	// safely deleted. Set when the memtable becomes immutable, to the log
	// number of the new log file that will receive subsequent writes.
	nextLogNumber uint64

	mu sync.Mutex
}

// NewMemTable creates a new MemTable.
func NewMemTable(cmp Comparator) *MemTable {
	if cmp == nil {
		cmp = BytewiseComparator
	}

	internalCmp := func(a, b []byte) int {
		return compareMemTableEntries(a, b, cmp)
	}

	return &MemTable{
		skiplist:      NewSkipList(internalCmp),
		compare:       cmp,
		refs:          1,
		firstSeqno:    0,
		earliestSeqno: ^dbformat.SequenceNumber(0),
	}
}

// extractInternalKey extracts the internal key from a memtable entry.
// Entry format: [keyLen:varint][internalKey][valueLen:varint][value]
func extractInternalKey(entry []byte) []byte {
	if len(entry) < 2 {
		return nil
	}
	keyLen, n := decodeVarint32(entry)
	if n <= 0 || int(keyLen) > len(entry)-n {
		return nil
	}
	return entry[n : n+int(keyLen)]
}

// compareMemTableEntries compares two memtable entries.
// Internal key format: user_key + 8-byte trailer (seq << 8 | type).
// Order: user_key ascending, seq descending, type descending.
func compareMemTableEntries(a, b []byte, userCmp Comparator) int {
	aInternalKey := extractInternalKey(a)
	bInternalKey := extractInternalKey(b)

	if aInternalKey == nil || bInternalKey == nil {
		return userCmp(a, b)
	}

	if len(aInternalKey) < 8 || len(bInternalKey) < 8 {
		return userCmp(aInternalKey, bInternalKey)
	}

	aUserKey := aInternalKey[:len(aInternalKey)-8]
	bUserKey := bInternalKey[:len(bInternalKey)-8]

	cmp := userCmp(aUserKey, bUserKey)
	if cmp != 0 {
		return cmp
	}

	aTrailer := binary.LittleEndian.Uint64(aInternalKey[len(aInternalKey)-8:])
	bTrailer := binary.LittleEndian.Uint64(bInternalKey[len(bInternalKey)-8:])

	if aTrailer > bTrailer {
		return -1
	} else if aTrailer < bTrailer {
		return 1
	}
	return 0
}

// Ref increments the reference count.
func (mt *MemTable) Ref() {
	atomic.AddInt32(&mt.refs, 1)
}

// Unref decrements the reference count and returns true if no more references.
func (mt *MemTable) Unref() bool {
	return atomic.AddInt32(&mt.refs, -1) == 0
}

// Add inserts a key-value pair into the memtable.
// typ is TypeValue for a Put, TypeDeletion for a Delete.
func (mt *MemTable) Add(seq dbformat.SequenceNumber, typ dbformat.ValueType, key, value []byte) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	internalKeyLen := len(key) + 8
	trailer := dbformat.PackSequenceAndType(seq, typ)

	// [internal_key_len:varint32][internal_key][value_len:varint32][value]
	entry := make([]byte, 0, internalKeyLen+len(value)+10)
	entry = appendVarint32(entry, uint32(internalKeyLen))
	entry = append(entry, key...)
	entry = append(entry, 0, 0, 0, 0, 0, 0, 0, 0) // placeholder for trailer
	binary.LittleEndian.PutUint64(entry[len(entry)-8:], trailer)
	entry = appendVarint32(entry, uint32(len(value)))
	entry = append(entry, value...)

	mt.skiplist.Insert(entry)

	atomic.AddInt64(&mt.memoryUsage, int64(len(entry)+64)) // 64 for skiplist node overhead

	if seq < mt.earliestSeqno {
		mt.earliestSeqno = seq
	}
	if seq > mt.firstSeqno {
		mt.firstSeqno = seq
	}
}

// Get looks up a key in the memtable.
// Returns the value and whether the key was found.
// If the key was deleted, returns nil value with found=true and deleted=true.
func (mt *MemTable) Get(key []byte, seq dbformat.SequenceNumber) (value []byte, found bool, deleted bool) {
	lookupKey := make([]byte, len(key)+8)
	copy(lookupKey, key)
	binary.LittleEndian.PutUint64(lookupKey[len(key):], dbformat.PackSequenceAndType(seq, dbformat.ValueTypeForSeek))

	iter := mt.skiplist.NewIterator()
	iter.Seek(buildLookupEntry(lookupKey))

	if !iter.Valid() {
		return nil, false, false
	}

	entryKey, entryValue, entrySeq, entryType, ok := parseEntry(iter.Key())
	if !ok {
		return nil, false, false
	}

	if mt.compare(key, entryKey) != 0 {
		return nil, false, false
	}

	if entrySeq > seq {
		return nil, false, false
	}

	switch entryType {
	case dbformat.TypeValue:
		return entryValue, true, false
	case dbformat.TypeDeletion:
		return nil, true, true
	default:
		return nil, false, false
	}
}

// buildLookupEntry builds an entry suitable for seeking.
func buildLookupEntry(internalKey []byte) []byte {
	entry := make([]byte, 0, len(internalKey)+5)
	entry = appendVarint32(entry, uint32(len(internalKey)))
	entry = append(entry, internalKey...)
	return entry
}

// parseEntry parses a memtable entry and returns its components.
func parseEntry(entry []byte) (key, value []byte, seq dbformat.SequenceNumber, typ dbformat.ValueType, ok bool) {
	if len(entry) < 2 {
		return nil, nil, 0, 0, false
	}

	keyLen, n := decodeVarint32(entry)
	if n <= 0 || int(keyLen) > len(entry)-n {
		return nil, nil, 0, 0, false
	}
	entry = entry[n:]

	if keyLen < 8 {
		return nil, nil, 0, 0, false
	}

	internalKey := entry[:keyLen]
	entry = entry[keyLen:]

	key = internalKey[:keyLen-8]
	trailer := binary.LittleEndian.Uint64(internalKey[keyLen-8:])
	seq, typ = dbformat.UnpackSequenceAndType(trailer)

	if len(entry) < 1 {
		return key, nil, seq, typ, true // No value (deletion)
	}

	valueLen, n := decodeVarint32(entry)
	if n <= 0 {
		return nil, nil, 0, 0, false
	}
	entry = entry[n:]

	if int(valueLen) > len(entry) {
		return nil, nil, 0, 0, false
	}

	value = entry[:valueLen]
	return key, value, seq, typ, true
}

// ApproximateMemoryUsage returns the approximate memory usage in bytes.
func (mt *MemTable) ApproximateMemoryUsage() int64 {
	return atomic.LoadInt64(&mt.memoryUsage)
}

// NextLogNumber returns the log number that can be deleted after this
// memtable is flushed. Returns 0 if not set.
func (mt *MemTable) NextLogNumber() uint64 {
	return atomic.LoadUint64(&mt.nextLogNumber)
}

// SetNextLogNumber sets the log number for deletion after flush.
// This should be called when the memtable becomes immutable.
func (mt *MemTable) SetNextLogNumber(num uint64) {
	atomic.StoreUint64(&mt.nextLogNumber, num)
}

// Count returns the number of entries in the memtable.
func (mt *MemTable) Count() int64 {
	return mt.skiplist.Count()
}

// Empty returns true if the memtable has no entries.
func (mt *MemTable) Empty() bool {
	return mt.Count() == 0
}

// NewIterator returns an iterator over the memtable.
func (mt *MemTable) NewIterator() *MemTableIterator {
	return &MemTableIterator{
		iter:    mt.skiplist.NewIterator(),
		compare: mt.compare,
	}
}

// MemTableIterator iterates over memtable entries.
type MemTableIterator struct {
	iter    *Iterator
	compare Comparator

	userKey []byte
	value   []byte
	seq     dbformat.SequenceNumber
	typ     dbformat.ValueType
	valid   bool
}

// Valid returns true if the iterator is positioned at a valid entry.
func (it *MemTableIterator) Valid() bool {
	return it.valid && it.iter.Valid()
}

// SeekToFirst positions the iterator at the first entry.
func (it *MemTableIterator) SeekToFirst() {
	it.iter.SeekToFirst()
	it.parseCurrentEntry()
}

// SeekToLast positions the iterator at the last entry.
func (it *MemTableIterator) SeekToLast() {
	it.iter.SeekToLast()
	it.parseCurrentEntry()
}

// Seek positions the iterator at the first entry with key >= target.
func (it *MemTableIterator) Seek(target []byte) {
	it.iter.Seek(buildLookupEntry(target))
	it.parseCurrentEntry()
}

// Next advances to the next entry.
func (it *MemTableIterator) Next() {
	it.iter.Next()
	it.parseCurrentEntry()
}

// Prev moves to the previous entry.
func (it *MemTableIterator) Prev() {
	it.iter.Prev()
	it.parseCurrentEntry()
}

// UserKey returns the user key (without internal key suffix).
func (it *MemTableIterator) UserKey() []byte {
	return it.userKey
}

// Key returns the full internal key (userKey + sequence + type).
func (it *MemTableIterator) Key() []byte {
	key := make([]byte, len(it.userKey)+8)
	copy(key, it.userKey)
	trailer := (uint64(it.seq) << 8) | uint64(it.typ)
	binary.LittleEndian.PutUint64(key[len(it.userKey):], trailer)
	return key
}

// Value returns the value.
func (it *MemTableIterator) Value() []byte {
	return it.value
}

// Error returns any error that occurred during iteration.
func (it *MemTableIterator) Error() error {
	return nil
}

// Sequence returns the sequence number.
func (it *MemTableIterator) Sequence() dbformat.SequenceNumber {
	return it.seq
}

// Type returns the value type.
func (it *MemTableIterator) Type() dbformat.ValueType {
	return it.typ
}

// parseCurrentEntry parses the current entry from the underlying skiplist iterator.
func (it *MemTableIterator) parseCurrentEntry() {
	if !it.iter.Valid() {
		it.valid = false
		it.userKey = nil
		it.value = nil
		return
	}

	var ok bool
	it.userKey, it.value, it.seq, it.typ, ok = parseEntry(it.iter.Key())
	it.valid = ok
}

func appendVarint32(buf []byte, v uint32) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	buf = append(buf, byte(v))
	return buf
}

func decodeVarint32(data []byte) (uint32, int) {
	var v uint32
	for i := 0; i < 5 && i < len(data); i++ {
		b := data[i]
		v |= uint32(b&0x7F) << (7 * i)
		if b < 0x80 {
			return v, i + 1
		}
	}
	return 0, 0 // Invalid varint
}
