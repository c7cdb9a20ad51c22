// version_edit.go implements VersionEdit encoding and decoding.
//
// VersionEdit describes a set of changes to be applied to a Version: files
// added, files deleted, and the log/sequence bookkeeping needed to recover
// them. It is serialized to the MANIFEST file and replayed during recovery.
package manifest

import (
	"errors"

	"github.com/aalhour/rockyardkv/internal/encoding"
)

// Errors returned during VersionEdit encoding/decoding.
var (
	ErrInvalidTag           = errors.New("manifest: invalid tag")
	ErrUnexpectedEndOfInput = errors.New("manifest: unexpected end of input")
	ErrInvalidFileMetadata  = errors.New("manifest: invalid file metadata")
	ErrUnknownRequiredTag   = errors.New("manifest: unknown required tag")
)

// SequenceNumber represents a database sequence number.
type SequenceNumber uint64

// MaxSequenceNumber is the maximum valid sequence number.
const MaxSequenceNumber SequenceNumber = (1 << 56) - 1

// UnknownTag holds a tag/value pair that was marked safe-to-ignore by the
// writer but isn't recognized by this decoder. It is carried through
// decode-then-encode unchanged so a manifest written by a newer binary and
// read by an older one doesn't silently lose state on the next rewrite.
type UnknownTag struct {
	Tag   uint32
	Value []byte
}

// FileDescriptor contains the core file identification and size info.
type FileDescriptor struct {
	PackedNumberAndPathID uint64
	FileSize              uint64
	SmallestSeqno         SequenceNumber
	LargestSeqno          SequenceNumber
}

// NewFileDescriptor creates a new FileDescriptor.
func NewFileDescriptor(number uint64, pathID uint32, fileSize uint64) FileDescriptor {
	return FileDescriptor{
		PackedNumberAndPathID: PackFileNumberAndPathID(number, uint64(pathID)),
		FileSize:              fileSize,
		SmallestSeqno:         MaxSequenceNumber,
		LargestSeqno:          0,
	}
}

// GetNumber returns the file number.
func (fd *FileDescriptor) GetNumber() uint64 {
	return fd.PackedNumberAndPathID & FileNumberMask
}

// GetPathID returns the path ID.
func (fd *FileDescriptor) GetPathID() uint32 {
	return uint32(fd.PackedNumberAndPathID / (FileNumberMask + 1))
}

// FileMetaData contains complete metadata about an SST file.
type FileMetaData struct {
	FD       FileDescriptor
	Smallest []byte // Smallest internal key
	Largest  []byte // Largest internal key

	EpochNumber          uint64
	FileChecksum         string
	FileChecksumFuncName string
	MarkedForCompaction  bool

	// Runtime state (not persisted)
	BeingCompacted bool // True if this file is currently being compacted

	// AllowedSeeks is a seek-compaction budget field. Nothing in this
	// module reads or decrements it, and no compaction is triggered by
	// point lookups.
	AllowedSeeks int64

	// UnknownCustomTags holds NewFile4 custom tags not recognized by this
	// decoder but marked safe-to-ignore; preserved across re-encoding.
	UnknownCustomTags []UnknownTag
}

// NewFileMetaData creates a new FileMetaData with default values.
func NewFileMetaData() *FileMetaData {
	return &FileMetaData{
		EpochNumber:          UnknownEpochNumber,
		FileChecksumFuncName: UnknownFileChecksumFuncName,
	}
}

// DeletedFileEntry represents a file to be deleted.
type DeletedFileEntry struct {
	Level      int
	FileNumber uint64
}

// NewFileEntry represents a new file to be added.
type NewFileEntry struct {
	Level int
	Meta  *FileMetaData
}

// VersionEdit represents a single edit to the database version.
// It is encoded in the MANIFEST file to track database state changes.
type VersionEdit struct {
	// Database identification
	DBId    string
	HasDBId bool

	// Comparator name
	Comparator    string
	HasComparator bool

	// Log file numbers
	LogNumber             uint64
	HasLogNumber          bool
	PrevLogNumber         uint64
	HasPrevLogNumber      bool
	MinLogNumberToKeep    uint64
	HasMinLogNumberToKeep bool

	// File number allocation
	NextFileNumber    uint64
	HasNextFileNumber bool

	// Sequence numbers
	LastSequence    SequenceNumber
	HasLastSequence bool

	// File changes
	DeletedFiles []DeletedFileEntry
	NewFiles     []NewFileEntry

	// Compact cursors (level -> key). They are encoded and decoded with the
	// edit; no compaction in this module reads them.
	CompactCursors []struct {
		Level int
		Key   []byte
	}

	// UnknownTags holds top-level tags not recognized by this decoder but
	// marked safe-to-ignore; preserved across re-encoding.
	UnknownTags []UnknownTag
}

// NewVersionEdit creates a new empty VersionEdit.
func NewVersionEdit() *VersionEdit {
	return &VersionEdit{}
}

// Clear resets the VersionEdit to its initial state.
func (ve *VersionEdit) Clear() {
	*ve = VersionEdit{}
}

// SetDBId sets the database ID.
func (ve *VersionEdit) SetDBId(dbID string) {
	ve.DBId = dbID
	ve.HasDBId = true
}

// SetComparatorName sets the comparator name.
func (ve *VersionEdit) SetComparatorName(name string) {
	ve.Comparator = name
	ve.HasComparator = true
}

// SetLogNumber sets the current log number.
func (ve *VersionEdit) SetLogNumber(num uint64) {
	ve.LogNumber = num
	ve.HasLogNumber = true
}

// SetPrevLogNumber sets the previous log number.
func (ve *VersionEdit) SetPrevLogNumber(num uint64) {
	ve.PrevLogNumber = num
	ve.HasPrevLogNumber = true
}

// SetNextFileNumber sets the next file number.
func (ve *VersionEdit) SetNextFileNumber(num uint64) {
	ve.NextFileNumber = num
	ve.HasNextFileNumber = true
}

// SetLastSequence sets the last sequence number.
func (ve *VersionEdit) SetLastSequence(seq SequenceNumber) {
	ve.LastSequence = seq
	ve.HasLastSequence = true
}

// SetMinLogNumberToKeep sets the minimum log number to keep.
func (ve *VersionEdit) SetMinLogNumberToKeep(num uint64) {
	ve.MinLogNumberToKeep = num
	ve.HasMinLogNumberToKeep = true
}

// DeleteFile adds a file deletion entry.
func (ve *VersionEdit) DeleteFile(level int, fileNumber uint64) {
	ve.DeletedFiles = append(ve.DeletedFiles, DeletedFileEntry{
		Level:      level,
		FileNumber: fileNumber,
	})
}

// AddFile adds a new file entry.
func (ve *VersionEdit) AddFile(level int, meta *FileMetaData) {
	ve.NewFiles = append(ve.NewFiles, NewFileEntry{
		Level: level,
		Meta:  meta,
	})
}

// EncodeTo encodes the VersionEdit to a byte slice.
func (ve *VersionEdit) EncodeTo() []byte {
	var dst []byte

	if ve.HasDBId {
		dst = encoding.AppendVarint32(dst, uint32(TagDBID))
		dst = encoding.AppendLengthPrefixedSlice(dst, []byte(ve.DBId))
	}

	if ve.HasComparator {
		dst = encoding.AppendVarint32(dst, uint32(TagComparator))
		dst = encoding.AppendLengthPrefixedSlice(dst, []byte(ve.Comparator))
	}

	if ve.HasLogNumber {
		dst = encoding.AppendVarint32(dst, uint32(TagLogNumber))
		dst = encoding.AppendVarint64(dst, ve.LogNumber)
	}

	if ve.HasPrevLogNumber {
		dst = encoding.AppendVarint32(dst, uint32(TagPrevLogNumber))
		dst = encoding.AppendVarint64(dst, ve.PrevLogNumber)
	}

	if ve.HasNextFileNumber {
		dst = encoding.AppendVarint32(dst, uint32(TagNextFileNumber))
		dst = encoding.AppendVarint64(dst, ve.NextFileNumber)
	}

	if ve.HasMinLogNumberToKeep {
		dst = encoding.AppendVarint32(dst, uint32(TagMinLogNumberToKeep))
		dst = encoding.AppendVarint64(dst, ve.MinLogNumberToKeep)
	}

	if ve.HasLastSequence {
		dst = encoding.AppendVarint32(dst, uint32(TagLastSequence))
		dst = encoding.AppendVarint64(dst, uint64(ve.LastSequence))
	}

	// Compact cursors
	for _, cc := range ve.CompactCursors {
		dst = encoding.AppendVarint32(dst, uint32(TagCompactCursor))
		dst = encoding.AppendVarint32(dst, uint32(cc.Level))
		dst = encoding.AppendLengthPrefixedSlice(dst, cc.Key)
	}

	// Deleted files
	for _, df := range ve.DeletedFiles {
		dst = encoding.AppendVarint32(dst, uint32(TagDeletedFile))
		dst = encoding.AppendVarint32(dst, uint32(df.Level))
		dst = encoding.AppendVarint64(dst, df.FileNumber)
	}

	// New files (using NewFile4 format)
	for _, nf := range ve.NewFiles {
		dst = ve.encodeNewFile4(dst, nf)
	}

	// Unrecognized-but-safe-to-ignore tags, preserved verbatim.
	for _, ut := range ve.UnknownTags {
		dst = encoding.AppendVarint32(dst, ut.Tag)
		dst = encoding.AppendLengthPrefixedSlice(dst, ut.Value)
	}

	return dst
}

// encodeNewFile4 encodes a new file entry in NewFile4 format.
func (ve *VersionEdit) encodeNewFile4(dst []byte, nf NewFileEntry) []byte {
	f := nf.Meta

	dst = encoding.AppendVarint32(dst, uint32(TagNewFile4))
	dst = encoding.AppendVarint32(dst, uint32(nf.Level))
	dst = encoding.AppendVarint64(dst, f.FD.GetNumber())
	dst = encoding.AppendVarint64(dst, f.FD.FileSize)

	// Encode file boundaries
	dst = encoding.AppendLengthPrefixedSlice(dst, f.Smallest)
	dst = encoding.AppendLengthPrefixedSlice(dst, f.Largest)

	dst = encoding.AppendVarint64(dst, uint64(f.FD.SmallestSeqno))
	dst = encoding.AppendVarint64(dst, uint64(f.FD.LargestSeqno))

	// Custom fields
	// Epoch number
	dst = encoding.AppendVarint32(dst, uint32(NewFileTagEpochNumber))
	var epochBytes []byte
	epochBytes = encoding.AppendVarint64(epochBytes, f.EpochNumber)
	dst = encoding.AppendLengthPrefixedSlice(dst, epochBytes)

	// File checksum (if not unknown)
	if f.FileChecksumFuncName != UnknownFileChecksumFuncName {
		dst = encoding.AppendVarint32(dst, uint32(NewFileTagFileChecksum))
		dst = encoding.AppendLengthPrefixedSlice(dst, []byte(f.FileChecksum))

		dst = encoding.AppendVarint32(dst, uint32(NewFileTagFileChecksumFuncName))
		dst = encoding.AppendLengthPrefixedSlice(dst, []byte(f.FileChecksumFuncName))
	}

	// Path ID (if not 0)
	if f.FD.GetPathID() != 0 {
		dst = encoding.AppendVarint32(dst, uint32(NewFileTagPathID))
		dst = encoding.AppendLengthPrefixedSlice(dst, []byte{byte(f.FD.GetPathID())})
	}

	// Marked for compaction
	if f.MarkedForCompaction {
		dst = encoding.AppendVarint32(dst, uint32(NewFileTagNeedCompaction))
		dst = encoding.AppendLengthPrefixedSlice(dst, []byte{1})
	}

	// Unrecognized-but-safe-to-ignore custom tags, preserved verbatim.
	for _, ut := range f.UnknownCustomTags {
		dst = encoding.AppendVarint32(dst, ut.Tag)
		dst = encoding.AppendLengthPrefixedSlice(dst, ut.Value)
	}

	// Terminating tag
	dst = encoding.AppendVarint32(dst, uint32(NewFileTagTerminate))

	return dst
}

// DecodeFrom decodes a VersionEdit from a byte slice.
func (ve *VersionEdit) DecodeFrom(data []byte) error {
	ve.Clear()

	for len(data) > 0 {
		tagVal, n, err := encoding.DecodeVarint32(data)
		if err != nil {
			return ErrUnexpectedEndOfInput
		}
		data = data[n:]
		tag := Tag(tagVal)

		switch tag {
		case TagDBID:
			val, n, err := encoding.DecodeLengthPrefixedSlice(data)
			if err != nil {
				return ErrUnexpectedEndOfInput
			}
			ve.DBId = string(val)
			ve.HasDBId = true
			data = data[n:]

		case TagComparator:
			val, n, err := encoding.DecodeLengthPrefixedSlice(data)
			if err != nil {
				return ErrUnexpectedEndOfInput
			}
			ve.Comparator = string(val)
			ve.HasComparator = true
			data = data[n:]

		case TagLogNumber:
			val, n, err := encoding.DecodeVarint64(data)
			if err != nil {
				return ErrUnexpectedEndOfInput
			}
			ve.LogNumber = val
			ve.HasLogNumber = true
			data = data[n:]

		case TagPrevLogNumber:
			val, n, err := encoding.DecodeVarint64(data)
			if err != nil {
				return ErrUnexpectedEndOfInput
			}
			ve.PrevLogNumber = val
			ve.HasPrevLogNumber = true
			data = data[n:]

		case TagNextFileNumber:
			val, n, err := encoding.DecodeVarint64(data)
			if err != nil {
				return ErrUnexpectedEndOfInput
			}
			ve.NextFileNumber = val
			ve.HasNextFileNumber = true
			data = data[n:]

		case TagLastSequence:
			val, n, err := encoding.DecodeVarint64(data)
			if err != nil {
				return ErrUnexpectedEndOfInput
			}
			ve.LastSequence = SequenceNumber(val)
			ve.HasLastSequence = true
			data = data[n:]

		case TagMinLogNumberToKeep:
			val, n, err := encoding.DecodeVarint64(data)
			if err != nil {
				return ErrUnexpectedEndOfInput
			}
			ve.MinLogNumberToKeep = val
			ve.HasMinLogNumberToKeep = true
			data = data[n:]

		case TagCompactCursor:
			level, n, err := encoding.DecodeVarint32(data)
			if err != nil {
				return ErrUnexpectedEndOfInput
			}
			data = data[n:]

			key, n, err := encoding.DecodeLengthPrefixedSlice(data)
			if err != nil {
				return ErrUnexpectedEndOfInput
			}
			data = data[n:]

			ve.CompactCursors = append(ve.CompactCursors, struct {
				Level int
				Key   []byte
			}{Level: int(level), Key: key})

		case TagDeletedFile:
			level, n, err := encoding.DecodeVarint32(data)
			if err != nil {
				return ErrUnexpectedEndOfInput
			}
			data = data[n:]

			fileNum, n, err := encoding.DecodeVarint64(data)
			if err != nil {
				return ErrUnexpectedEndOfInput
			}
			data = data[n:]

			ve.DeleteFile(int(level), fileNum)

		case TagNewFile4:
			var err error
			data, err = ve.decodeNewFile4(data)
			if err != nil {
				return err
			}

		default:
			// Unknown tag
			if tag.IsSafeToIgnore() {
				val, n, err := encoding.DecodeLengthPrefixedSlice(data)
				if err != nil {
					return ErrUnexpectedEndOfInput
				}
				stored := make([]byte, len(val))
				copy(stored, val)
				ve.UnknownTags = append(ve.UnknownTags, UnknownTag{Tag: tagVal, Value: stored})
				data = data[n:]
			} else {
				return ErrUnknownRequiredTag
			}
		}
	}

	return nil
}

// decodeNewFile4 decodes a NewFile4 entry.
func (ve *VersionEdit) decodeNewFile4(data []byte) ([]byte, error) {
	meta := NewFileMetaData()

	// Level
	level, n, err := encoding.DecodeVarint32(data)
	if err != nil {
		return nil, ErrUnexpectedEndOfInput
	}
	data = data[n:]

	// File number
	fileNum, n, err := encoding.DecodeVarint64(data)
	if err != nil {
		return nil, ErrUnexpectedEndOfInput
	}
	data = data[n:]

	// File size
	fileSize, n, err := encoding.DecodeVarint64(data)
	if err != nil {
		return nil, ErrUnexpectedEndOfInput
	}
	data = data[n:]

	meta.FD = NewFileDescriptor(fileNum, 0, fileSize)

	// Smallest key
	smallest, n, err := encoding.DecodeLengthPrefixedSlice(data)
	if err != nil {
		return nil, ErrUnexpectedEndOfInput
	}
	meta.Smallest = smallest
	data = data[n:]

	// Largest key
	largest, n, err := encoding.DecodeLengthPrefixedSlice(data)
	if err != nil {
		return nil, ErrUnexpectedEndOfInput
	}
	meta.Largest = largest
	data = data[n:]

	// Smallest seqno
	smallestSeqno, n, err := encoding.DecodeVarint64(data)
	if err != nil {
		return nil, ErrUnexpectedEndOfInput
	}
	meta.FD.SmallestSeqno = SequenceNumber(smallestSeqno)
	data = data[n:]

	// Largest seqno
	largestSeqno, n, err := encoding.DecodeVarint64(data)
	if err != nil {
		return nil, ErrUnexpectedEndOfInput
	}
	meta.FD.LargestSeqno = SequenceNumber(largestSeqno)
	data = data[n:]

	// Decode custom tags
	for {
		customTag, n, err := encoding.DecodeVarint32(data)
		if err != nil {
			return nil, ErrUnexpectedEndOfInput
		}
		data = data[n:]

		if NewFileCustomTag(customTag) == NewFileTagTerminate {
			break
		}

		// Read the value
		val, n, err := encoding.DecodeLengthPrefixedSlice(data)
		if err != nil {
			return nil, ErrUnexpectedEndOfInput
		}
		data = data[n:]

		switch NewFileCustomTag(customTag) {
		case NewFileTagNeedCompaction:
			if len(val) > 0 && val[0] == 1 {
				meta.MarkedForCompaction = true
			}

		case NewFileTagPathID:
			if len(val) > 0 {
				pathID := uint32(val[0])
				meta.FD.PackedNumberAndPathID = PackFileNumberAndPathID(meta.FD.GetNumber(), uint64(pathID))
			}

		case NewFileTagFileCreationTime:
			// Dropped from the data model; consumed and ignored for
			// forward compatibility with older manifests.

		case NewFileTagOldestAncestorTime:
			// Dropped from the data model; consumed and ignored for
			// forward compatibility with older manifests.

		case NewFileTagFileChecksum:
			meta.FileChecksum = string(val)

		case NewFileTagFileChecksumFuncName:
			meta.FileChecksumFuncName = string(val)

		case NewFileTagEpochNumber:
			num, _, err := encoding.DecodeVarint64(val)
			if err == nil {
				meta.EpochNumber = num
			}

		default:
			// Check if we must understand this tag
			if !NewFileCustomTag(customTag).IsSafeToIgnore() {
				return nil, ErrUnknownRequiredTag
			}
			stored := make([]byte, len(val))
			copy(stored, val)
			meta.UnknownCustomTags = append(meta.UnknownCustomTags, UnknownTag{Tag: customTag, Value: stored})
		}
	}

	ve.AddFile(int(level), meta)
	return data, nil
}
