// footer.go implements the table-file footer: the fixed-size trailer that
// locates the metaindex and index blocks and identifies the file format.
package block

import (
	"encoding/binary"

	"github.com/aalhour/rockyardkv/internal/checksum"
)

// TableMagicNumber identifies a block-based table file.
const TableMagicNumber uint64 = 0x88e241b785f4cff7

// MagicNumberLength is the length of the magic number in bytes.
const MagicNumberLength = 8

// BlockTrailerSize is the size of a block's trailer: 1 byte compression
// type + 4 bytes checksum.
const BlockTrailerSize = 5

// FormatVersion is the only table format version this module writes/reads.
const FormatVersion uint32 = 1

// FooterEncodedLength is the fixed size of an encoded footer:
// checksum_type(1) + metaindex handle + index handle (padded to
// 2*MaxEncodedLength) + format_version(4) + magic(8).
const FooterEncodedLength = 1 + 2*MaxEncodedLength + 4 + MagicNumberLength

// Footer is the fixed-size trailer written at the end of every table file.
type Footer struct {
	ChecksumType    checksum.Type
	MetaindexHandle Handle
	IndexHandle     Handle
	FormatVersion   uint32
	MagicNumber     uint64
}

// EncodeTo encodes the footer into a fixed-size buffer.
func (f *Footer) EncodeTo() []byte {
	buf := make([]byte, FooterEncodedLength)
	buf[0] = byte(f.ChecksumType)

	cur := 1
	cur += copy(buf[cur:], f.MetaindexHandle.EncodeTo(nil))
	cur += copy(buf[cur:], f.IndexHandle.EncodeTo(nil))

	tail := FooterEncodedLength - 4 - MagicNumberLength
	for i := cur; i < tail; i++ {
		buf[i] = 0
	}

	binary.LittleEndian.PutUint32(buf[tail:], f.FormatVersion)
	binary.LittleEndian.PutUint64(buf[tail+4:], f.MagicNumber)
	return buf
}

// DecodeFooter decodes a footer from the trailing FooterEncodedLength bytes
// of a table file.
func DecodeFooter(data []byte) (*Footer, error) {
	if len(data) < FooterEncodedLength {
		return nil, ErrBadBlockFooter
	}
	data = data[len(data)-FooterEncodedLength:]

	f := &Footer{ChecksumType: checksum.Type(data[0])}

	tail := FooterEncodedLength - 4 - MagicNumberLength
	f.FormatVersion = binary.LittleEndian.Uint32(data[tail:])
	f.MagicNumber = binary.LittleEndian.Uint64(data[tail+4:])
	if f.MagicNumber != TableMagicNumber {
		return nil, ErrBadBlockFooter
	}

	var err error
	rest := data[1:]
	f.MetaindexHandle, rest, err = DecodeHandle(rest)
	if err != nil {
		return nil, err
	}
	f.IndexHandle, _, err = DecodeHandle(rest)
	if err != nil {
		return nil, err
	}
	return f, nil
}
