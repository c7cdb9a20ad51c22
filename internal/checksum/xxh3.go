package checksum

import "github.com/zeebo/xxh3"

// XXH3_64bits computes the 64-bit XXH3 hash of data. Used by the Bloom
// filter, which needs a plain key hash rather than a block checksum.
func XXH3_64bits(data []byte) uint64 { //nolint:revive // matches upstream xxhash naming
	return xxh3.Hash(data)
}

// XXH3ChecksumWithLastByte computes the low 32 bits of XXH3_64bits(data || lastByte).
// lastByte is typically the block's compression type, included so the
// checksum also covers which compression was applied to the block.
func XXH3ChecksumWithLastByte(data []byte, lastByte byte) uint32 {
	h := xxh3.New()
	h.Write(data)
	h.Write([]byte{lastByte})
	return uint32(h.Sum64())
}
