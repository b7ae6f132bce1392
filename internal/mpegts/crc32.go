package mpegts

import "errors"

// ErrCRC is returned for PSI sections whose CRC_32 does not check out.
var ErrCRC = errors.New("mpegts: CRC32 mismatch")

// MPEG-2 CRC32: polynomial 0x04C11DB7, not reflected, initial value all ones.
var crc32Table = func() (t [256]uint32) {
	for i := range t {
		crc := uint32(i) << 24
		for range 8 {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}()

// CRC32 computes the MPEG-2 CRC of data. Running it over a section that
// ends in its own CRC_32 field yields zero.
func CRC32(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = crc<<8 ^ crc32Table[byte(crc>>24)^b]
	}
	return crc
}

// VerifyCRC32 checks a section that ends in its CRC_32 field.
func VerifyCRC32(section []byte) error {
	if len(section) < 4 || CRC32(section) != 0 {
		return ErrCRC
	}
	return nil
}
