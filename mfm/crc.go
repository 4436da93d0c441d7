package mfm

// CRC-CCITT (poly 0x1021, no reflection), the checksum the IBM PC MFM and
// FM floppy formats use over their header and data fields. The teacher's
// reader.go and writer.go call crc16CCITTByte/crc16CCITT without ever
// defining them; this file supplies the missing implementation.

var crcTable [256]uint16

func init() {
	const poly = 0x1021
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for b := 0; b < 8; b++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

// crc16CCITTByte folds a single byte into a running CRC.
func crc16CCITTByte(crc uint16, b byte) uint16 {
	return (crc << 8) ^ crcTable[byte(crc>>8)^b]
}

// crc16CCITT folds a byte slice into a running CRC.
func crc16CCITT(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = crc16CCITTByte(crc, b)
	}
	return crc
}
