package mfm

import "testing"

func TestCRCIncrementalMatchesBulk(t *testing.T) {
	data := []byte("a floppy disk sector header")
	incremental := uint16(0xffff)
	for _, b := range data {
		incremental = crc16CCITTByte(incremental, b)
	}
	bulk := crc16CCITT(0xffff, data)
	if incremental != bulk {
		t.Fatalf("incremental CRC %04x != bulk CRC %04x", incremental, bulk)
	}
}

func TestCRCDiffersOnCorruption(t *testing.T) {
	data := []byte{0x00, 0x01, 0x02, 0x03}
	original := crc16CCITT(0xffff, data)
	corrupted := make([]byte, len(data))
	copy(corrupted, data)
	corrupted[2] ^= 0x40
	if crc16CCITT(0xffff, corrupted) == original {
		t.Fatal("expected CRC to change after single-bit corruption")
	}
}
