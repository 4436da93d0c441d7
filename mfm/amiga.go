package mfm

import (
	"fmt"

	"github.com/sergev/fluxkit/flux"
	"github.com/sergev/fluxkit/pll"
	"github.com/sergev/fluxkit/sector"
)

// unshuffle reconstructs a 32-bit word from odd/even bit-interleaved
// halves, the Amiga MFM encoding's way of keeping the clock bits
// self-consistent regardless of data content. Grounded verbatim on the
// teacher's unshuffle in reader.go.
func unshuffle(odd, even uint16) uint32 {
	var word uint32
	for i := 0; i < 16; i++ {
		word <<= 2
		word |= uint32((even>>15)&1) | uint32((odd>>14)&2)
		odd <<= 1
		even <<= 1
	}
	return word
}

// shuffle is unshuffle's inverse, splitting a 32-bit word into odd/even
// 16-bit halves for the Amiga encoder.
func shuffle(word uint32) (odd, even uint16) {
	for i := 15; i >= 0; i-- {
		bitPair := byte(word>>uint(2*i)) & 3
		odd = (odd << 1) | uint16(bitPair>>1)
		even = (even << 1) | uint16(bitPair&1)
	}
	return odd, even
}

func (r *bitReader) scanAmiga() (int, error) {
	history := uint32(0)
	for {
		bit, _, err := r.readBit()
		if err != nil {
			return -1, err
		}
		history = (history << 1) | uint32(bit)

		if history == 0xffffffff {
			if _, _, err := r.readHalfBit(); err != nil {
				return -1, err
			}
			history = 0
			continue
		}
		if (history & 0xfffffff0) == 0x00a1a1f0 {
			return int(history & 0xff), nil
		}
	}
}

func (r *bitReader) readLong(sum *uint32) (uint32, error) {
	oddHigh, _, e1 := r.readByte()
	oddLow, _, e2 := r.readByte()
	evenHigh, _, e3 := r.readByte()
	evenLow, _, e4 := r.readByte()
	if e1 != nil || e2 != nil || e3 != nil || e4 != nil {
		return 0, fmt.Errorf("mfm: amiga readLong: %w", firstErr(e1, e2, e3, e4))
	}
	odd := uint16(oddHigh)<<8 | uint16(oddLow)
	even := uint16(evenHigh)<<8 | uint16(evenLow)
	*sum ^= uint32(odd) ^ uint32(even)
	return unshuffle(odd, even), nil
}

func firstErr(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

func (r *bitReader) readDataAmiga(sectorSize int) ([]byte, float64, uint32, error) {
	data := make([]byte, sectorSize)
	words := sectorSize / 4

	odd := make([]uint16, words)
	minConf := 1.0
	for i := 0; i < words; i++ {
		high, c1, e1 := r.readByte()
		low, c2, e2 := r.readByte()
		if e1 != nil || e2 != nil {
			return nil, 0, 0, firstErr(e1, e2)
		}
		odd[i] = uint16(high)<<8 | uint16(low)
		minConf = minOf(minConf, c1, c2)
	}
	even := make([]uint16, words)
	for i := 0; i < words; i++ {
		high, c1, e1 := r.readByte()
		low, c2, e2 := r.readByte()
		if e1 != nil || e2 != nil {
			return nil, 0, 0, firstErr(e1, e2)
		}
		even[i] = uint16(high)<<8 | uint16(low)
		minConf = minOf(minConf, c1, c2)
	}

	var sum uint32
	for i := 0; i < words; i++ {
		word := unshuffle(odd[i], even[i])
		sum ^= uint32(odd[i]) ^ uint32(even[i])
		data[4*i] = byte(word >> 24)
		data[4*i+1] = byte(word >> 16)
		data[4*i+2] = byte(word >> 8)
		data[4*i+3] = byte(word)
	}
	return data, minConf, sum, nil
}

func minOf(vals ...float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// AmigaDecoder decodes an Amiga MFM track (trackdisk.device layout) into
// a sector.Table. It generalizes the teacher's hardcoded 11-sector DD
// assumption to any SectorsPerTrack, so the same decoder serves both
// AmigaDD (11) and AmigaHD (22) presets.
type AmigaDecoder struct {
	Geo sector.Geometry
}

// Detect reports how closely capture's cell population matches MFM's
// 2T/3T/4T peak ratio; Amiga MFM is physically the same encoding family
// as IBM MFM, so flux-level detection can only confirm "MFM", not which
// track layout follows.
func (AmigaDecoder) Detect(capture flux.Capture) (pll.Encoding, float64) {
	return detectEncoding(capture)
}

func (d AmigaDecoder) DecodeTrack(bs pll.BitStream, track int, table *sector.Table) {
	r := newBitReader(bs)
	sectorSize := d.Geo.SectorSize
	cyl := track / d.Geo.Heads
	head := track % d.Geo.Heads

	for {
		tag, err := r.scanAmiga()
		if err != nil {
			return
		}

		oddLow, _, e1 := r.readByte()
		evenHigh, _, e2 := r.readByte()
		evenLow, _, e3 := r.readByte()
		if e1 != nil || e2 != nil || e3 != nil {
			return
		}

		odd := uint16(tag)<<8 | uint16(oddLow)
		even := uint16(evenHigh)<<8 | uint16(evenLow)
		ident := unshuffle(odd, even) & 0xffffff
		myHeaderSum := uint32(odd) ^ uint32(even)

		readTrack := int(ident >> 16)
		sectorNum := int((ident >> 8) & 0xff)

		for i := 0; i < 4; i++ {
			if _, err := r.readLong(&myHeaderSum); err != nil {
				return
			}
		}

		hh1, _, e1 := r.readByte()
		hh2, _, e2 := r.readByte()
		hh3, _, e3 := r.readByte()
		hh4, _, e4 := r.readByte()
		if e1 != nil || e2 != nil || e3 != nil || e4 != nil {
			return
		}
		headerSum := uint32(hh1)<<24 | uint32(hh2)<<16 | uint32(hh3)<<8 | uint32(hh4)
		headerOK := myHeaderSum == headerSum

		dh1, _, e1 := r.readByte()
		dh2, _, e2 := r.readByte()
		dh3, _, e3 := r.readByte()
		dh4, _, e4 := r.readByte()
		if e1 != nil || e2 != nil || e3 != nil || e4 != nil {
			return
		}
		dataSum := uint32(dh1)<<24 | uint32(dh2)<<16 | uint32(dh3)<<8 | uint32(dh4)

		data, dataConf, myDataSum, err := r.readDataAmiga(sectorSize)
		if err != nil {
			return
		}
		dataOK := myDataSum == dataSum

		if readTrack != track || sectorNum < 0 || sectorNum >= d.Geo.SectorsPerTrack {
			continue
		}
		if !headerOK {
			linear := d.Geo.LinearAddress(cyl, head, sectorNum+1)
			table.Update(linear, func(s *sector.Sector) {
				s.Status = sector.HeaderCRC
				s.HeaderCRC = sector.Fail
				s.ReadCount++
			})
			continue
		}

		linear := d.Geo.LinearAddress(cyl, head, sectorNum+1)
		table.Update(linear, func(s *sector.Sector) {
			s.ReadCount++
			s.HeaderCRC = sector.Pass
			s.Payload = data
			s.Quality = dataConf
			s.Provenance = sector.Direct
			if dataOK {
				s.DataCRC = sector.Pass
				if dataConf >= 0.9 {
					s.Status = sector.Good
				} else {
					s.Status = sector.Weak
				}
			} else {
				s.DataCRC = sector.Fail
				s.Status = sector.Bad
			}
		})
	}
}
