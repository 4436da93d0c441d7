package mfm

import (
	"github.com/sergev/fluxkit/flux"
	"github.com/sergev/fluxkit/pll"
	"github.com/sergev/fluxkit/sector"
)

// FM decodes the single-density frequency-modulation encoding used by
// BBC Micro DFS floppies: every data bit is preceded by a fixed clock
// bit (always 1), so a raw cell pair always encodes exactly one data
// bit, unlike MFM's content-dependent clock. Sync marks use the same
// clock-bit-violation trick as MFM's A1/C2 (here FB/FE with a clock of
// 0xC7 instead of 0xFF).
type FMDecoder struct {
	Geo sector.Geometry
}

// Detect reports how closely capture's cell population matches FM's
// 1T/2T peak ratio.
func (FMDecoder) Detect(capture flux.Capture) (pll.Encoding, float64) {
	return detectEncoding(capture)
}

const (
	fmIDAddressMark   = 0xfe
	fmDataAddressMark = 0xfb
)

func (d FMDecoder) DecodeTrack(bs pll.BitStream, cyl, head int, table *sector.Table) {
	r := newBitReader(bs)
	sectorSize := d.Geo.SectorSize

	for {
		tag, err := scanFM(r)
		if err != nil {
			return
		}
		if tag != fmIDAddressMark {
			continue
		}

		readCyl, _, e1 := r.readByte()
		readHead, _, e2 := r.readByte()
		sectorNum, _, e3 := r.readByte()
		sizeCode, _, e4 := r.readByte()
		crcHi, _, e5 := r.readByte()
		crcLo, _, e6 := r.readByte()
		if e1 != nil || e2 != nil || e3 != nil || e4 != nil || e5 != nil || e6 != nil {
			return
		}
		headerSum := uint16(crcHi)<<8 | uint16(crcLo)
		mySum := crc16CCITTByte(0xffff, fmIDAddressMark)
		mySum = crc16CCITTByte(mySum, readCyl)
		mySum = crc16CCITTByte(mySum, readHead)
		mySum = crc16CCITTByte(mySum, sectorNum)
		mySum = crc16CCITTByte(mySum, sizeCode)
		headerOK := mySum == headerSum

		if int(readCyl) != cyl || int(readHead) != head {
			continue
		}
		if int(sectorNum) < 1 || int(sectorNum) > d.Geo.SectorsPerTrack {
			continue
		}
		linear := d.Geo.LinearAddress(cyl, head, int(sectorNum))

		if !headerOK {
			table.Update(linear, func(s *sector.Sector) {
				s.Status = sector.HeaderCRC
				s.HeaderCRC = sector.Fail
				s.ReadCount++
			})
			continue
		}

		tag, err = scanFM(r)
		if err != nil {
			return
		}
		if tag != fmDataAddressMark {
			continue
		}

		data := make([]byte, sectorSize)
		minConf := 1.0
		ok := true
		for i := 0; i < sectorSize; i++ {
			b, conf, err := r.readByte()
			if err != nil {
				ok = false
				break
			}
			data[i] = b
			if conf < minConf {
				minConf = conf
			}
		}
		if !ok {
			return
		}
		dCrcHi, _, e1 := r.readByte()
		dCrcLo, _, e2 := r.readByte()
		if e1 != nil || e2 != nil {
			return
		}
		dataSum := uint16(dCrcHi)<<8 | uint16(dCrcLo)
		myDataSum := crc16CCITTByte(0xffff, fmDataAddressMark)
		myDataSum = crc16CCITT(myDataSum, data)
		dataOK := myDataSum == dataSum

		table.Update(linear, func(s *sector.Sector) {
			s.ReadCount++
			s.HeaderCRC = sector.Pass
			s.Payload = data
			s.Quality = minConf
			s.Provenance = sector.Direct
			if dataOK {
				s.DataCRC = sector.Pass
				if minConf >= 0.9 {
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

// scanFM hunts for an FM address mark with the same sliding-history
// technique as the MFM scanner, over a 16-bit rather than 32-bit window:
// it matches a 0xFF byte followed by an 0xFE or 0xFB mark byte in the
// data bits alone. Clock cells are not examined, so the marks' special
// clock pattern is not checked.
func scanFM(r *bitReader) (int, error) {
	history := uint16(0)
	for {
		bit, _, err := r.readBit()
		if err != nil {
			return -1, err
		}
		history = (history << 1) | uint16(bit)
		if history == 0xfffe || history == 0xfffb {
			return int(history & 0xff), nil
		}
	}
}
