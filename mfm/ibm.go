package mfm

import (
	"fmt"
	"math/bits"

	"github.com/sergev/fluxkit/flux"
	"github.com/sergev/fluxkit/pll"
	"github.com/sergev/fluxkit/sector"
)

// bitReader walks a pll.BitStream of raw MFM cells (one element per raw
// clock cell: true if a flux transition occupied that cell), carrying
// each cell's confidence through to the data bits it assembles. This is
// the same raw-cell convention the teacher's Reader consumed from a
// packed byte slice; operating on the BitStream directly instead avoids
// a needless pack/unpack round trip and preserves per-bit confidence for
// quality scoring.
type bitReader struct {
	bs     pll.BitStream
	bitPos int
}

func newBitReader(bs pll.BitStream) *bitReader {
	return &bitReader{bs: bs}
}

func (r *bitReader) readHalfBit() (bool, float64, error) {
	if r.bitPos >= len(r.bs.Bits) {
		return false, 0, fmt.Errorf("mfm: end of bitstream")
	}
	v := r.bs.Bits[r.bitPos]
	conf := 1.0
	if r.bs.Confidence != nil {
		conf = r.bs.Confidence[r.bitPos]
	}
	r.bitPos++
	return v, conf, nil
}

// readBit reads one DATA bit: the clock half-bit is discarded, the data
// half-bit is returned along with its confidence.
func (r *bitReader) readBit() (int, float64, error) {
	if _, _, err := r.readHalfBit(); err != nil {
		return -1, 0, err
	}
	bit, conf, err := r.readHalfBit()
	if err != nil {
		return -1, 0, err
	}
	if bit {
		return 1, conf, nil
	}
	return 0, conf, nil
}

func (r *bitReader) readByte() (byte, float64, error) {
	var result byte
	minConf := 1.0
	for i := 0; i < 8; i++ {
		bit, conf, err := r.readBit()
		if err != nil {
			return 0, 0, err
		}
		result = (result << 1) | byte(bit)
		if conf < minConf {
			minConf = conf
		}
	}
	return result, minConf, nil
}

// sizeCodeFor maps a sector size to the IBM PC header's size code
// (log2(size/128)), generalizing the teacher's hardcoded size==2.
func sizeCodeFor(sectorSize int) byte {
	return byte(bits.TrailingZeros(uint(sectorSize/128)) + 0)
}

// scanIBMPC hunts for an IBM PC sync mark (00-A1-A1-A1 header or
// 00-C2-C2-C2 index), returning the tag byte that follows it.
func (r *bitReader) scanIBMPC() (int, error) {
	history := uint32(0x13713713)
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
		if history == 0x00a1a1a1 || history == 0x00c2c2c2 {
			tag, _, err := r.readByte()
			if err != nil {
				return -1, err
			}
			return int(tag), nil
		}
	}
}

// IBMDecoder decodes an IBM PC MFM track into a sector.Table.
type IBMDecoder struct {
	Geo sector.Geometry
}

// Detect reports how closely a flux capture's cell population matches
// IBM MFM's 2T/3T/4T peak ratio, and the shared analyzer's confidence
// in that call.
func (IBMDecoder) Detect(capture flux.Capture) (pll.Encoding, float64) {
	return detectEncoding(capture)
}

// DecodeTrack scans every sector on one (cylinder, head) track and
// records what it finds into table, setting each found sector's status,
// payload, CRC results, quality and provenance. Sectors that were never
// found are left untouched for the caller (the scan orchestrator or
// recovery controller) to mark Missing.
func (d IBMDecoder) DecodeTrack(bs pll.BitStream, cyl, head int, table *sector.Table) {
	r := newBitReader(bs)
	sectorSize := d.Geo.SectorSize
	wantSize := sizeCodeFor(sectorSize)

	for {
		tag, err := r.scanIBMPC()
		if err != nil {
			return
		}
		if tag != 0xfe {
			continue
		}

		readCyl, c1, e1 := r.readByte()
		readHead, c2, e2 := r.readByte()
		sectorNum, c3, e3 := r.readByte()
		size, c4, e4 := r.readByte()
		hiByte, c5, e5 := r.readByte()
		loByte, c6, e6 := r.readByte()
		if e1 != nil || e2 != nil || e3 != nil || e4 != nil || e5 != nil || e6 != nil {
			return
		}
		headerConf := min6(c1, c2, c3, c4, c5, c6)
		headerSum := uint16(hiByte)<<8 | uint16(loByte)

		mySum := crc16CCITTByte(0xb230, readCyl)
		mySum = crc16CCITTByte(mySum, readHead)
		mySum = crc16CCITTByte(mySum, sectorNum)
		mySum = crc16CCITTByte(mySum, size)
		headerOK := mySum == headerSum

		if int(readCyl) != cyl || int(readHead) != head || size != wantSize {
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

		tag, err = r.scanIBMPC()
		if err != nil {
			return
		}
		if tag == 0xfe {
			continue
		}
		if tag != 0xfb && tag != 0xf8 {
			continue
		}
		deleted := tag == 0xf8

		data := make([]byte, sectorSize)
		dataConf := 1.0
		ok := true
		for i := 0; i < sectorSize; i++ {
			b, conf, err := r.readByte()
			if err != nil {
				ok = false
				break
			}
			data[i] = b
			if conf < dataConf {
				dataConf = conf
			}
		}
		if !ok {
			return
		}
		sumHi, _, e1 := r.readByte()
		sumLo, _, e2 := r.readByte()
		if e1 != nil || e2 != nil {
			return
		}
		dataSum := uint16(sumHi)<<8 | uint16(sumLo)

		myDataSum := crc16CCITTByte(0xcdb4, byte(tag))
		myDataSum = crc16CCITT(myDataSum, data)
		dataOK := myDataSum == dataSum

		quality := (headerConf + dataConf) / 2

		table.Update(linear, func(s *sector.Sector) {
			s.ReadCount++
			s.HeaderCRC = sector.Pass
			if dataOK {
				s.DataCRC = sector.Pass
			} else {
				s.DataCRC = sector.Fail
			}
			s.Quality = quality
			s.Payload = data
			s.Provenance = sector.Direct
			switch {
			case deleted && dataOK:
				s.Status = sector.Deleted
			case dataOK && quality >= 0.9:
				s.Status = sector.Good
			case dataOK:
				s.Status = sector.Weak
			default:
				s.Status = sector.Bad
			}
		})
	}
}

func min6(a, b, c, d, e, f float64) float64 {
	m := a
	for _, v := range []float64{b, c, d, e, f} {
		if v < m {
			m = v
		}
	}
	return m
}

// IBMEncoder builds a full IBM PC MFM track, generalizing the teacher's
// Writer.EncodeTrackIBMPC to variable sector size and count.
type IBMEncoder struct {
	Geo         sector.Geometry
	CellNS      float64 // raw cell period, i.e. half the nominal data bit cell
	MaxHalfBits int      // total raw cells available on the track
}

func (e IBMEncoder) EncodeTrack(sectors []sector.Sector, cyl, head int) pll.BitStream {
	w := NewWriter(e.MaxHalfBits)
	sizeCode := sizeCodeFor(e.Geo.SectorSize)

	w.writeGap(80)
	w.writeIndexMarker()
	w.writeGap(50)

	for s := 0; s < e.Geo.SectorsPerTrack; s++ {
		w.writeMarker()
		w.writeByte(0xfe)
		w.writeByte(byte(cyl))
		w.writeByte(byte(head))
		w.writeByte(byte(s + 1))
		w.writeByte(sizeCode)

		sum := crc16CCITTByte(0xb230, byte(cyl))
		sum = crc16CCITTByte(sum, byte(head))
		sum = crc16CCITTByte(sum, byte(s+1))
		sum = crc16CCITTByte(sum, sizeCode)
		w.writeByte(byte(sum >> 8))
		w.writeByte(byte(sum))

		w.writeGap(22)
		w.writeMarker()
		w.writeByte(0xfb)

		var payload []byte
		if s < len(sectors) {
			payload = sectors[s].Payload
		}
		if len(payload) != e.Geo.SectorSize {
			payload = make([]byte, e.Geo.SectorSize)
		}
		for _, b := range payload {
			w.writeByte(b)
		}

		dsum := crc16CCITTByte(0xcdb4, 0xfb)
		dsum = crc16CCITT(dsum, payload)
		w.writeByte(byte(dsum >> 8))
		w.writeByte(byte(dsum))

		w.writeGap(108)
	}

	data := w.getData()
	return pll.FromPackedMSB(data, w.bitPos)
}
