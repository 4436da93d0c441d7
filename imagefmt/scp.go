package imagefmt

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/sergev/fluxkit/flux"
)

// SCP is the decoded form of a SuperCard Pro flux capture file, keyed
// by single-sided track index (2*cylinder+head for a double-sided
// disk), per §4.9.2.
type SCP struct {
	Version           byte
	DiskType          byte
	Revolutions       int // 1..5
	StartTrack        int
	EndTrack          int
	IndexAligned      bool
	NinetySixTPI      bool
	BitcellWidthBits  int // 0 means 16-bit words
	Heads             int // 0 both, 1 side 0, 2 side 1
	ResolutionNS      int // 0 means 25ns ticks
	Tracks            map[int]flux.Capture
}

const scpResolutionNS = 25

func scpTicksPerNS() float64 { return 1.0 / float64(scpResolutionNS) }

// ReadSCP parses a SuperCard Pro file per the layout in §4.9.2.
func ReadSCP(filename string) (*SCP, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("imagefmt: read %s: %w", filename, err)
	}
	if len(data) < 0x10 || string(data[0:3]) != "SCP" {
		return nil, fmt.Errorf("imagefmt: not an SCP file: %s", filename)
	}

	s := &SCP{
		Version:          data[0x03],
		DiskType:         data[0x04],
		Revolutions:      int(data[0x05]),
		StartTrack:       int(data[0x06]),
		EndTrack:         int(data[0x07]),
		IndexAligned:     data[0x08]&0x01 != 0,
		NinetySixTPI:     data[0x08]&0x02 != 0,
		BitcellWidthBits: int(data[0x09]),
		Heads:            int(data[0x0A]),
		ResolutionNS:     int(data[0x0B]),
		Tracks:           make(map[int]flux.Capture),
	}

	numEntries := s.EndTrack - s.StartTrack + 1
	if numEntries < 0 {
		numEntries = 0
	}
	offsetTable := data[0x10 : 0x10+4*numEntries]

	for i := 0; i < numEntries; i++ {
		trackIdx := s.StartTrack + i
		offset := binary.LittleEndian.Uint32(offsetTable[4*i : 4*i+4])
		if offset == 0 {
			continue
		}
		cap, err := readSCPTrack(data, int(offset), s.Revolutions)
		if err != nil {
			return nil, fmt.Errorf("imagefmt: track %d: %w", trackIdx, err)
		}
		s.Tracks[trackIdx] = cap
	}
	return s, nil
}

func readSCPTrack(data []byte, blockOffset int, revolutions int) (flux.Capture, error) {
	if blockOffset+4 > len(data) || string(data[blockOffset:blockOffset+3]) != "TRK" {
		return flux.Capture{}, fmt.Errorf("bad track block signature at offset %d", blockOffset)
	}

	type revEntry struct {
		indexTicks  uint32
		lengthTicks uint32
		dataOffset  uint32
	}
	revs := make([]revEntry, revolutions)
	p := blockOffset + 4
	for r := 0; r < revolutions; r++ {
		revs[r] = revEntry{
			indexTicks:  binary.LittleEndian.Uint32(data[p : p+4]),
			lengthTicks: binary.LittleEndian.Uint32(data[p+4 : p+8]),
			dataOffset:  binary.LittleEndian.Uint32(data[p+8 : p+12]),
		}
		p += 12
	}

	var intervals []int32
	indexPositions := []int{0}
	for _, rv := range revs {
		wordOffset := blockOffset + int(rv.dataOffset)
		count := 0
		for wordOffset+1 < len(data) && count < int(rv.lengthTicks) {
			word := binary.LittleEndian.Uint16(data[wordOffset : wordOffset+2])
			wordOffset += 2
			if word == 0 {
				if wordOffset+3 >= len(data) {
					break
				}
				ext := binary.LittleEndian.Uint32(data[wordOffset : wordOffset+4])
				wordOffset += 4
				intervals = append(intervals, int32(65536+ext))
			} else {
				intervals = append(intervals, int32(word))
			}
			count++
		}
		indexPositions = append(indexPositions, len(intervals))
	}

	// SCP's native tick rate is 25ns; flux.Capture works in SampleHz
	// ticks, so treat the SCP resolution itself as the sample clock.
	return flux.FromIntervals(uint64(1e9/scpResolutionNS), intervals, indexPositions)
}

// WriteSCP serializes tracks (keyed by single-sided track index) into
// an SCP file with the given global header fields.
func WriteSCP(filename string, tracks map[int]flux.Capture, revolutions int, startTrack, endTrack int) error {
	var body []byte // everything from offset 0x10 onward, before checksum

	numEntries := endTrack - startTrack + 1
	offsetTable := make([]uint32, numEntries)

	trackBlocks := make([][]byte, numEntries)
	// Track blocks are appended after the offset table; compute their
	// absolute file offsets once the table size is known.
	tableBytes := 4 * numEntries
	cursor := 0x10 + tableBytes

	for i := 0; i < numEntries; i++ {
		idx := startTrack + i
		cap, ok := tracks[idx]
		if !ok {
			offsetTable[i] = 0
			trackBlocks[i] = nil
			continue
		}
		block := encodeSCPTrack(idx, cap, revolutions)
		offsetTable[i] = uint32(cursor)
		trackBlocks[i] = block
		cursor += len(block)
	}

	body = make([]byte, tableBytes)
	for i, off := range offsetTable {
		binary.LittleEndian.PutUint32(body[4*i:4*i+4], off)
	}
	for _, block := range trackBlocks {
		body = append(body, block...)
	}

	header := make([]byte, 0x10)
	copy(header[0x00:0x03], "SCP")
	header[0x03] = 0x10 // version 1.0
	header[0x04] = 0x00
	header[0x05] = byte(revolutions)
	header[0x06] = byte(startTrack)
	header[0x07] = byte(endTrack)
	header[0x08] = 0x01 // index-aligned
	header[0x09] = 0x00 // 16-bit words
	header[0x0A] = 0x00 // both heads
	header[0x0B] = 0x00 // 25ns resolution

	var checksum uint32
	for _, b := range body {
		checksum += uint32(b)
	}
	binary.LittleEndian.PutUint32(header[0x0C:0x10], checksum)

	out := append(header, body...)
	if err := os.WriteFile(filename, out, 0o644); err != nil {
		return fmt.Errorf("imagefmt: write %s: %w", filename, err)
	}
	return nil
}

func encodeSCPTrack(trackIdx int, cap flux.Capture, revolutions int) []byte {
	revHeaderLen := 12 * revolutions
	head := make([]byte, 4+revHeaderLen)
	copy(head[0:3], "TRK")
	head[3] = byte(trackIdx)

	// indexTicks isn't tracked separately from the interval stream
	// itself (flux.Capture has no index-to-data timing field), so each
	// revolution's entry carries the running count of flux words written
	// for earlier revolutions as a placeholder; readSCPTrack never
	// consumes it.
	var fluxData []byte
	var cumTicksAtDataStart uint32
	for r := 0; r < revolutions; r++ {
		view, err := cap.Revolution(r)
		var ivs []int32
		if err == nil {
			ivs = view.Intervals()
		}

		dataOffset := uint32(4 + revHeaderLen + len(fluxData))
		var words []byte
		var lengthTicks uint32
		for _, iv := range ivs {
			if iv < 65536 {
				buf := make([]byte, 2)
				binary.LittleEndian.PutUint16(buf, uint16(iv))
				words = append(words, buf...)
			} else {
				buf := make([]byte, 6)
				binary.LittleEndian.PutUint32(buf[2:6], uint32(iv)-65536)
				words = append(words, buf...)
			}
			lengthTicks++
		}

		entryOff := 4 + 12*r
		binary.LittleEndian.PutUint32(head[entryOff:entryOff+4], cumTicksAtDataStart)
		binary.LittleEndian.PutUint32(head[entryOff+4:entryOff+8], lengthTicks)
		binary.LittleEndian.PutUint32(head[entryOff+8:entryOff+12], dataOffset)

		fluxData = append(fluxData, words...)
		cumTicksAtDataStart += lengthTicks
	}

	return append(head, fluxData...)
}
