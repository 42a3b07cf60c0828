// Package czi reads Zeiss CZI microscopy containers: the segment stream,
// the embedded XML metadata document and the per-channel pixel planes.
//
// Only the subset of the format produced by single-scene, untiled
// acquisitions is supported: uncompressed Gray8/Gray16 sub-blocks, one
// sub-block per channel.
package czi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Segment IDs, stored as zero-padded 16-byte ASCII at the start of each
// segment header.
const (
	idFileHeader = "ZISRAWFILE"
	idMetadata   = "ZISRAWMETADATA"
	idDirectory  = "ZISRAWDIRECTORY"
	idSubBlock   = "ZISRAWSUBBLOCK"
)

// Pixel type codes from the sub-block directory.
const (
	pixelGray8  = 0
	pixelGray16 = 1
)

// compressionNone is the only sub-block compression scheme supported.
const compressionNone = 0

const (
	segmentHeaderSize = 32
	fileHeaderSize    = 80

	// Sub-block and metadata segments reserve at least this much space
	// before their variable-length payloads.
	subBlockFixedSize = 256
	metadataFixedSize = 256

	dirEntryFixedSize = 32
	dimEntrySize      = 20
)

var errNotCZI = errors.New("not a CZI container: missing ZISRAWFILE header segment")

// segmentHeader is the 32-byte header preceding every segment.
type segmentHeader struct {
	ID            string
	AllocatedSize int64
	UsedSize      int64
}

func readSegmentHeader(r io.Reader) (segmentHeader, error) {
	var buf [segmentHeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return segmentHeader{}, err
	}

	return segmentHeader{
		ID:            string(bytes.TrimRight(buf[:16], "\x00")),
		AllocatedSize: int64(binary.LittleEndian.Uint64(buf[16:24])),
		UsedSize:      int64(binary.LittleEndian.Uint64(buf[24:32])),
	}, nil
}

// fileHeader is the payload of the ZISRAWFILE segment. Only the directory
// and metadata positions are consumed; the GUID and version fields are
// read past.
type fileHeader struct {
	DirectoryPosition int64
	MetadataPosition  int64
}

func parseFileHeader(payload []byte) (fileHeader, error) {
	if len(payload) < fileHeaderSize {
		return fileHeader{}, fmt.Errorf("file header truncated: %d bytes", len(payload))
	}

	// Layout: major, minor, 2x reserved (4 bytes each), primary file GUID
	// and file GUID (16 bytes each), file part (4 bytes), then the two
	// positions this reader cares about.
	return fileHeader{
		DirectoryPosition: int64(binary.LittleEndian.Uint64(payload[52:60])),
		MetadataPosition:  int64(binary.LittleEndian.Uint64(payload[60:68])),
	}, nil
}

// dimensionEntry describes one axis of a sub-block (e.g. "C", "X", "Y").
type dimensionEntry struct {
	Name       string
	Start      int32
	Size       int32
	StoredSize int32
}

// directoryEntry is a DV-schema sub-block directory entry, present both in
// the ZISRAWDIRECTORY segment and inline in each ZISRAWSUBBLOCK.
type directoryEntry struct {
	PixelType    int32
	FilePosition int64
	Compression  int32
	Dimensions   []dimensionEntry
}

// size returns the serialized length of the entry.
func (e *directoryEntry) size() int {
	return dirEntryFixedSize + len(e.Dimensions)*dimEntrySize
}

// dimension returns the named dimension entry, if present.
func (e *directoryEntry) dimension(name string) (dimensionEntry, bool) {
	for _, d := range e.Dimensions {
		if d.Name == name {
			return d, true
		}
	}
	return dimensionEntry{}, false
}

func parseDirectoryEntry(r io.Reader) (directoryEntry, error) {
	var fixed [dirEntryFixedSize]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return directoryEntry{}, err
	}

	if schema := string(fixed[0:2]); schema != "DV" {
		return directoryEntry{}, fmt.Errorf("unsupported directory entry schema %q", schema)
	}

	entry := directoryEntry{
		PixelType:    int32(binary.LittleEndian.Uint32(fixed[2:6])),
		FilePosition: int64(binary.LittleEndian.Uint64(fixed[6:14])),
		Compression:  int32(binary.LittleEndian.Uint32(fixed[18:22])),
	}

	dimCount := int(binary.LittleEndian.Uint32(fixed[28:32]))
	if dimCount < 0 || dimCount > 64 {
		return directoryEntry{}, fmt.Errorf("implausible dimension count %d", dimCount)
	}

	entry.Dimensions = make([]dimensionEntry, dimCount)
	dims := make([]byte, dimCount*dimEntrySize)
	if _, err := io.ReadFull(r, dims); err != nil {
		return directoryEntry{}, err
	}

	for i := range entry.Dimensions {
		d := dims[i*dimEntrySize : (i+1)*dimEntrySize]
		entry.Dimensions[i] = dimensionEntry{
			Name:       string(bytes.TrimRight(d[0:4], "\x00")),
			Start:      int32(binary.LittleEndian.Uint32(d[4:8])),
			Size:       int32(binary.LittleEndian.Uint32(d[8:12])),
			StoredSize: int32(binary.LittleEndian.Uint32(d[16:20])),
		}
	}

	return entry, nil
}
