package czi

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"czi2tiff/internal/models"
)

// File is an open CZI container. It holds the parsed file header, the raw
// metadata document and the sub-block directory; pixel data is read lazily
// by Planes.
type File struct {
	f       *os.File
	header  fileHeader
	doc     []byte
	entries []directoryEntry
}

// Open opens a CZI container, validates the file header segment and loads
// the metadata document and sub-block directory.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	file := &File{f: f}
	if err := file.load(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return file, nil
}

// Close releases the underlying file handle.
func (c *File) Close() error {
	return c.f.Close()
}

// Metadata returns the raw embedded XML metadata document.
func (c *File) Metadata() []byte {
	return c.doc
}

// Channels parses the per-channel display calibration from the metadata
// document.
func (c *File) Channels() ([]models.Channel, error) {
	return ParseDisplaySettings(c.doc)
}

func (c *File) load() error {
	header, err := readSegmentHeader(c.f)
	if err != nil {
		return fmt.Errorf("reading file header segment: %w", err)
	}
	if header.ID != idFileHeader {
		return errNotCZI
	}

	payload := make([]byte, fileHeaderSize)
	if _, err := io.ReadFull(c.f, payload); err != nil {
		return fmt.Errorf("reading file header payload: %w", err)
	}
	if c.header, err = parseFileHeader(payload); err != nil {
		return err
	}

	if err := c.loadMetadata(); err != nil {
		return err
	}
	return c.loadDirectory()
}

func (c *File) loadMetadata() error {
	header, err := c.seekSegment(c.header.MetadataPosition, idMetadata)
	if err != nil {
		return err
	}

	fixed := make([]byte, metadataFixedSize)
	if _, err := io.ReadFull(c.f, fixed); err != nil {
		return fmt.Errorf("reading metadata segment: %w", err)
	}

	xmlSize := int(int32(binary.LittleEndian.Uint32(fixed[0:4])))
	if xmlSize < 0 || int64(xmlSize) > header.UsedSize {
		return fmt.Errorf("implausible metadata XML size %d", xmlSize)
	}

	c.doc = make([]byte, xmlSize)
	if _, err := io.ReadFull(c.f, c.doc); err != nil {
		return fmt.Errorf("reading metadata XML: %w", err)
	}
	return nil
}

func (c *File) loadDirectory() error {
	if _, err := c.seekSegment(c.header.DirectoryPosition, idDirectory); err != nil {
		return err
	}

	fixed := make([]byte, 128)
	if _, err := io.ReadFull(c.f, fixed); err != nil {
		return fmt.Errorf("reading sub-block directory: %w", err)
	}

	count := int(int32(binary.LittleEndian.Uint32(fixed[0:4])))
	if count < 0 {
		return fmt.Errorf("negative sub-block count %d", count)
	}

	c.entries = make([]directoryEntry, 0, count)
	for i := 0; i < count; i++ {
		entry, err := parseDirectoryEntry(c.f)
		if err != nil {
			return fmt.Errorf("parsing directory entry %d: %w", i, err)
		}
		c.entries = append(c.entries, entry)
	}
	return nil
}

// seekSegment positions the reader just past the segment header at the
// given offset, verifying the segment ID on the way.
func (c *File) seekSegment(pos int64, wantID string) (segmentHeader, error) {
	if pos <= 0 {
		return segmentHeader{}, fmt.Errorf("container has no %s segment", wantID)
	}
	if _, err := c.f.Seek(pos, io.SeekStart); err != nil {
		return segmentHeader{}, err
	}

	header, err := readSegmentHeader(c.f)
	if err != nil {
		return segmentHeader{}, fmt.Errorf("reading %s segment header: %w", wantID, err)
	}
	if header.ID != wantID {
		return segmentHeader{}, fmt.Errorf("expected %s segment at offset %d, found %q", wantID, pos, header.ID)
	}
	return header, nil
}

// Planes reads every sub-block and assembles one normalized pixel plane per
// channel, ordered by the channel (C) dimension. Containers without a C
// dimension yield a single plane.
func (c *File) Planes() ([]*models.Plane, error) {
	if len(c.entries) == 0 {
		return nil, fmt.Errorf("container has no sub-blocks")
	}

	type indexed struct {
		channel int
		plane   *models.Plane
	}

	planes := make([]indexed, 0, len(c.entries))
	seen := make(map[int]bool)

	for i := range c.entries {
		entry := &c.entries[i]

		channel := 0
		if dim, ok := entry.dimension("C"); ok {
			channel = int(dim.Start)
		}
		if seen[channel] {
			return nil, fmt.Errorf("channel %d has multiple sub-blocks: tiled acquisitions are not supported", channel)
		}
		seen[channel] = true

		plane, err := c.readPlane(entry)
		if err != nil {
			return nil, fmt.Errorf("reading channel %d: %w", channel, err)
		}
		planes = append(planes, indexed{channel: channel, plane: plane})
	}

	sort.Slice(planes, func(i, j int) bool { return planes[i].channel < planes[j].channel })

	out := make([]*models.Plane, len(planes))
	for i, p := range planes {
		out[i] = p.plane
	}
	return out, nil
}

// readPlane reads and decodes the pixel payload of one sub-block.
func (c *File) readPlane(entry *directoryEntry) (*models.Plane, error) {
	if entry.Compression != compressionNone {
		return nil, fmt.Errorf("unsupported compression scheme %d", entry.Compression)
	}

	dimX, okX := entry.dimension("X")
	dimY, okY := entry.dimension("Y")
	if !okX || !okY {
		return nil, fmt.Errorf("sub-block is missing X/Y dimensions")
	}
	width, height := int(dimX.Size), int(dimY.Size)
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid plane dimensions %dx%d", width, height)
	}

	if _, err := c.seekSegment(entry.FilePosition, idSubBlock); err != nil {
		return nil, err
	}

	// Sub-block payload: metadata size, attachment size, data size, the
	// inline directory entry, then padding up to the fixed header size.
	var sizes [16]byte
	if _, err := io.ReadFull(c.f, sizes[:]); err != nil {
		return nil, fmt.Errorf("reading sub-block header: %w", err)
	}
	metaSize := int64(int32(binary.LittleEndian.Uint32(sizes[0:4])))
	dataSize := int64(binary.LittleEndian.Uint64(sizes[8:16]))

	inline, err := parseDirectoryEntry(c.f)
	if err != nil {
		return nil, fmt.Errorf("parsing inline directory entry: %w", err)
	}

	headerUsed := 16 + inline.size()
	if headerUsed < subBlockFixedSize {
		if _, err := c.f.Seek(int64(subBlockFixedSize-headerUsed), io.SeekCurrent); err != nil {
			return nil, err
		}
	}
	if metaSize > 0 {
		if _, err := c.f.Seek(metaSize, io.SeekCurrent); err != nil {
			return nil, err
		}
	}

	data := make([]byte, dataSize)
	if _, err := io.ReadFull(c.f, data); err != nil {
		return nil, fmt.Errorf("reading sub-block pixel data: %w", err)
	}

	return decodePlane(data, width, height, entry.PixelType)
}

// decodePlane converts raw little-endian pixel bytes into a normalized
// float64 plane.
func decodePlane(data []byte, width, height int, pixelType int32) (*models.Plane, error) {
	n := width * height

	switch pixelType {
	case pixelGray8:
		if len(data) < n {
			return nil, fmt.Errorf("pixel data truncated: have %d bytes, need %d", len(data), n)
		}
		plane := &models.Plane{
			Data:        make([]float64, n),
			Width:       width,
			Height:      height,
			SourceDepth: models.Depth8,
		}
		for i := 0; i < n; i++ {
			plane.Data[i] = float64(data[i]) / 255
		}
		return plane, nil

	case pixelGray16:
		if len(data) < 2*n {
			return nil, fmt.Errorf("pixel data truncated: have %d bytes, need %d", len(data), 2*n)
		}
		plane := &models.Plane{
			Data:        make([]float64, n),
			Width:       width,
			Height:      height,
			SourceDepth: models.Depth16,
		}
		for i := 0; i < n; i++ {
			v := binary.LittleEndian.Uint16(data[2*i : 2*i+2])
			plane.Data[i] = float64(v) / 65535
		}
		return plane, nil

	default:
		return nil, fmt.Errorf("unsupported pixel type %d (only Gray8 and Gray16 are handled)", pixelType)
	}
}
