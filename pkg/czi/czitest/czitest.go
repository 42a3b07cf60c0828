// Package czitest builds small synthetic CZI containers for tests: a file
// header, one uncompressed Gray8/Gray16 sub-block per channel, a metadata
// segment with a DisplaySetting document and a sub-block directory.
package czitest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"czi2tiff/internal/models"
)

// Channel describes one channel of a synthetic container: its display
// calibration elements (empty strings are omitted from the XML) and its
// pixel values in native integer range, row-major.
type Channel struct {
	Low       string
	High      string
	Gamma     string
	Color     string
	ShortName string
	Pixels    []uint16
}

// Container describes a synthetic CZI file.
type Container struct {
	Width, Height int
	Depth         models.BitDepth
	Channels      []Channel
}

const (
	segmentHeaderSize = 32
	subBlockFixedSize = 256
	metadataFixedSize = 256
)

// WriteFile assembles the container and writes it to path.
func (c Container) WriteFile(path string) error {
	data, err := c.Bytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Bytes assembles the container into CZI segment layout.
func (c Container) Bytes() ([]byte, error) {
	if c.Depth != models.Depth8 && c.Depth != models.Depth16 {
		return nil, fmt.Errorf("czitest: depth must be Depth8 or Depth16")
	}

	var out bytes.Buffer

	// The file header segment is written last (it needs the metadata and
	// directory offsets), but occupies the first bytes of the file.
	fileHeaderLen := segmentHeaderSize + 80
	out.Write(make([]byte, fileHeaderLen))

	entries := make([][]byte, len(c.Channels))
	for i, ch := range c.Channels {
		if len(ch.Pixels) != c.Width*c.Height {
			return nil, fmt.Errorf("czitest: channel %d has %d pixels, want %d", i, len(ch.Pixels), c.Width*c.Height)
		}
		entries[i] = c.directoryEntry(i, int64(out.Len()))
		writeSegment(&out, "ZISRAWSUBBLOCK", c.subBlockPayload(entries[i], ch))
	}

	metadataPos := int64(out.Len())
	writeSegment(&out, "ZISRAWMETADATA", metadataPayload(c.metadataXML()))

	directoryPos := int64(out.Len())
	writeSegment(&out, "ZISRAWDIRECTORY", directoryPayload(entries))

	// Now fill in the file header at offset 0.
	fh := make([]byte, 80)
	binary.LittleEndian.PutUint32(fh[0:4], 1) // major version
	binary.LittleEndian.PutUint64(fh[52:60], uint64(directoryPos))
	binary.LittleEndian.PutUint64(fh[60:68], uint64(metadataPos))

	final := out.Bytes()
	var head bytes.Buffer
	writeSegmentHeader(&head, "ZISRAWFILE", int64(len(fh)))
	copy(final[0:segmentHeaderSize], head.Bytes())
	copy(final[segmentHeaderSize:fileHeaderLen], fh)

	return final, nil
}

func (c Container) pixelType() uint32 {
	if c.Depth == models.Depth16 {
		return 1
	}
	return 0
}

// directoryEntry serializes a DV entry with C, Y and X dimensions.
func (c Container) directoryEntry(channel int, filePos int64) []byte {
	dims := []struct {
		name string
		start,
		size int
	}{
		{"C", channel, 1},
		{"Y", 0, c.Height},
		{"X", 0, c.Width},
	}

	buf := make([]byte, 32+len(dims)*20)
	copy(buf[0:2], "DV")
	binary.LittleEndian.PutUint32(buf[2:6], c.pixelType())
	binary.LittleEndian.PutUint64(buf[6:14], uint64(filePos))
	binary.LittleEndian.PutUint32(buf[18:22], 0) // uncompressed
	binary.LittleEndian.PutUint32(buf[28:32], uint32(len(dims)))

	for i, d := range dims {
		off := 32 + i*20
		copy(buf[off:off+4], d.name)
		binary.LittleEndian.PutUint32(buf[off+4:off+8], uint32(d.start))
		binary.LittleEndian.PutUint32(buf[off+8:off+12], uint32(d.size))
		binary.LittleEndian.PutUint32(buf[off+16:off+20], uint32(d.size))
	}

	return buf
}

func (c Container) subBlockPayload(entry []byte, ch Channel) []byte {
	var data bytes.Buffer
	if c.Depth == models.Depth16 {
		for _, v := range ch.Pixels {
			var b [2]byte
			binary.LittleEndian.PutUint16(b[:], v)
			data.Write(b[:])
		}
	} else {
		for _, v := range ch.Pixels {
			data.WriteByte(byte(v))
		}
	}

	var out bytes.Buffer
	var sizes [16]byte
	binary.LittleEndian.PutUint64(sizes[8:16], uint64(data.Len()))
	out.Write(sizes[:]) // metadata size 0, attachment size 0, data size

	out.Write(entry)
	if pad := subBlockFixedSize - out.Len(); pad > 0 {
		out.Write(make([]byte, pad))
	}
	out.Write(data.Bytes())

	return out.Bytes()
}

func metadataPayload(doc []byte) []byte {
	var out bytes.Buffer
	var fixed [metadataFixedSize]byte
	binary.LittleEndian.PutUint32(fixed[0:4], uint32(len(doc)))
	out.Write(fixed[:])
	out.Write(doc)
	return out.Bytes()
}

func directoryPayload(entries [][]byte) []byte {
	var out bytes.Buffer
	var fixed [128]byte
	binary.LittleEndian.PutUint32(fixed[0:4], uint32(len(entries)))
	out.Write(fixed[:])
	for _, e := range entries {
		out.Write(e)
	}
	return out.Bytes()
}

func (c Container) metadataXML() []byte {
	var out bytes.Buffer
	out.WriteString("<ImageDocument><Metadata><DisplaySetting><Channels>")
	for _, ch := range c.Channels {
		out.WriteString("<Channel>")
		writeElement(&out, "Low", ch.Low)
		writeElement(&out, "High", ch.High)
		writeElement(&out, "Gamma", ch.Gamma)
		writeElement(&out, "Color", ch.Color)
		writeElement(&out, "ShortName", ch.ShortName)
		out.WriteString("</Channel>")
	}
	out.WriteString("</Channels></DisplaySetting></Metadata></ImageDocument>")
	return out.Bytes()
}

func writeElement(out *bytes.Buffer, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(out, "<%s>%s</%s>", name, value, name)
}

func writeSegment(out *bytes.Buffer, id string, payload []byte) {
	writeSegmentHeader(out, id, int64(len(payload)))
	out.Write(payload)
	// Segments are aligned to 32-byte boundaries.
	if rem := len(payload) % 32; rem != 0 {
		out.Write(make([]byte, 32-rem))
	}
}

func writeSegmentHeader(out *bytes.Buffer, id string, used int64) {
	var header [segmentHeaderSize]byte
	copy(header[:16], id)
	allocated := used
	if rem := allocated % 32; rem != 0 {
		allocated += 32 - rem
	}
	binary.LittleEndian.PutUint64(header[16:24], uint64(allocated))
	binary.LittleEndian.PutUint64(header[24:32], uint64(used))
	out.Write(header[:])
}
