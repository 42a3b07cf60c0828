// Package export drives the per-channel export of CZI containers: it applies
// the display calibration to each decoded plane, synthesizes the channel's
// false-color ramp and writes one single-channel TIFF (plus an optional PNG
// preview) per channel.
package export

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/nfnt/resize"
	"golang.org/x/image/tiff"

	"czi2tiff/internal/models"
	"czi2tiff/pkg/calibration"
	"czi2tiff/pkg/czi"
)

// Options configures an Exporter.
type Options struct {
	// OutputDir is where exported files are written. Empty means alongside
	// the input file. The directory is created if missing.
	OutputDir string

	// Depth is the requested output pixel depth; DepthDefault matches each
	// plane's source depth.
	Depth models.BitDepth

	// Round overrides the acquisition round number. Negative means parse
	// it from the input filename.
	Round int

	// ChannelNumbers maps fluorophore short names to output channel
	// numbers. A short name absent from the table aborts the export of
	// that channel before anything is written.
	ChannelNumbers map[string]int

	// Preview enables writing a downscaled grayscale PNG next to each
	// exported TIFF, bounded by PreviewMaxDim on the longer side.
	Preview       bool
	PreviewMaxDim int
}

// Exporter converts CZI containers into per-channel TIFF files.
type Exporter struct {
	opts Options
}

// NewExporter creates an exporter with the provided options.
func NewExporter(opts Options) *Exporter {
	if opts.PreviewMaxDim <= 0 {
		opts.PreviewMaxDim = 512
	}
	return &Exporter{opts: opts}
}

// ExportFile exports every channel of one container and returns the paths
// of the TIFF files written, in channel order. Channels are processed
// strictly in metadata order; the first failure aborts the file, leaving
// any earlier outputs in place.
func (e *Exporter) ExportFile(cziPath string) ([]string, error) {
	file, err := czi.Open(cziPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	channels, err := file.Channels()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cziPath, err)
	}

	planes, err := file.Planes()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cziPath, err)
	}

	if len(channels) != len(planes) {
		return nil, fmt.Errorf("%s: metadata describes %d channels but container holds %d planes",
			cziPath, len(channels), len(planes))
	}

	round := e.opts.Round
	if round < 0 {
		if round, err = ParseRound(cziPath); err != nil {
			return nil, err
		}
	}

	outputDir := e.opts.OutputDir
	if outputDir == "" {
		outputDir = filepath.Dir(cziPath)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}

	written := make([]string, 0, len(planes))
	for i, plane := range planes {
		path, err := e.exportChannel(outputDir, round, channels[i], plane)
		if err != nil {
			return written, fmt.Errorf("%s channel %d: %w", cziPath, i, err)
		}
		written = append(written, path)
	}

	return written, nil
}

// exportChannel calibrates and writes a single channel. The channel number
// lookup happens first so that an unknown fluorophore fails before any
// pixel work or file creation.
func (e *Exporter) exportChannel(outputDir string, round int, ch models.Channel, plane *models.Plane) (string, error) {
	channelNum, ok := e.opts.ChannelNumbers[ch.ShortName]
	if !ok {
		return "", fmt.Errorf("fluorophore short name %q is not in the channel table", ch.ShortName)
	}

	depth, err := calibration.Apply(plane, ch, e.opts.Depth)
	if err != nil {
		return "", err
	}

	img, err := buildImage(plane, ch, depth)
	if err != nil {
		return "", err
	}

	path := filepath.Join(outputDir, OutputName(round, channelNum))
	if err := writeTIFF(path, img); err != nil {
		return "", err
	}

	if e.opts.Preview {
		previewPath := filepath.Join(outputDir, PreviewName(round, channelNum))
		if err := e.writePreview(previewPath, plane, depth); err != nil {
			return "", err
		}
	}

	return path, nil
}

// buildImage quantizes the calibrated plane into an encodable image. 8-bit
// output is paletted so the TIFF carries the channel's false-color ramp;
// 16-bit output is plain grayscale with no ramp.
func buildImage(plane *models.Plane, ch models.Channel, depth models.BitDepth) (image.Image, error) {
	rect := image.Rect(0, 0, plane.Width, plane.Height)

	switch depth {
	case models.Depth8:
		colorHex := ch.Color
		if colorHex == "" {
			colorHex = calibration.DefaultColorHex
		}
		rgb, err := calibration.ParseARGBHex(colorHex)
		if err != nil {
			return nil, err
		}

		img := image.NewPaletted(rect, calibration.Palette(rgb))
		copy(img.Pix, calibration.Quantize8(plane))
		return img, nil

	case models.Depth16:
		img := image.NewGray16(rect)
		for i, v := range calibration.Quantize16(plane) {
			img.Pix[2*i] = uint8(v >> 8)
			img.Pix[2*i+1] = uint8(v)
		}
		return img, nil

	default:
		return nil, fmt.Errorf("unresolved output depth")
	}
}

func writeTIFF(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return tiff.Encode(f, img, nil)
}

// writePreview writes a downscaled grayscale rendition of the calibrated
// plane. Previews stay literal grayscale; the false-color ramp is a display
// aid for the full-resolution TIFF only.
func (e *Exporter) writePreview(path string, plane *models.Plane, depth models.BitDepth) error {
	gray := image.NewGray(image.Rect(0, 0, plane.Width, plane.Height))
	if depth == models.Depth16 {
		for i, v := range calibration.Quantize16(plane) {
			gray.Pix[i] = uint8(v >> 8)
		}
	} else {
		copy(gray.Pix, calibration.Quantize8(plane))
	}

	maxDim := uint(e.opts.PreviewMaxDim)
	thumb := resize.Thumbnail(maxDim, maxDim, gray, resize.Bilinear)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return png.Encode(f, thumb)
}
