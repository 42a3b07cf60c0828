package export

import (
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/tiff"

	"czi2tiff/internal/models"
	"czi2tiff/pkg/czi/czitest"
)

var testChannelNumbers = map[string]int{
	"AF647": 7,
	"PhaCo": 11,
}

// writeContainer assembles a synthetic container under dir.
func writeContainer(t *testing.T, dir, name string, c czitest.Container) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := c.WriteFile(path); err != nil {
		t.Fatalf("Failed to write test container: %v", err)
	}
	return path
}

func decodeTIFF(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer f.Close()

	img, err := tiff.Decode(f)
	if err != nil {
		t.Fatalf("Failed to decode %s: %v", path, err)
	}
	return img
}

// TestExportFileWritesPerChannelTIFFs runs the full pipeline on a two
// channel 8-bit container: round parsed from the filename, channel numbers
// from the fluorophore table, paletted 8-bit output.
func TestExportFileWritesPerChannelTIFFs(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")

	path := writeContainer(t, dir, "scan_R2A.czi", czitest.Container{
		Width: 2, Height: 2, Depth: models.Depth8,
		Channels: []czitest.Channel{
			{Color: "#FF6400C8", ShortName: "AF647", Pixels: []uint16{0, 64, 128, 255}},
			{ShortName: "PhaCo", Pixels: []uint16{1, 2, 3, 4}},
		},
	})

	exporter := NewExporter(Options{
		OutputDir:      outDir,
		Depth:          models.Depth8,
		Round:          -1,
		ChannelNumbers: testChannelNumbers,
	})

	written, err := exporter.ExportFile(path)
	if err != nil {
		t.Fatalf("ExportFile failed: %v", err)
	}

	want := []string{
		filepath.Join(outDir, "R2C7.tif"),
		filepath.Join(outDir, "R2C11.tif"),
	}
	if len(written) != len(want) {
		t.Fatalf("Expected %d outputs, got %d: %v", len(want), len(written), written)
	}
	for i, path := range want {
		if written[i] != path {
			t.Errorf("Expected output %s, got %s", path, written[i])
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Expected %s to exist: %v", path, err)
		}
	}

	// The first channel is 8-bit with a color, so the TIFF must be
	// paletted with the ramp endpoint at the decoded RGB value.
	img := decodeTIFF(t, want[0])
	paletted, ok := img.(*image.Paletted)
	if !ok {
		t.Fatalf("Expected paletted image, got %T", img)
	}

	r, g, b, _ := paletted.Palette[255].RGBA()
	if r>>8 != 0x64 || g>>8 != 0x00 || b>>8 != 0xC8 {
		t.Errorf("Expected ramp endpoint (0x64, 0x00, 0xC8), got (%#x, %#x, %#x)", r>>8, g>>8, b>>8)
	}

	// The second channel has the default window and gamma, so its pixel
	// indices reproduce the input values exactly.
	img = decodeTIFF(t, want[1])
	paletted, ok = img.(*image.Paletted)
	if !ok {
		t.Fatalf("Expected paletted image, got %T", img)
	}
	for i, wantPix := range []uint8{1, 2, 3, 4} {
		if paletted.Pix[i] != wantPix {
			t.Errorf("Expected pixel %d at %d, got %d", wantPix, i, paletted.Pix[i])
		}
	}
}

// TestExportUint16NeverPaletted verifies 16-bit output carries no colormap
// even when the channel metadata has a color.
func TestExportUint16NeverPaletted(t *testing.T) {
	dir := t.TempDir()

	path := writeContainer(t, dir, "scan_R1A.czi", czitest.Container{
		Width: 2, Height: 1, Depth: models.Depth8,
		Channels: []czitest.Channel{
			{Color: "#FF6400C8", ShortName: "AF647", Pixels: []uint16{0, 255}},
		},
	})

	exporter := NewExporter(Options{
		OutputDir:      dir,
		Depth:          models.Depth16,
		Round:          -1,
		ChannelNumbers: testChannelNumbers,
	})

	written, err := exporter.ExportFile(path)
	if err != nil {
		t.Fatalf("ExportFile failed: %v", err)
	}

	img := decodeTIFF(t, written[0])
	gray, ok := img.(*image.Gray16)
	if !ok {
		t.Fatalf("Expected Gray16 image, got %T", img)
	}

	if got := gray.Gray16At(0, 0).Y; got != 0 {
		t.Errorf("Expected 0 at (0,0), got %d", got)
	}
	if got := gray.Gray16At(1, 0).Y; got != 65535 {
		t.Errorf("Expected 65535 at (1,0), got %d", got)
	}
}

// TestExportUnknownShortNameFailsBeforeWrite verifies a fluorophore absent
// from the channel table aborts the channel before its file is created.
func TestExportUnknownShortNameFailsBeforeWrite(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")

	path := writeContainer(t, dir, "scan_R1A.czi", czitest.Container{
		Width: 1, Height: 1, Depth: models.Depth8,
		Channels: []czitest.Channel{
			{ShortName: "XYZ99", Pixels: []uint16{42}},
		},
	})

	exporter := NewExporter(Options{
		OutputDir:      outDir,
		Depth:          models.Depth8,
		Round:          -1,
		ChannelNumbers: testChannelNumbers,
	})

	if _, err := exporter.ExportFile(path); err == nil {
		t.Fatalf("Expected error for unknown short name, got nil")
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("Failed to read output dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no output files, found %d", len(entries))
	}
}

// TestExportRoundOverride verifies an explicit round number wins over the
// filename digit.
func TestExportRoundOverride(t *testing.T) {
	dir := t.TempDir()

	path := writeContainer(t, dir, "scan_R1A.czi", czitest.Container{
		Width: 1, Height: 1, Depth: models.Depth8,
		Channels: []czitest.Channel{
			{ShortName: "AF647", Pixels: []uint16{7}},
		},
	})

	exporter := NewExporter(Options{
		OutputDir:      dir,
		Depth:          models.Depth8,
		Round:          5,
		ChannelNumbers: testChannelNumbers,
	})

	written, err := exporter.ExportFile(path)
	if err != nil {
		t.Fatalf("ExportFile failed: %v", err)
	}
	if filepath.Base(written[0]) != "R5C7.tif" {
		t.Errorf("Expected R5C7.tif, got %s", filepath.Base(written[0]))
	}
}

// TestExportDefaultOutputDir verifies outputs land alongside the input when
// no output directory is configured.
func TestExportDefaultOutputDir(t *testing.T) {
	dir := t.TempDir()

	path := writeContainer(t, dir, "scan_R3A.czi", czitest.Container{
		Width: 1, Height: 1, Depth: models.Depth8,
		Channels: []czitest.Channel{
			{ShortName: "AF647", Pixels: []uint16{0}},
		},
	})

	exporter := NewExporter(Options{
		Depth:          models.Depth8,
		Round:          -1,
		ChannelNumbers: testChannelNumbers,
	})

	written, err := exporter.ExportFile(path)
	if err != nil {
		t.Fatalf("ExportFile failed: %v", err)
	}
	if want := filepath.Join(dir, "R3C7.tif"); written[0] != want {
		t.Errorf("Expected %s, got %s", want, written[0])
	}
}

// TestExportWritesPreview verifies the optional PNG preview, bounded by the
// configured maximum dimension.
func TestExportWritesPreview(t *testing.T) {
	dir := t.TempDir()

	pixels := make([]uint16, 64*32)
	for i := range pixels {
		pixels[i] = uint16(i % 256)
	}

	path := writeContainer(t, dir, "scan_R4A.czi", czitest.Container{
		Width: 64, Height: 32, Depth: models.Depth8,
		Channels: []czitest.Channel{
			{ShortName: "AF647", Pixels: pixels},
		},
	})

	exporter := NewExporter(Options{
		OutputDir:      dir,
		Depth:          models.Depth8,
		Round:          -1,
		ChannelNumbers: testChannelNumbers,
		Preview:        true,
		PreviewMaxDim:  16,
	})

	if _, err := exporter.ExportFile(path); err != nil {
		t.Fatalf("ExportFile failed: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "R4C7_preview.png"))
	if err != nil {
		t.Fatalf("Expected preview file: %v", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("Failed to decode preview: %v", err)
	}
	if cfg.Width > 16 || cfg.Height > 16 {
		t.Errorf("Expected preview bounded by 16px, got %dx%d", cfg.Width, cfg.Height)
	}
}
