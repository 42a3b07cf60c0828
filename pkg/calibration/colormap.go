package calibration

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// RampSteps is the number of entries in a false-color ramp, one per 8-bit
// intensity level. Ramps are only meaningful for 8-bit output.
const RampSteps = 256

// DefaultColorHex is the ramp color used when the channel metadata carries
// no Color element: an opaque white ramp, i.e. plain grayscale.
const DefaultColorHex = "#FFFFFFFF"

// RGB is an 8-bit color decoded from a metadata ARGB hex string.
type RGB struct {
	R, G, B uint8
}

// ParseARGBHex decodes a channel color of the form "#AARRGGBB" (the leading
// '#' is optional, the alpha byte is ignored). Anything other than exactly
// eight hex digits is rejected rather than silently misread.
func ParseARGBHex(s string) (RGB, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 8 {
		return RGB{}, fmt.Errorf("color %q: expected 8 hex digits (ARGB), got %d", s, len(hex))
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("color %q: %w", s, err)
	}

	return RGB{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
	}, nil
}

// Ramp synthesizes the 3x256 false-color table for a channel: three
// independent linear ramps from 0 up to the color's R, G and B components.
// ramp[0] is always black and ramp[255] is the exact channel color.
func Ramp(c RGB) [3][RampSteps]uint8 {
	var out [3][RampSteps]uint8
	span := make([]float64, RampSteps)

	for ci, end := range [3]uint8{c.R, c.G, c.B} {
		floats.Span(span, 0, float64(end))
		for i, v := range span {
			out[ci][i] = uint8(math.Round(v))
		}
	}

	return out
}

// Palette converts the channel's ramp into a 256-entry palette suitable for
// embedding in a paletted image file.
func Palette(c RGB) color.Palette {
	ramp := Ramp(c)
	pal := make(color.Palette, RampSteps)
	for i := range pal {
		pal[i] = color.RGBA{R: ramp[0][i], G: ramp[1][i], B: ramp[2][i], A: 0xFF}
	}
	return pal
}
