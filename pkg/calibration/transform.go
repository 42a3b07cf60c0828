// Package calibration implements the per-channel display calibration used
// when exporting microscopy channels: intensity window rescaling, gamma
// correction, bit-depth quantization and false-color ramp synthesis.
package calibration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"czi2tiff/internal/models"
)

// Rescale linearly maps the display window [displayMin, displayMax] onto the
// full intensity range, clipping values outside the window. The window is
// given normalized to [0,1]; before use it is converted into the plane's
// native integer range by rounding, so an 8-bit window edge of 0.5 becomes
// 128/255 rather than 127.5/255.
//
// The full default window (0, 1) is a no-op.
func Rescale(p *models.Plane, displayMin, displayMax float64) error {
	if displayMin == 0 && displayMax == 1 {
		return nil
	}

	native := p.SourceDepth.Native()
	if native == 0 {
		return fmt.Errorf("cannot rescale plane with unresolved source depth")
	}

	low := math.Round(displayMin*native) / native
	high := math.Round(displayMax*native) / native
	if high <= low {
		return fmt.Errorf("display window [%g, %g] is empty after rounding to %s range",
			displayMin, displayMax, p.SourceDepth)
	}

	floats.AddConst(-low, p.Data)
	floats.Scale(1/(high-low), p.Data)

	// Clip everything outside the window.
	for i, v := range p.Data {
		if v < 0 {
			p.Data[i] = 0
		} else if v > 1 {
			p.Data[i] = 1
		}
	}

	return nil
}

// AdjustGamma applies the perceptual gamma curve output = input^gamma over
// the normalized intensity domain. Gamma 1 is a no-op.
func AdjustGamma(p *models.Plane, gamma float64) {
	if gamma == 1 {
		return
	}

	for i, v := range p.Data {
		p.Data[i] = math.Pow(v, gamma)
	}
}

// ResolveDepth maps the requested output depth to a concrete one, resolving
// DepthDefault to the plane's own source depth.
func ResolveDepth(requested models.BitDepth, p *models.Plane) models.BitDepth {
	if requested == models.DepthDefault {
		return p.SourceDepth
	}
	return requested
}

// Apply runs the full calibration pipeline for one channel in place and
// returns the concrete depth the plane should be quantized to.
func Apply(p *models.Plane, ch models.Channel, requested models.BitDepth) (models.BitDepth, error) {
	if err := Rescale(p, ch.DisplayMin, ch.DisplayMax); err != nil {
		return models.DepthDefault, err
	}
	AdjustGamma(p, ch.Gamma)
	return ResolveDepth(requested, p), nil
}

// Quantize8 converts the normalized plane to 8-bit unsigned intensities.
func Quantize8(p *models.Plane) []uint8 {
	out := make([]uint8, len(p.Data))
	for i, v := range p.Data {
		out[i] = uint8(math.Round(clamp01(v) * 255))
	}
	return out
}

// Quantize16 converts the normalized plane to 16-bit unsigned intensities.
func Quantize16(p *models.Plane) []uint16 {
	out := make([]uint16, len(p.Data))
	for i, v := range p.Data {
		out[i] = uint16(math.Round(clamp01(v) * 65535))
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
