package models

// BitDepth identifies the unsigned integer representation of a pixel plane.
type BitDepth int

const (
	// DepthDefault means "use the source plane's own depth".
	DepthDefault BitDepth = iota

	// Depth8 is 8-bit unsigned (0..255).
	Depth8

	// Depth16 is 16-bit unsigned (0..65535).
	Depth16
)

// Native returns the maximum integer value representable at this depth.
// DepthDefault has no native range of its own and returns 0.
func (d BitDepth) Native() float64 {
	switch d {
	case Depth8:
		return 255
	case Depth16:
		return 65535
	default:
		return 0
	}
}

// String returns the dtype name used on the command line and in config files.
func (d BitDepth) String() string {
	switch d {
	case Depth8:
		return "uint8"
	case Depth16:
		return "uint16"
	default:
		return "default"
	}
}

// Channel holds the display calibration for one acquisition channel,
// read from the DisplaySetting section of the container metadata.
type Channel struct {
	// DisplayMin is the lower edge of the visualization intensity window,
	// normalized to [0,1]. Values at or below it render as black.
	DisplayMin float64

	// DisplayMax is the upper edge of the visualization intensity window,
	// normalized to [0,1]. Values at or above it render at full intensity.
	DisplayMax float64

	// Gamma is the exponent applied to normalized intensity for perceptual
	// brightness adjustment. 1 means no adjustment.
	Gamma float64

	// ShortName is the fluorophore short name (e.g. "AF647") used to map
	// the channel to its output channel number.
	ShortName string

	// Color is the raw ARGB hex string from the metadata (8 hex digits,
	// optionally prefixed with '#'). Empty when the metadata omits it.
	Color string
}

// Plane is a single-channel 2D pixel plane sliced from the decoded volume.
// Intensities are stored normalized to [0,1] in row-major order; SourceDepth
// records the integer representation they were decoded from.
type Plane struct {
	// Data holds Width*Height normalized intensities, row-major.
	Data []float64

	// Width and Height are the plane dimensions in pixels.
	Width, Height int

	// SourceDepth is the bit depth of the container's pixel data.
	SourceDepth BitDepth
}

// At returns the normalized intensity at (x, y).
func (p *Plane) At(x, y int) float64 {
	return p.Data[y*p.Width+x]
}
