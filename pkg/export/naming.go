package export

import (
	"fmt"
	"path/filepath"
)

// OutputName formats the per-channel output filename. There is no collision
// detection; a later write with the same round and channel overwrites an
// earlier one.
func OutputName(round, channel int) string {
	return fmt.Sprintf("R%dC%d.tif", round, channel)
}

// PreviewName formats the per-channel preview filename.
func PreviewName(round, channel int) string {
	return fmt.Sprintf("R%dC%d_preview.png", round, channel)
}

// ParseRound extracts the acquisition round from a container filename.
// Batch inputs carry the round as the sixth character from the end, two
// characters before the ".czi" extension (e.g. "scan_R3A.czi").
func ParseRound(path string) (int, error) {
	base := filepath.Base(path)
	if len(base) < 6 {
		return 0, fmt.Errorf("filename %q too short to carry a round number", base)
	}

	c := base[len(base)-6]
	if c < '0' || c > '9' {
		return 0, fmt.Errorf("filename %q has no round digit in position 6 from the end", base)
	}
	return int(c - '0'), nil
}
