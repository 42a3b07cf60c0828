package czi

import (
	"encoding/xml"
	"fmt"

	"czi2tiff/internal/models"
)

// imageDocument mirrors the slice of the embedded metadata document the
// exporter needs: the per-channel display settings, in channel order.
type imageDocument struct {
	XMLName  xml.Name `xml:"ImageDocument"`
	Metadata struct {
		DisplaySetting struct {
			Channels struct {
				Channel []channelElement `xml:"Channel"`
			} `xml:"Channels"`
		} `xml:"DisplaySetting"`
	} `xml:"Metadata"`
}

// channelElement is one DisplaySetting channel entry. All elements are
// optional in the wild; pointers distinguish "absent" from zero values.
type channelElement struct {
	Low       *float64 `xml:"Low"`
	High      *float64 `xml:"High"`
	Gamma     *float64 `xml:"Gamma"`
	Color     string   `xml:"Color"`
	ShortName string   `xml:"ShortName"`
}

// ParseDisplaySettings decodes the per-channel display calibration from a
// CZI metadata XML document. Absent Low/High/Gamma elements default to the
// full window (0, 1) with no gamma adjustment.
func ParseDisplaySettings(doc []byte) ([]models.Channel, error) {
	var parsed imageDocument
	if err := xml.Unmarshal(doc, &parsed); err != nil {
		return nil, fmt.Errorf("parsing metadata document: %w", err)
	}

	elements := parsed.Metadata.DisplaySetting.Channels.Channel
	channels := make([]models.Channel, len(elements))
	for i, el := range elements {
		ch := models.Channel{
			DisplayMin: 0,
			DisplayMax: 1,
			Gamma:      1,
			ShortName:  el.ShortName,
			Color:      el.Color,
		}
		if el.Low != nil {
			ch.DisplayMin = *el.Low
		}
		if el.High != nil {
			ch.DisplayMax = *el.High
		}
		if el.Gamma != nil {
			ch.Gamma = *el.Gamma
		}
		channels[i] = ch
	}

	return channels, nil
}
