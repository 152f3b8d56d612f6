package harvester

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"hydropipe/internal/model"
	"hydropipe/pkg/apperror"
)

// gmlFeatureCollection is a deliberately loose mapping onto a WFS
// GetFeature response: only enough structure to confirm the document
// parses and count its members. The document itself is stored verbatim
// in Bronze, so nothing else needs to survive the decode.
type gmlFeatureCollection struct {
	XMLName xml.Name `xml:"FeatureCollection"`
	Members []struct {
		InnerXML []byte `xml:",innerxml"`
	} `xml:"featureMember"`
}

// countGMLFeatures decodes body as a WFS FeatureCollection and returns its
// member count, or an error if the document does not parse as XML.
func countGMLFeatures(body []byte) (int, error) {
	var collection gmlFeatureCollection
	if err := xml.Unmarshal(body, &collection); err != nil {
		return 0, err
	}
	return len(collection.Members), nil
}

// gmlGridCell is the subset of a grille_meteo feature member the grid
// loader needs: the cell identifier and its centroid position, encoded
// by the WFS server as a "lat lon" pair per GML's pos element.
type gmlGridCell struct {
	ID  string `xml:"id,attr"`
	Pos string `xml:"Point>pos"`
}

// ParseMeteoGrid decodes a raw WFS FeatureCollection body into grid
// cells ready for Silver's LoadMeteoGrid, skipping any member missing
// an id or a parseable position rather than failing the whole document.
func ParseMeteoGrid(body []byte) ([]model.MeteoGridCell, error) {
	var collection struct {
		Members []struct {
			Cell gmlGridCell `xml:"grille_meteo"`
		} `xml:"featureMember"`
	}
	if err := xml.Unmarshal(body, &collection); err != nil {
		return nil, apperror.Wrap(err, apperror.CodePermanentSource, "decoding meteo grid GML")
	}

	cells := make([]model.MeteoGridCell, 0, len(collection.Members))
	for _, member := range collection.Members {
		lon, lat, ok := parsePos(member.Cell.Pos)
		if member.Cell.ID == "" || !ok {
			continue
		}
		cells = append(cells, model.MeteoGridCell{
			GridID: member.Cell.ID,
			Geom:   orb.Point{lon, lat},
		})
	}
	return cells, nil
}

func parsePos(pos string) (lon, lat float64, ok bool) {
	fields := strings.Fields(pos)
	if len(fields) != 2 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, false
	}
	return lon, lat, true
}
