package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
)

// labelRe restricts region labels to characters that are safe inside an
// exported file name.
var labelRe = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// Coordinate is a WGS-84 longitude/latitude pair.
type Coordinate struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// RegionSource is the operator-supplied description of the study area: either
// an inline polygon or the ID of a geometry asset stored in the imagery service.
type RegionSource struct {
	Label    string
	Vertices []Coordinate
	AssetID  string
}

// NewBoundingBox returns an inline rectangular region source, vertices in
// counter-clockwise order starting at the south-west corner.
func NewBoundingBox(label string, west, south, east, north float64) RegionSource {
	return RegionSource{
		Label: label,
		Vertices: []Coordinate{
			{Lon: west, Lat: south},
			{Lon: east, Lat: south},
			{Lon: east, Lat: north},
			{Lon: west, Lat: north},
		},
	}
}

// Region is a resolved clip boundary. It is shared read-only by every
// composite request in a batch: the vertices are unexported and every
// accessor returns a copy.
type Region struct {
	Label    string
	AssetID  string
	vertices []Coordinate
}

// IsAsset reports whether the region refers to a remote geometry asset.
func (r Region) IsAsset() bool { return r.AssetID != "" }

// Vertices returns a copy of the polygon's distinct vertices, without the
// closing vertex. It is nil for asset regions.
func (r Region) Vertices() []Coordinate {
	if len(r.vertices) == 0 {
		return nil
	}
	return append([]Coordinate(nil), r.vertices...)
}

// Ring returns the polygon's vertices closed so that the last equals the first.
func (r Region) Ring() []Coordinate {
	if len(r.vertices) == 0 {
		return nil
	}
	ring := make([]Coordinate, 0, len(r.vertices)+1)
	ring = append(ring, r.vertices...)
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}

// Equal reports whether two regions describe the same boundary.
func (r Region) Equal(o Region) bool {
	return r.Label == o.Label && r.AssetID == o.AssetID && slices.Equal(r.vertices, o.vertices)
}

type regionJSON struct {
	Label    string       `json:"label"`
	Vertices []Coordinate `json:"vertices,omitempty"`
	AssetID  string       `json:"asset_id,omitempty"`
}

// MarshalJSON includes the vertices so the request key covers the geometry.
func (r Region) MarshalJSON() ([]byte, error) {
	return json.Marshal(regionJSON{Label: r.Label, Vertices: r.vertices, AssetID: r.AssetID})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Region) UnmarshalJSON(data []byte) error {
	var raw regionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Region{Label: raw.Label, AssetID: raw.AssetID, vertices: raw.Vertices}
	return nil
}

func resolveRegion(src RegionSource) (Region, error) {
	if !labelRe.MatchString(src.Label) {
		return Region{}, fmt.Errorf("%w: region label %q must be non-empty and contain only letters, digits, or '-'", ErrConfiguration, src.Label)
	}

	hasInline := len(src.Vertices) > 0
	hasAsset := src.AssetID != ""
	switch {
	case hasInline && hasAsset:
		return Region{}, fmt.Errorf("%w: region %q sets both inline vertices and asset %q", ErrConfiguration, src.Label, src.AssetID)
	case hasAsset:
		return Region{Label: src.Label, AssetID: src.AssetID}, nil
	}

	vertices := src.Vertices
	// A closing vertex repeating the first is part of the ring, not a new corner.
	if len(vertices) > 1 && vertices[0] == vertices[len(vertices)-1] {
		vertices = vertices[:len(vertices)-1]
	}

	distinct := make(map[Coordinate]struct{}, len(vertices))
	for i, v := range vertices {
		if v.Lon < -180 || v.Lon > 180 || v.Lat < -90 || v.Lat > 90 {
			return Region{}, fmt.Errorf("%w: region %q vertex %d (%g, %g) is out of range", ErrConfiguration, src.Label, i, v.Lon, v.Lat)
		}
		distinct[v] = struct{}{}
	}
	if len(distinct) < 3 {
		return Region{}, fmt.Errorf("%w: region %q has %d distinct vertices, a polygon needs at least 3", ErrConfiguration, src.Label, len(distinct))
	}

	return Region{
		Label:    src.Label,
		vertices: append([]Coordinate(nil), vertices...),
	}, nil
}
