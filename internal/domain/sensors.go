package domain

import "sort"

// Bit positions in the Landsat Collection 2 QA_PIXEL band.
const (
	qaCloudShadowBit = 3
	qaCloudBit       = 5
)

// BandMapping maps a sensor's band names onto the canonical nir/red/qa set.
type BandMapping struct {
	NIR string `json:"nir"`
	Red string `json:"red"`
	QA  string `json:"qa"`
}

// MaskSpec keeps a pixel only when every listed bit of Band is zero.
type MaskSpec struct {
	Band string `json:"band"`
	Bits []uint `json:"bits"`
}

// Sensor describes one surface-reflectance collection and the years it has
// imagery for. LastYear zero means the collection is still acquiring.
type Sensor struct {
	Name         string
	CollectionID string
	FirstYear    int
	LastYear     int
	Bands        BandMapping
}

// Covers reports whether the sensor has imagery for year.
func (s Sensor) Covers(year int) bool {
	return year >= s.FirstYear && (s.LastYear == 0 || year <= s.LastYear)
}

// landsatCatalog lists the Collection 2 Tier 1 Level-2 products. Landsat 4-7
// put NIR on band 4 and red on band 3; OLI shifted both up by one.
var landsatCatalog = []Sensor{
	{
		Name:         "LANDSAT_5",
		CollectionID: "LANDSAT/LT05/C02/T1_L2",
		FirstYear:    1984,
		LastYear:     2012,
		Bands:        BandMapping{NIR: "SR_B4", Red: "SR_B3", QA: "QA_PIXEL"},
	},
	{
		Name:         "LANDSAT_7",
		CollectionID: "LANDSAT/LE07/C02/T1_L2",
		FirstYear:    1999,
		Bands:        BandMapping{NIR: "SR_B4", Red: "SR_B3", QA: "QA_PIXEL"},
	},
	{
		Name:         "LANDSAT_8",
		CollectionID: "LANDSAT/LC08/C02/T1_L2",
		FirstYear:    2013,
		Bands:        BandMapping{NIR: "SR_B5", Red: "SR_B4", QA: "QA_PIXEL"},
	},
}

// sensorsFor returns the catalog entries covering year, ordered by collection
// ID so the result does not depend on catalog order.
func sensorsFor(catalog []Sensor, year int) []Sensor {
	var out []Sensor
	for _, s := range catalog {
		if s.Covers(year) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CollectionID < out[j].CollectionID })
	return out
}
