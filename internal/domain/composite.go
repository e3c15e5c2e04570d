package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Defaults taken from the Landsat NDVI workflow: native 30 m pixels in
// geographic coordinates, with a pixel cap high enough for a county-sized AOI.
const (
	DefaultScale     = 30
	DefaultCRS       = "EPSG:4326"
	DefaultMaxPixels = 1e13

	// ReducerMedian is the only per-pixel reduction the workflow uses.
	ReducerMedian = "median"
)

// ExportOptions controls the output grid of an exported composite.
type ExportOptions struct {
	Scale     float64
	CRS       string
	MaxPixels float64
}

// DefaultExportOptions returns the standard 30 m EPSG:4326 grid.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{Scale: DefaultScale, CRS: DefaultCRS, MaxPixels: DefaultMaxPixels}
}

func (o ExportOptions) withDefaults() ExportOptions {
	d := DefaultExportOptions()
	if o.Scale > 0 {
		d.Scale = o.Scale
	}
	if o.CRS != "" {
		d.CRS = o.CRS
	}
	if o.MaxPixels > 0 {
		d.MaxPixels = o.MaxPixels
	}
	return d
}

// SourceSpec is one contributing collection with its harmonization rules.
type SourceSpec struct {
	Sensor       string      `json:"sensor"`
	CollectionID string      `json:"collection_id"`
	Bands        BandMapping `json:"bands"`
	CloudMask    MaskSpec    `json:"cloud_mask"`
}

// IndexSpec describes the normalized-difference band computed per image.
type IndexSpec struct {
	Name  string    `json:"name"`
	Bands [2]string `json:"bands"` // canonical names, (first - second) / (first + second)
}

// CompositeRequest fully determines one remote composite computation. Every
// source is masked, given an NDVI band, merged into one collection, reduced
// by per-pixel median, and clipped to Region.
type CompositeRequest struct {
	Key       string       `json:"key"`
	Year      int          `json:"year"`
	Region    Region       `json:"region"`
	DateStart string       `json:"date_start"` // inclusive
	DateEnd   string       `json:"date_end"`   // exclusive
	Sources   []SourceSpec `json:"sources"`
	Index     IndexSpec    `json:"index"`
	Reducer   string       `json:"reducer"`
	Scale     float64      `json:"scale"`
	CRS       string       `json:"crs"`
	MaxPixels float64      `json:"max_pixels"`
}

// BuildRequest constructs the NDVI composite request for year over region.
// It never touches the network. All catalog collections covering the year
// contribute equally to the median; a year with no coverage wraps ErrNoCoverage.
func BuildRequest(year int, region Region, opts ExportOptions) (CompositeRequest, error) {
	return buildRequest(landsatCatalog, year, region, opts)
}

func buildRequest(catalog []Sensor, year int, region Region, opts ExportOptions) (CompositeRequest, error) {
	sensors := sensorsFor(catalog, year)
	if len(sensors) == 0 {
		return CompositeRequest{}, fmt.Errorf("%w %d", ErrNoCoverage, year)
	}

	sources := make([]SourceSpec, len(sensors))
	for i, s := range sensors {
		sources[i] = SourceSpec{
			Sensor:       s.Name,
			CollectionID: s.CollectionID,
			Bands:        s.Bands,
			CloudMask:    MaskSpec{Band: s.Bands.QA, Bits: []uint{qaCloudShadowBit, qaCloudBit}},
		}
	}

	opts = opts.withDefaults()
	req := CompositeRequest{
		Year:      year,
		Region:    region,
		DateStart: fmt.Sprintf("%04d-01-01", year),
		DateEnd:   fmt.Sprintf("%04d-01-01", year+1),
		Sources:   sources,
		Index:     IndexSpec{Name: "NDVI", Bands: [2]string{"nir", "red"}},
		Reducer:   ReducerMedian,
		Scale:     opts.Scale,
		CRS:       opts.CRS,
		MaxPixels: opts.MaxPixels,
	}

	key, err := requestKey(req)
	if err != nil {
		return CompositeRequest{}, err
	}
	req.Key = key
	return req, nil
}

// requestKey hashes the request content so identical requests share a key
// across runs.
func requestKey(req CompositeRequest) (string, error) {
	req.Key = ""
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode composite request: %w", err)
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("ndvi-%d-%s", req.Year, hex.EncodeToString(hash[:8])), nil
}

// ExportRequestID identifies one submission of req to a destination. The
// service drops a second export carrying an ID it has already seen, so the
// ID covers the destination and the batch run: a retried call within a run
// is deduplicated, while another folder, file name, or a later run always
// starts a new task.
func ExportRequestID(req CompositeRequest, runID, folder, fileName string) string {
	h := sha256.New()
	for _, part := range []string{req.Key, runID, folder, fileName} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("ndvi-%d-%s", req.Year, hex.EncodeToString(h.Sum(nil)[:8]))
}

// FileName returns the export file name <prefix>_<year>_<label>.tif.
func FileName(prefix string, year int, label string) string {
	return fmt.Sprintf("%s_%d_%s.tif", prefix, year, label)
}
