package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/couchcryptid/ndvi-export/internal/domain"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

var prefixRe = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// Job is the operator-facing description of one export batch. It is built
// once, validated, and passed by value into the orchestrator.
type Job struct {
	Region domain.RegionSource
	Years  domain.YearSpec
	Folder string
	Prefix string
	Export domain.ExportOptions
}

// DefaultJob reproduces the Albemarle Peninsula study: every fifth year from
// 1985 to 2020 over an approximate bounding box, exported to GEE_Exports.
func DefaultJob() Job {
	return Job{
		Region: domain.NewBoundingBox("Albemarle", -76.5, 35.5, -75.5, 36.5),
		Years:  domain.YearSpec{Start: 1985, End: 2020, Step: 5},
		Folder: "GEE_Exports",
		Prefix: "NDVI",
		Export: domain.DefaultExportOptions(),
	}
}

// Validate checks the settings that Resolve does not cover. Errors wrap
// domain.ErrConfiguration.
func (j Job) Validate() error {
	if j.Folder == "" {
		return fmt.Errorf("%w: destination folder is required", domain.ErrConfiguration)
	}
	if !prefixRe.MatchString(j.Prefix) {
		return fmt.Errorf("%w: file prefix %q must be non-empty and contain only letters, digits, or '-'", domain.ErrConfiguration, j.Prefix)
	}
	if j.Export.Scale < 0 || j.Export.MaxPixels < 0 {
		return fmt.Errorf("%w: scale and max_pixels must not be negative", domain.ErrConfiguration)
	}
	return nil
}

// hclJobFile is the top-level structure of a job file for decoding.
type hclJobFile struct {
	Label     string    `hcl:"label"`
	Folder    string    `hcl:"folder,optional"`
	Prefix    string    `hcl:"prefix,optional"`
	Scale     float64   `hcl:"scale,optional"`
	CRS       string    `hcl:"crs,optional"`
	MaxPixels float64   `hcl:"max_pixels,optional"`
	Region    hclRegion `hcl:"region,block"`
	Years     hclYears  `hcl:"years,block"`
}

type hclRegion struct {
	Asset       string      `hcl:"asset,optional"`
	Coordinates [][]float64 `hcl:"coordinates,optional"`
	BBox        []float64   `hcl:"bbox,optional"`
}

type hclYears struct {
	Start int `hcl:"start"`
	End   int `hcl:"end"`
	Step  int `hcl:"step,optional"`
}

// LoadJob parses an HCL job file. Unset folder and prefix fall back to the
// DefaultJob values.
func LoadJob(path string) (Job, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Job{}, fmt.Errorf("%w: read job file: %w", domain.ErrConfiguration, err)
	}
	return ParseJob(src, path)
}

// ParseJob decodes HCL job source; filename is used in diagnostics only.
func ParseJob(src []byte, filename string) (Job, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return Job{}, fmt.Errorf("%w: parse job file %s: %w", domain.ErrConfiguration, filename, diags)
	}

	var parsed hclJobFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return Job{}, fmt.Errorf("%w: decode job file %s: %w", domain.ErrConfiguration, filename, diags)
	}

	region, err := parsed.Region.toSource(parsed.Label)
	if err != nil {
		return Job{}, err
	}

	def := DefaultJob()
	job := Job{
		Region: region,
		Years:  domain.YearSpec{Start: parsed.Years.Start, End: parsed.Years.End, Step: parsed.Years.Step},
		Folder: parsed.Folder,
		Prefix: parsed.Prefix,
		Export: domain.ExportOptions{Scale: parsed.Scale, CRS: parsed.CRS, MaxPixels: parsed.MaxPixels},
	}
	if job.Folder == "" {
		job.Folder = def.Folder
	}
	if job.Prefix == "" {
		job.Prefix = def.Prefix
	}
	return job, job.Validate()
}

func (r hclRegion) toSource(label string) (domain.RegionSource, error) {
	set := 0
	for _, present := range []bool{r.Asset != "", len(r.Coordinates) > 0, len(r.BBox) > 0} {
		if present {
			set++
		}
	}
	if set != 1 {
		return domain.RegionSource{}, fmt.Errorf("%w: region block needs exactly one of asset, coordinates, or bbox", domain.ErrConfiguration)
	}

	switch {
	case r.Asset != "":
		return domain.RegionSource{Label: label, AssetID: r.Asset}, nil
	case len(r.BBox) > 0:
		if len(r.BBox) != 4 {
			return domain.RegionSource{}, fmt.Errorf("%w: bbox needs [west, south, east, north], got %d values", domain.ErrConfiguration, len(r.BBox))
		}
		return domain.NewBoundingBox(label, r.BBox[0], r.BBox[1], r.BBox[2], r.BBox[3]), nil
	}

	vertices := make([]domain.Coordinate, len(r.Coordinates))
	for i, pair := range r.Coordinates {
		if len(pair) != 2 {
			return domain.RegionSource{}, fmt.Errorf("%w: coordinate %d needs [lon, lat], got %d values", domain.ErrConfiguration, i, len(pair))
		}
		vertices[i] = domain.Coordinate{Lon: pair[0], Lat: pair[1]}
	}
	return domain.RegionSource{Label: label, Vertices: vertices}, nil
}
