// Package domain models yearly NDVI composite exports from Landsat surface
// reflectance imagery.
//
// # Inputs
//
// A batch is described by a study region and a year range. The region is
// either an inline polygon (longitude/latitude vertices) or the ID of a
// geometry asset stored in the imagery service, and always carries a label
// that becomes part of every exported file name. [Resolve] validates both and
// fails with [ErrConfiguration] on degenerate polygons or descending ranges.
//
// # Harmonization policy
//
// Landsat sensors name their bands differently:
//
//	Landsat 5 TM, Landsat 7 ETM+:  NIR = SR_B4, red = SR_B3
//	Landsat 8 OLI:                 NIR = SR_B5, red = SR_B4
//
// Each contributing collection is mapped to the canonical nir/red/qa names,
// masked with its QA_PIXEL band (bit 3 cloud shadow, bit 5 cloud), and given
// an NDVI band = (nir - red) / (nir + red). All collections covering a year
// are merged before the per-pixel median, so in overlap years (1999-2012 for
// Landsat 5/7, 2013 onward for Landsat 7/8) no sensor takes priority. Sources
// are ordered by collection ID, which keeps [CompositeRequest] values and
// their keys identical regardless of catalog order.
//
// # Output naming
//
// Exports are written as <prefix>_<year>_<label>.tif (see [FileName]). Years
// are unique within a batch, so file names are too.
package domain
