package earthengine

import (
	"strconv"

	"github.com/couchcryptid/ndvi-export/internal/domain"
)

// Expression graph types, following the REST API's serialized computation
// envelope: a result reference into a table of values. A value is a constant,
// a function invocation whose arguments are again values, a reference to a
// function argument, or a function definition whose body is a key into the
// same table.

type expression struct {
	Result string           `json:"result"`
	Values map[string]value `json:"values"`
}

type value struct {
	ConstantValue           any                 `json:"constantValue,omitempty"`
	FunctionInvocationValue *invocation         `json:"functionInvocationValue,omitempty"`
	FunctionDefinitionValue *functionDefinition `json:"functionDefinitionValue,omitempty"`
	ArgumentReference       string              `json:"argumentReference,omitempty"`
}

type invocation struct {
	FunctionName string           `json:"functionName"`
	Arguments    map[string]value `json:"arguments"`
}

type functionDefinition struct {
	ArgumentNames []string `json:"argumentNames"`
	Body          string   `json:"body"`
}

func constant(v any) value { return value{ConstantValue: v} }

func argument(name string) value { return value{ArgumentReference: name} }

func call(name string, args map[string]value) value {
	return value{FunctionInvocationValue: &invocation{FunctionName: name, Arguments: args}}
}

// graph collects the value table. Keys are assigned in insertion order so the
// same request always renders the same JSON.
type graph struct {
	values map[string]value
}

func (g *graph) add(v value) string {
	key := strconv.Itoa(len(g.values))
	g.values[key] = v
	return key
}

// function stores body in the table and returns a one-argument function
// definition referring to it.
func (g *graph) function(arg string, body value) value {
	return value{FunctionDefinitionValue: &functionDefinition{
		ArgumentNames: []string{arg},
		Body:          g.add(body),
	}}
}

// buildExpression renders a composite request: each source collection is
// date- and bounds-filtered, then mapped image by image through the cloud mask
// and the harmonized NDVI band; the collections are merged, median-reduced,
// reduced to the NDVI band, clipped to the region, and set to the export grid.
func buildExpression(req domain.CompositeRequest) expression {
	g := &graph{values: map[string]value{}}
	region := geometry(req.Region)

	var merged value
	for i, src := range req.Sources {
		coll := g.harmonizedSource(req, src, region, i)
		if i == 0 {
			merged = coll
			continue
		}
		merged = call("ImageCollection.merge", map[string]value{
			"collection1": merged,
			"collection2": coll,
		})
	}

	img := call("reduce."+req.Reducer, map[string]value{"collection": merged})
	img = call("Image.select", map[string]value{
		"input":         img,
		"bandSelectors": constant([]string{req.Index.Name}),
	})
	img = call("Image.clip", map[string]value{
		"input":    img,
		"geometry": region,
	})
	img = call("Image.reproject", map[string]value{
		"image": img,
		"crs":   constant(req.CRS),
		"scale": constant(req.Scale),
	})

	return expression{Result: g.add(img), Values: g.values}
}

func (g *graph) harmonizedSource(req domain.CompositeRequest, src domain.SourceSpec, region value, n int) value {
	coll := call("ImageCollection.load", map[string]value{"id": constant(src.CollectionID)})
	coll = call("Collection.filter", map[string]value{
		"collection": coll,
		"filter": call("Filter.dateRangeContains", map[string]value{
			"leftValue": call("DateRange", map[string]value{
				"start": constant(req.DateStart),
				"end":   constant(req.DateEnd),
			}),
			"rightField": constant("system:time_start"),
		}),
	})
	coll = call("Collection.filter", map[string]value{
		"collection": coll,
		"filter": call("Filter.intersects", map[string]value{
			"leftField":  constant(".all"),
			"rightValue": region,
		}),
	})

	arg := "_MAPPING_VAR_" + strconv.Itoa(n)
	return call("Collection.map", map[string]value{
		"collection":    coll,
		"baseAlgorithm": g.function(arg, ndviImage(req, src, argument(arg))),
	})
}

// ndviImage masks cloudy pixels of one image and returns its NDVI band under
// the canonical index name.
func ndviImage(req domain.CompositeRequest, src domain.SourceSpec, image value) value {
	var mask int64
	for _, bit := range src.CloudMask.Bits {
		mask |= 1 << bit
	}
	qa := call("Image.select", map[string]value{
		"input":         image,
		"bandSelectors": constant([]string{src.CloudMask.Band}),
	})
	clearSky := call("Image.eq", map[string]value{
		"image1": call("Image.bitwiseAnd", map[string]value{
			"image1": qa,
			"image2": call("Image.constant", map[string]value{"value": constant(mask)}),
		}),
		"image2": call("Image.constant", map[string]value{"value": constant(0)}),
	})
	masked := call("Image.updateMask", map[string]value{
		"image": image,
		"mask":  clearSky,
	})
	bands := call("Image.select", map[string]value{
		"input":         masked,
		"bandSelectors": constant([]string{src.Bands.NIR, src.Bands.Red}),
		"newNames":      constant(req.Index.Bands[:]),
	})
	ndvi := call("Image.normalizedDifference", map[string]value{
		"input":     bands,
		"bandNames": constant(req.Index.Bands[:]),
	})
	return call("Image.rename", map[string]value{
		"input": ndvi,
		"names": constant([]string{req.Index.Name}),
	})
}

func geometry(r domain.Region) value {
	if r.IsAsset() {
		return call("Collection.geometry", map[string]value{
			"collection": call("Collection.loadTable", map[string]value{"tableId": constant(r.AssetID)}),
		})
	}
	ring := r.Ring()
	coords := make([][2]float64, len(ring))
	for i, c := range ring {
		coords[i] = [2]float64{c.Lon, c.Lat}
	}
	return call("GeometryConstructors.Polygon", map[string]value{
		"coordinates": constant([][][2]float64{coords}),
		"geodesic":    constant(false),
	})
}
