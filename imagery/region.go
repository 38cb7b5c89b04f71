package imagery

import (
	geo "github.com/kellydunn/golang-geo"
)

// Region is a latitude/longitude bounding box in degrees.
type Region struct {
	West, South, East, North float64
}

// RegionAround returns the box reaching bufferKm from (lat, lng) in the four
// cardinal directions.
func RegionAround(lat, lng, bufferKm float64) Region {
	p := geo.NewPoint(lat, lng)
	north := p.PointAtDistanceAndBearing(bufferKm, 0)
	east := p.PointAtDistanceAndBearing(bufferKm, 90)
	south := p.PointAtDistanceAndBearing(bufferKm, 180)
	west := p.PointAtDistanceAndBearing(bufferKm, 270)

	return Region{
		West:  west.Lng(),
		South: south.Lat(),
		East:  east.Lng(),
		North: north.Lat(),
	}
}

// GeoJSON returns the region as a GeoJSON polygon.
func (r Region) GeoJSON() map[string]interface{} {
	return map[string]interface{}{
		"type": "Polygon",
		"coordinates": [][][2]float64{{
			{r.West, r.South},
			{r.East, r.South},
			{r.East, r.North},
			{r.West, r.North},
			{r.West, r.South},
		}},
	}
}

// affine returns the EPSG:4326 pixel grid transform mapping a width x height
// raster onto the region, north-up.
func (r Region) affine(width, height int) map[string]float64 {
	return map[string]float64{
		"scaleX":     (r.East - r.West) / float64(width),
		"shearX":     0,
		"translateX": r.West,
		"shearY":     0,
		"scaleY":     -(r.North - r.South) / float64(height),
		"translateY": r.North,
	}
}
