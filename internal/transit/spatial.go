package transit

import (
	"sort"

	"github.com/tidwall/rtree"
)

// stopIndex is a spatial index over stop coordinates for bounding box
// queries.
type stopIndex struct {
	tree rtree.RTree
}

func newStopIndex(stops []StopPoint) *stopIndex {
	ix := &stopIndex{}
	// For points, min and max are the same [lat, lon]
	for i, stop := range stops {
		ix.tree.Insert(
			[2]float64{stop.Lat, stop.Lon},
			[2]float64{stop.Lat, stop.Lon},
			StopPointIdx(i),
		)
	}
	return ix
}

// StopPointsInBoundingBox returns the stops within the box, in index
// order.
func (m *Model) StopPointsInBoundingBox(minLon, maxLon, minLat, maxLat float64) []StopPointIdx {
	if minLat > maxLat {
		minLat, maxLat = maxLat, minLat
	}
	if minLon > maxLon {
		minLon, maxLon = maxLon, minLon
	}

	var results []StopPointIdx
	m.stops.tree.Search(
		[2]float64{minLat, minLon},
		[2]float64{maxLat, maxLon},
		func(min, max [2]float64, data interface{}) bool {
			results = append(results, data.(StopPointIdx))
			return true
		},
	)
	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	return results
}
