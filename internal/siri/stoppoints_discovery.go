package siri

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tempo.transitdata.org/internal/transit"
)

// StopPointsDiscoveryParams are the query parameters of a
// stoppoints-discovery request. The bounding box uses the dotted keys
// of the SIRI profile.
type StopPointsDiscoveryParams struct {
	Q string

	UpperLeftLongitude  *float64
	UpperLeftLatitude   *float64
	LowerRightLongitude *float64
	LowerRightLatitude  *float64

	Limit  int
	Offset int
}

const defaultDiscoveryLimit = 20

// ParseStopPointsDiscoveryParams validates a stoppoints-discovery query
// string.
func ParseStopPointsDiscoveryParams(values url.Values) (StopPointsDiscoveryParams, error) {
	params := StopPointsDiscoveryParams{
		Q:     values.Get("q"),
		Limit: defaultDiscoveryLimit,
	}

	if s := values.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return params, fmt.Errorf("invalid limit: %q", s)
		}
		params.Limit = n
	}
	if s := values.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return params, fmt.Errorf("invalid offset: %q", s)
		}
		params.Offset = n
	}

	var err error
	if params.UpperLeftLongitude, err = floatParam(values, "BoundingBoxStructure.UpperLeft.Longitude"); err != nil {
		return params, err
	}
	if params.UpperLeftLatitude, err = floatParam(values, "BoundingBoxStructure.UpperLeft.Latitude"); err != nil {
		return params, err
	}
	if params.LowerRightLongitude, err = floatParam(values, "BoundingBoxStructure.LowerRight.Longitude"); err != nil {
		return params, err
	}
	if params.LowerRightLatitude, err = floatParam(values, "BoundingBoxStructure.LowerRight.Latitude"); err != nil {
		return params, err
	}
	return params, nil
}

func floatParam(values url.Values, key string) (*float64, error) {
	s := values.Get(key)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", key, s)
	}
	return &f, nil
}

// StopPointsDiscovery lists the stops matching a name fragment inside a
// bounding box. An unbounded query lists the whole dataset.
func StopPointsDiscovery(ds *transit.Dataset, params StopPointsDiscoveryParams, now time.Time) *SiriResponse {
	model := ds.Model

	minLon := floatOr(params.UpperLeftLongitude, -180)
	maxLon := floatOr(params.LowerRightLongitude, 180)
	minLat := floatOr(params.LowerRightLatitude, -90)
	maxLat := floatOr(params.UpperLeftLatitude, 90)
	q := strings.ToLower(params.Q)

	annotated := []AnnotatedStopPoint{}
	for _, spIdx := range model.StopPointsInBoundingBox(minLon, maxLon, minLat, maxLat) {
		sp := model.StopPoints[spIdx]
		if q != "" && !strings.Contains(strings.ToLower(sp.Name), q) {
			continue
		}

		lines := []Line{}
		for _, routeIdx := range model.RoutesServing(spIdx) {
			lines = append(lines, Line{LineRef: model.Routes[routeIdx].ID})
		}
		annotated = append(annotated, AnnotatedStopPoint{
			StopPointRef: sp.ID,
			StopName:     sp.Name,
			Lines:        lines,
			Location:     Location{Longitude: sp.Lon, Latitude: sp.Lat},
		})
	}

	annotated = paginate(annotated, params.Offset, params.Limit)

	return &SiriResponse{
		Siri: Siri{
			StopPointsDelivery: &StopPointsDelivery{
				CommonDelivery:     NewCommonDelivery(now.In(model.Timezone)),
				AnnotatedStopPoint: annotated,
			},
		},
	}
}

func floatOr(f *float64, fallback float64) float64 {
	if f != nil {
		return *f
	}
	return fallback
}

func paginate(stops []AnnotatedStopPoint, offset, limit int) []AnnotatedStopPoint {
	if offset >= len(stops) {
		return []AnnotatedStopPoint{}
	}
	stops = stops[offset:]
	if limit > 0 && limit < len(stops) {
		stops = stops[:limit]
	}
	return stops
}
