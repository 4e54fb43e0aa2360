package models

import (
	"time"

	"tempo.transitdata.org/internal/clock"
)

// Link follows the "JSON Hypertext Application Language" draft
// (https://tools.ietf.org/html/draft-kelly-json-hal-08).
type Link struct {
	Href      string `json:"href"`
	Templated bool   `json:"templated,omitempty"`
}

// ExposedDataset is the public view of a hosted dataset. The GTFS-RT
// source URLs are deliberately absent, links to the gtfs-rt routes are
// published instead.
type ExposedDataset struct {
	Name  string          `json:"name"`
	ID    string          `json:"id"`
	GTFS  string          `json:"gtfs"`
	Links map[string]Link `json:"_links,omitempty"`
}

// NewExposedDataset builds the public view of a dataset with its
// navigation links.
func NewExposedDataset(d DatasetConfig) ExposedDataset {
	base := "/" + d.ID
	return ExposedDataset{
		Name: d.Name,
		ID:   d.ID,
		GTFS: d.GTFS,
		Links: map[string]Link{
			"self":                 {Href: base + "/"},
			"gtfs-rt":              {Href: base + "/gtfs-rt"},
			"gtfs-rt.json":         {Href: base + "/gtfs-rt.json"},
			"stop-monitoring":      {Href: base + "/siri/2.0/stop-monitoring.json"},
			"stoppoints-discovery": {Href: base + "/siri/2.0/stoppoints-discovery.json"},
			"general-message":      {Href: base + "/siri/2.0/general-message.json"},
			"status":               {Href: base + "/status"},
		},
	}
}

// ApiEntryPoint lists all hosted datasets.
type ApiEntryPoint struct {
	Datasets []ExposedDataset `json:"datasets"`
	Links    map[string]Link  `json:"_links"`
}

// Status reports the freshness of a loaded dataset.
type Status struct {
	Feed     ExposedDataset `json:"feed"`
	LoadedAt time.Time      `json:"loaded_at"`
}

// ResponseModel is the JSON error envelope used by non-SIRI responses.
type ResponseModel struct {
	Code        int    `json:"code"`
	CurrentTime int64  `json:"currentTime"`
	Text        string `json:"text"`
	Version     int    `json:"version"`
}

// ResponseCurrentTime returns the envelope timestamp for the given clock.
func ResponseCurrentTime(c clock.Clock) int64 {
	return c.NowUnixMilli()
}
