// Package siri implements the SIRI-Lite queries served by the proxy:
// stop-monitoring, stoppoints-discovery and general-message, plus the
// JSON envelope they share.
package siri

import (
	"fmt"
	"time"
)

// dateTimeLayout is the naive local datetime format used on the SIRI
// surface. Only RecordedAtTime and ValidUntilTime carry a timezone.
const dateTimeLayout = "2006-01-02T15:04:05"

// DateTime serializes as a naive local datetime. The wall-clock values
// are meaningful in the dataset timezone.
type DateTime struct {
	time.Time
}

func NewDateTime(t time.Time) DateTime {
	return DateTime{t}
}

func ParseDateTime(s string) (DateTime, error) {
	t, err := time.Parse(dateTimeLayout, s)
	if err != nil {
		return DateTime{}, fmt.Errorf("datetime format not valid: %w", err)
	}
	return DateTime{t}, nil
}

func (d DateTime) String() string {
	return d.Format(dateTimeLayout)
}

func (d DateTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *DateTime) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("datetime format not valid: %s", b)
	}
	parsed, err := ParseDateTime(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

type SiriResponse struct {
	Siri Siri `json:"Siri"`
}

type Siri struct {
	StopPointsDelivery *StopPointsDelivery `json:"StopPointsDelivery,omitempty"`
	ServiceDelivery    *ServiceDelivery    `json:"ServiceDelivery,omitempty"`
}

// CommonDelivery carries the fields shared by every delivery block.
type CommonDelivery struct {
	Version           string  `json:"Version"`
	ResponseTimeStamp string  `json:"ResponseTimeStamp"`
	RequestMessageRef *string `json:"RequestMessageRef,omitempty"`
	Status            bool    `json:"Status"`
}

// NewCommonDelivery stamps a successful delivery with the query time,
// expressed on the dataset's wall clock.
func NewCommonDelivery(now time.Time) CommonDelivery {
	return CommonDelivery{
		Version:           "2.0",
		ResponseTimeStamp: NewDateTime(now).String(),
		Status:            true,
	}
}

type ServiceDelivery struct {
	ResponseTimeStamp         string  `json:"ResponseTimeStamp"`
	ProducerRef               *string `json:"ProducerRef,omitempty"`
	Address                   *string `json:"Address,omitempty"`
	ResponseMessageIdentifier *string `json:"ResponseMessageIdentifier,omitempty"`
	RequestMessageRef         *string `json:"RequestMessageRef,omitempty"`

	StopMonitoringDelivery []StopMonitoringDelivery `json:"StopMonitoringDelivery,omitempty"`
	GeneralMessageDelivery []GeneralMessageDelivery `json:"GeneralMessageDelivery,omitempty"`
}

type StopMonitoringDelivery struct {
	CommonDelivery
	MonitoredStopVisits []MonitoredStopVisit `json:"MonitoredStopVisits"`
}

type MonitoredStopVisit struct {
	// MonitoringRef is the id of the monitored stop point.
	MonitoringRef string `json:"MonitoringRef"`
	// RecordedAtTime is the datetime of the information update.
	RecordedAtTime time.Time `json:"RecordedAtTime"`
	// ItemIdentifier identifies the couple stop / vehicle journey.
	ItemIdentifier string `json:"ItemIdentifier"`
	// The field has always been published with this name, consumers
	// rely on it.
	MonitoringVehicleJourney MonitoredVehicleJourney `json:"MonitoringVehicleJourney"`
}

type MonitoredVehicleJourney struct {
	// LineRef is the id of the line.
	LineRef string `json:"LineRef"`
	// OperatorRef is the id of the operator.
	OperatorRef       *string        `json:"OperatorRef,omitempty"`
	JourneyPatternRef *string        `json:"JourneyPatternRef,omitempty"`
	MonitoredCall     *MonitoredCall `json:"MonitoredCall"`
}

type MonitoredCall struct {
	// Order is the position of the stop in the vehicle journey.
	Order uint32 `json:"Order"`
	// StopPointName is the name of the stop.
	StopPointName string `json:"StopPointName"`
	// VehicleAtStop is true if the vehicle is at the stop.
	VehicleAtStop *bool `json:"VehicleAtStop,omitempty"`
	// DestinationDisplay is the headsign of the vehicle.
	DestinationDisplay *string `json:"DestinationDisplay,omitempty"`
	// Scheduled times.
	AimedArrivalTime   *DateTime `json:"AimedArrivalTime,omitempty"`
	AimedDepartureTime *DateTime `json:"AimedDepartureTime,omitempty"`
	// Estimated times from the realtime feed.
	ExpectedArrivalTime   *DateTime `json:"ExpectedArrivalTime,omitempty"`
	ExpectedDepartureTime *DateTime `json:"ExpectedDepartureTime,omitempty"`
}

type StopPointsDelivery struct {
	CommonDelivery
	AnnotatedStopPoint []AnnotatedStopPoint `json:"AnnotatedStopPoint"`
}

type AnnotatedStopPoint struct {
	StopPointRef string   `json:"StopPointRef"`
	StopName     string   `json:"StopName"`
	Lines        []Line   `json:"Lines"`
	Location     Location `json:"Location"`
}

type Line struct {
	LineRef string `json:"LineRef"`
}

// Location keys are lowercase, unlike the rest of the surface.
type Location struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// Message types of the idf profile.
const (
	ShortMessage = "shortMessage"
	LongMessage  = "longMessage"
)

type GeneralMessageDelivery struct {
	CommonDelivery
	InfoMessages             []InfoMessage             `json:"InfoMessages"`
	InfoMessagesCancellation []InfoMessageCancellation `json:"InfoMessagesCancellation"`
}

type InfoMessage struct {
	// Format of the message content.
	Format *string `json:"Format,omitempty"`
	// RecordedAtTime is the datetime of the recording of the message.
	RecordedAtTime *time.Time `json:"RecordedAtTime,omitempty"`
	ItemIdentifier *string    `json:"ItemIdentifier,omitempty"`
	// InfoMessageIdentifier is reused when the message is updated.
	InfoMessageIdentifier *string `json:"InfoMessageIdentifier,omitempty"`
	InfoMessageVersion    *string `json:"InfoMessageVersion,omitempty"`
	// ValidUntilTime is the datetime until which the message is valid.
	ValidUntilTime *time.Time              `json:"ValidUntilTime,omitempty"`
	Content        GeneralMessageStructure `json:"Content"`
}

type InfoMessageCancellation struct {
	RecordedAtTime        time.Time `json:"RecordedAtTime"`
	ItemIdentifier        *string   `json:"ItemIdentifier,omitempty"`
	InfoMessageIdentifier *string   `json:"InfoMessageIdentifier,omitempty"`
}

type GeneralMessageStructure struct {
	// Ids of the impacted lines, stops and destinations.
	LineRef        []string  `json:"LineRef,omitempty"`
	StopPointRef   []string  `json:"StopPointRef,omitempty"`
	DestinationRef []string  `json:"DestinationRef,omitempty"`
	Message        []Message `json:"Message"`
}

type Message struct {
	MessageType *string           `json:"MessageType,omitempty"`
	MessageText NaturalLangString `json:"MessageText"`
}

type NaturalLangString struct {
	Lang  *string `json:"Lang,omitempty"`
	Value string  `json:"Value"`
}
