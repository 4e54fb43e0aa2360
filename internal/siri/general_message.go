package siri

import (
	"errors"
	"fmt"
	"sort"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"tempo.transitdata.org/internal/transit"
)

// ErrNoRealtimeData means no realtime feed has been fetched yet for the
// dataset.
var ErrNoRealtimeData = errors.New("no realtime data available")

// GeneralMessage exposes the service alerts of the stored realtime feed
// that are active at query time.
func GeneralMessage(rt *transit.RealTimeDataset, now time.Time) (*SiriResponse, error) {
	if rt.Feed == nil {
		return nil, ErrNoRealtimeData
	}

	feed := &gtfsrt.FeedMessage{}
	if err := proto.Unmarshal(rt.Feed.Raw, feed); err != nil {
		return nil, fmt.Errorf("impossible to decode protobuf message: %w", err)
	}

	messages := []InfoMessage{}
	for _, entity := range feed.GetEntity() {
		alert := entity.GetAlert()
		if alert == nil {
			continue
		}
		if !alertActiveAt(alert, now) {
			continue
		}
		messages = append(messages, InfoMessage{
			ValidUntilTime: alertValidUntil(alert),
			Content:        alertContent(alert),
		})
	}

	localNow := now.In(rt.Base.Model.Timezone)
	return &SiriResponse{
		Siri: Siri{
			ServiceDelivery: &ServiceDelivery{
				ResponseTimeStamp: NewDateTime(localNow).String(),
				GeneralMessageDelivery: []GeneralMessageDelivery{
					{
						CommonDelivery:           NewCommonDelivery(localNow),
						InfoMessages:             messages,
						InfoMessagesCancellation: []InfoMessageCancellation{},
					},
				},
			},
		},
	}, nil
}

// alertActiveAt checks the alert's active periods against the query
// time. Open-ended bounds default to always; an alert with no period at
// all is always active.
func alertActiveAt(alert *gtfsrt.Alert, now time.Time) bool {
	periods := alert.GetActivePeriod()
	if len(periods) == 0 {
		return true
	}
	ts := now.Unix()
	for _, p := range periods {
		start := int64(0)
		if p.Start != nil {
			start = int64(p.GetStart())
		}
		if ts < start {
			continue
		}
		if p.End != nil && ts > int64(p.GetEnd()) {
			continue
		}
		return true
	}
	return false
}

// alertValidUntil is the latest end over the alert's active periods,
// or nil when every period is open-ended.
func alertValidUntil(alert *gtfsrt.Alert) *time.Time {
	var until *time.Time
	for _, p := range alert.GetActivePeriod() {
		if p.End == nil {
			continue
		}
		end := time.Unix(int64(p.GetEnd()), 0).UTC()
		if until == nil || end.After(*until) {
			until = &end
		}
	}
	return until
}

func alertContent(alert *gtfsrt.Alert) GeneralMessageStructure {
	// sets, there can be lots of duplicates
	lineRefs := map[string]bool{}
	stopRefs := map[string]bool{}
	for _, entity := range alert.GetInformedEntity() {
		if id := entity.GetRouteId(); id != "" {
			lineRefs[id] = true
		}
		if id := entity.GetStopId(); id != "" {
			stopRefs[id] = true
		}
	}

	// the header and the description become two messages, a short and a
	// long one
	messages := translatedMessages(alert.GetHeaderText(), ShortMessage)
	messages = append(messages, translatedMessages(alert.GetDescriptionText(), LongMessage)...)

	return GeneralMessageStructure{
		LineRef:      sortedKeys(lineRefs),
		StopPointRef: sortedKeys(stopRefs),
		Message:      messages,
	}
}

// translatedMessages creates one message per translation.
func translatedMessages(ts *gtfsrt.TranslatedString, messageType string) []Message {
	var messages []Message
	for _, translation := range ts.GetTranslation() {
		msgType := messageType
		msg := Message{
			MessageType: &msgType,
			MessageText: NaturalLangString{Value: translation.GetText()},
		}
		if lang := translation.GetLanguage(); lang != "" {
			msg.MessageText.Lang = &lang
		}
		messages = append(messages, msg)
	}
	if messages == nil {
		return []Message{}
	}
	return messages
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
