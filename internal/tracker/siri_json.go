package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"dispatch-dashboard/internal/model"
	"dispatch-dashboard/internal/records"
)

// SiriJSONSource reads a SIRI VehicleMonitoring JSON feed; VehicleRef is the
// tracker id.
type SiriJSONSource struct {
	httpFeed
}

func NewSiriJSONSource(url string, timeout time.Duration) *SiriJSONSource {
	return &SiriJSONSource{httpFeed{url: url, httpClient: &http.Client{Timeout: timeout}, kind: "siri json"}}
}

func (s *SiriJSONSource) Fetch(ctx context.Context) ([]Fix, error) {
	body, err := s.get(ctx)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	var root map[string]any
	if err := json.NewDecoder(body).Decode(&root); err != nil {
		return nil, err
	}
	return DecodeSiriJSON(root), nil
}

var (
	vehicleRefField = records.Field{Name: "VehicleRef", Aliases: []string{
		"VehicleRef", "VehicleRef.value", "FramedVehicleJourneyRef.DatedVehicleJourneyRef",
	}}
	siriLatField = records.Field{Name: "Latitude", Aliases: []string{"VehicleLocation.Latitude"}}
	siriLonField = records.Field{Name: "Longitude", Aliases: []string{"VehicleLocation.Longitude"}}
	recordedAt   = records.Field{Name: "RecordedAtTime", Aliases: []string{"RecordedAtTime"}}
)

// DecodeSiriJSON walks Siri?.ServiceDelivery.VehicleMonitoringDelivery[].VehicleActivity[].
func DecodeSiriJSON(root map[string]any) []Fix {
	if siri, ok := root["Siri"].(map[string]any); ok && siri != nil {
		root = siri
	}
	sd, _ := root["ServiceDelivery"].(map[string]any)
	var fixes []Fix
	for _, vmd := range list(sd["VehicleMonitoringDelivery"]) {
		for _, va := range list(vmd["VehicleActivity"]) {
			mvj, _ := va["MonitoredVehicleJourney"].(map[string]any)
			if mvj == nil {
				continue
			}
			id := records.String(mvj, vehicleRefField)
			lat, _ := records.Float(mvj, siriLatField)
			lon, _ := records.Float(mvj, siriLonField)
			if !validFix(id, lat, lon) {
				continue
			}
			fix := Fix{TrackerID: id, Position: model.Position{lat, lon}}
			if ts, err := time.Parse(time.RFC3339, records.String(va, recordedAt)); err == nil {
				fix.Timestamp = ts.UTC()
			}
			fixes = append(fixes, fix)
		}
	}
	return fixes
}

// list accepts the array form and the single-object form some producers
// emit for one-element SIRI collections.
func list(v any) []records.Record {
	if m, ok := v.(map[string]any); ok && m != nil {
		return []records.Record{m}
	}
	return records.Unwrap(v)
}
