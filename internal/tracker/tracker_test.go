package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"dispatch-dashboard/internal/model"
)

func vehicleEntity(entityID, vehicleID, label string, lat, lon float32) *gtfs.FeedEntity {
	vd := &gtfs.VehicleDescriptor{}
	if vehicleID != "" {
		vd.Id = proto.String(vehicleID)
	}
	if label != "" {
		vd.Label = proto.String(label)
	}
	return &gtfs.FeedEntity{
		Id: proto.String(entityID),
		Vehicle: &gtfs.VehiclePosition{
			Vehicle:   vd,
			Position:  &gtfs.Position{Latitude: proto.Float32(lat), Longitude: proto.Float32(lon)},
			Timestamp: proto.Uint64(1700000000),
		},
	}
}

func TestGtfsRtSourceFetch(t *testing.T) {
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")},
		Entity: []*gtfs.FeedEntity{
			vehicleEntity("1", "T1", "", 58.1, 56.3),
			vehicleEntity("2", "", "LBL-2", 58.2, 56.4),
			vehicleEntity("3", "T3", "", 0, 0),
			{Id: proto.String("4")},
		},
	}
	raw, err := proto.Marshal(feed)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write(raw)
	}))
	defer srv.Close()

	fixes, err := NewGtfsRtSource(srv.URL, time.Second).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(fixes) != 2 {
		t.Fatalf("fixes = %+v", fixes)
	}
	want := model.Position{float64(float32(58.1)), float64(float32(56.3))}
	if fixes[0].TrackerID != "T1" || fixes[0].Position != want {
		t.Fatalf("first = %+v", fixes[0])
	}
	if fixes[1].TrackerID != "LBL-2" {
		t.Fatalf("label fallback = %+v", fixes[1])
	}
	if !fixes[0].Timestamp.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("timestamp = %v", fixes[0].Timestamp)
	}
}

func TestFeedHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewGtfsRtSource(srv.URL, time.Second).Fetch(context.Background())
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("err = %v", err)
	}
	_, err = NewSiriJSONSource(srv.URL, time.Second).Fetch(context.Background())
	if err == nil || !strings.Contains(err.Error(), "siri json") {
		t.Fatalf("err = %v", err)
	}
}

func TestGtfsRtRejectsGarbage(t *testing.T) {
	if _, err := DecodeGtfsRt([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Fatal("expected decode error")
	}
}

const siriBody = `{
  "Siri": {
    "ServiceDelivery": {
      "VehicleMonitoringDelivery": [{
        "VehicleActivity": [
          {
            "RecordedAtTime": "2026-03-04T10:00:00+03:00",
            "MonitoredVehicleJourney": {
              "VehicleRef": "T7",
              "VehicleLocation": {"Latitude": 58.01, "Longitude": 56.25}
            }
          },
          {
            "MonitoredVehicleJourney": {
              "VehicleRef": {"value": "T8"},
              "VehicleLocation": {"Latitude": "58.02", "Longitude": "56.26"}
            }
          },
          {"MonitoredVehicleJourney": {"VehicleLocation": {"Latitude": 1, "Longitude": 1}}},
          {"MonitoredVehicleJourney": {"VehicleRef": "T9"}}
        ]
      }]
    }
  }
}`

func TestSiriJSONSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(siriBody))
	}))
	defer srv.Close()

	fixes, err := NewSiriJSONSource(srv.URL, time.Second).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(fixes) != 2 {
		t.Fatalf("fixes = %+v", fixes)
	}
	if fixes[0].TrackerID != "T7" || fixes[0].Position != (model.Position{58.01, 56.25}) {
		t.Fatalf("first = %+v", fixes[0])
	}
	if want := time.Date(2026, 3, 4, 7, 0, 0, 0, time.UTC); !fixes[0].Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v", fixes[0].Timestamp)
	}
	if fixes[1].TrackerID != "T8" || fixes[1].Position != (model.Position{58.02, 56.26}) {
		t.Fatalf("second = %+v", fixes[1])
	}
}

func TestDecodeSiriJSONWithoutEnvelope(t *testing.T) {
	var root map[string]any
	body := `{"ServiceDelivery":{"VehicleMonitoringDelivery":{"VehicleActivity":[{"MonitoredVehicleJourney":{"VehicleRef":"T1","VehicleLocation":{"Latitude":58,"Longitude":56}}}]}}}`
	if err := json.Unmarshal([]byte(body), &root); err != nil {
		t.Fatal(err)
	}
	if fixes := DecodeSiriJSON(root); len(fixes) != 1 || fixes[0].TrackerID != "T1" {
		t.Fatalf("fixes = %+v", fixes)
	}
}

func TestIndexLaterWins(t *testing.T) {
	idx := Index([]Fix{
		{TrackerID: "T1", Position: model.Position{1, 1}},
		{TrackerID: "T1", Position: model.Position{2, 2}},
	})
	if len(idx) != 1 || idx["T1"].Position != (model.Position{2, 2}) {
		t.Fatalf("idx = %+v", idx)
	}
}

const siriXMLBody = `<?xml version="1.0" encoding="UTF-8"?>
<Siri xmlns="http://www.siri.org.uk/siri" version="2.0">
  <ServiceDelivery>
    <VehicleMonitoringDelivery>
      <VehicleActivity>
        <RecordedAtTime>2026-03-04T07:00:00Z</RecordedAtTime>
        <MonitoredVehicleJourney>
          <VehicleRef> T7 </VehicleRef>
          <VehicleLocation><Longitude>56.25</Longitude><Latitude>58.01</Latitude></VehicleLocation>
        </MonitoredVehicleJourney>
      </VehicleActivity>
      <VehicleActivity>
        <MonitoredVehicleJourney>
          <VehicleRef>T0</VehicleRef>
          <VehicleLocation><Longitude>0</Longitude><Latitude>0</Latitude></VehicleLocation>
        </MonitoredVehicleJourney>
      </VehicleActivity>
      <VehicleActivity>
        <MonitoredVehicleJourney>
          <VehicleLocation><Longitude>56.3</Longitude><Latitude>58.1</Latitude></VehicleLocation>
        </MonitoredVehicleJourney>
      </VehicleActivity>
      <VehicleActivity>
        <MonitoredVehicleJourney>
          <VehicleRef>T8</VehicleRef>
          <VehicleLocation><Longitude>56.26</Longitude><Latitude>north</Latitude></VehicleLocation>
        </MonitoredVehicleJourney>
      </VehicleActivity>
    </VehicleMonitoringDelivery>
  </ServiceDelivery>
</Siri>`

func TestSiriXMLSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(siriXMLBody))
	}))
	defer srv.Close()

	fixes, err := NewSiriXMLSource(srv.URL, time.Second).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(fixes) != 1 {
		t.Fatalf("fixes = %+v", fixes)
	}
	if fixes[0].TrackerID != "T7" || fixes[0].Position != (model.Position{58.01, 56.25}) {
		t.Fatalf("fix = %+v", fixes[0])
	}
	if want := time.Date(2026, 3, 4, 7, 0, 0, 0, time.UTC); !fixes[0].Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v", fixes[0].Timestamp)
	}
}

func TestDecodeSiriXMLPrefixedWithoutEnvelope(t *testing.T) {
	body := `<s:ServiceDelivery xmlns:s="http://www.siri.org.uk/siri"><s:VehicleMonitoringDelivery>
<s:VehicleActivity><s:VehicleRef>T1</s:VehicleRef><s:MonitoredVehicleJourney>
<s:VehicleLocation><s:Latitude>58</s:Latitude><s:Longitude>56</s:Longitude></s:VehicleLocation>
</s:MonitoredVehicleJourney></s:VehicleActivity></s:VehicleMonitoringDelivery></s:ServiceDelivery>`
	fixes, err := DecodeSiriXML(strings.NewReader(body))
	if err != nil {
		t.Fatalf("DecodeSiriXML: %v", err)
	}
	if len(fixes) != 1 || fixes[0].TrackerID != "T1" || fixes[0].Position != (model.Position{58, 56}) {
		t.Fatalf("fixes = %+v", fixes)
	}
}

func TestDecodeSiriXMLRejectsMalformed(t *testing.T) {
	if _, err := DecodeSiriXML(strings.NewReader(`<Siri><ServiceDelivery></Siri>`)); err == nil {
		t.Fatal("expected syntax error")
	}
}
