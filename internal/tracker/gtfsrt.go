package tracker

import (
	"context"
	"io"
	"net/http"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"dispatch-dashboard/internal/model"
)

// GtfsRtSource reads a GTFS-Realtime VehiclePositions feed. The vehicle
// descriptor id (or its label when the id is empty) is the tracker id.
type GtfsRtSource struct {
	httpFeed
}

func NewGtfsRtSource(url string, timeout time.Duration) *GtfsRtSource {
	return &GtfsRtSource{httpFeed{url: url, httpClient: &http.Client{Timeout: timeout}, kind: "gtfs-rt"}}
}

func (s *GtfsRtSource) Fetch(ctx context.Context) ([]Fix, error) {
	body, err := s.get(ctx)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	return DecodeGtfsRt(raw)
}

// DecodeGtfsRt extracts fixes from a serialized FeedMessage.
func DecodeGtfsRt(raw []byte) ([]Fix, error) {
	var feed gtfs.FeedMessage
	if err := proto.Unmarshal(raw, &feed); err != nil {
		return nil, err
	}
	fixes := make([]Fix, 0, len(feed.Entity))
	for _, ent := range feed.Entity {
		vp := ent.GetVehicle()
		if vp == nil || vp.GetVehicle() == nil || vp.GetPosition() == nil {
			continue
		}
		id := vp.GetVehicle().GetId()
		if id == "" {
			id = vp.GetVehicle().GetLabel()
		}
		lat := float64(vp.GetPosition().GetLatitude())
		lon := float64(vp.GetPosition().GetLongitude())
		if !validFix(id, lat, lon) {
			continue
		}
		fix := Fix{TrackerID: id, Position: model.Position{lat, lon}}
		if ts := vp.GetTimestamp(); ts > 0 {
			fix.Timestamp = time.Unix(int64(ts), 0).UTC()
		}
		fixes = append(fixes, fix)
	}
	return fixes, nil
}
