package tracker

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dispatch-dashboard/internal/model"
)

// SiriXMLSource reads a SIRI VehicleMonitoring XML feed; VehicleRef is the
// tracker id.
type SiriXMLSource struct {
	httpFeed
}

func NewSiriXMLSource(url string, timeout time.Duration) *SiriXMLSource {
	return &SiriXMLSource{httpFeed{url: url, httpClient: &http.Client{Timeout: timeout}, kind: "siri xml"}}
}

func (s *SiriXMLSource) Fetch(ctx context.Context) ([]Fix, error) {
	body, err := s.get(ctx)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return DecodeSiriXML(body)
}

// siriActivity accumulates the text of one VehicleActivity.
type siriActivity struct {
	ref, lat, lon, recorded string
}

func (a siriActivity) fix() (Fix, bool) {
	lat, err := strconv.ParseFloat(a.lat, 64)
	if err != nil {
		return Fix{}, false
	}
	lon, err := strconv.ParseFloat(a.lon, 64)
	if err != nil || !validFix(a.ref, lat, lon) {
		return Fix{}, false
	}
	fix := Fix{TrackerID: a.ref, Position: model.Position{lat, lon}}
	if ts, err := time.Parse(time.RFC3339, a.recorded); err == nil {
		fix.Timestamp = ts.UTC()
	}
	return fix, true
}

// DecodeSiriXML streams VehicleActivity elements out of a SIRI VM document.
// Element names are matched by local name, so any namespace prefix works,
// and the Siri envelope is optional.
func DecodeSiriXML(r io.Reader) ([]Fix, error) {
	dec := xml.NewDecoder(r)
	var (
		fixes []Fix
		cur   *siriActivity
		stack []string
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return fixes, nil
		}
		if err != nil {
			return nil, err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			name := el.Name.Local
			if name == "VehicleActivity" {
				cur = &siriActivity{}
			} else if cur != nil {
				if dst := cur.field(name, top(stack)); dst != nil {
					var v string
					if err := dec.DecodeElement(&v, &el); err != nil {
						return nil, err
					}
					*dst = strings.TrimSpace(v)
					continue
				}
			}
			stack = append(stack, name)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if el.Name.Local == "VehicleActivity" && cur != nil {
				if fix, ok := cur.fix(); ok {
					fixes = append(fixes, fix)
				}
				cur = nil
			}
		}
	}
}

// field returns where the text of element name under parent belongs, or nil.
func (a *siriActivity) field(name, parent string) *string {
	switch {
	case name == "VehicleRef" && (parent == "MonitoredVehicleJourney" || parent == "VehicleActivity"):
		return &a.ref
	case name == "Latitude" && parent == "VehicleLocation":
		return &a.lat
	case name == "Longitude" && parent == "VehicleLocation":
		return &a.lon
	case name == "RecordedAtTime" && parent == "VehicleActivity":
		return &a.recorded
	}
	return nil
}

func top(stack []string) string {
	if len(stack) == 0 {
		return ""
	}
	return stack[len(stack)-1]
}
