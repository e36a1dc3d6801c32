package mutation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"dispatch-dashboard/internal/model"
	"dispatch-dashboard/internal/tracker"
)

// movingFixes drifts tracker T1 north by 0.01 on every fetch.
type movingFixes struct {
	calls atomic.Int32
}

func (m *movingFixes) Fetch(context.Context) ([]tracker.Fix, error) {
	n := m.calls.Add(1)
	return []tracker.Fix{{TrackerID: "T1", Position: model.Position{58 + float64(n)/100, 56}}}, nil
}

func TestPollPositionsFollowsTracker(t *testing.T) {
	b := seeded()
	b.cars = []any{map[string]any{"id": "c1", "regNum": "A123", "gpsTracker": "T1"}}
	src := &movingFixes{}
	c, st := newLoaded(t, b, WithTrackerSource(src))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.PollPositions(ctx, 5*time.Millisecond, time.Second)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for src.calls.Load() < 4 {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("only %d fetches", src.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	c1, _ := st.Car("c1")
	if c1.PositionSource != model.PositionTracker || c1.Position[0] <= 58.02 {
		t.Fatalf("c1 did not follow the tracker: %+v", c1)
	}
}

func TestPollPositionsWithoutSourceReturns(t *testing.T) {
	c, _ := newLoaded(t, seeded())
	done := make(chan struct{})
	go func() {
		c.PollPositions(context.Background(), time.Millisecond, 0)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PollPositions blocked without a tracker source")
	}
}

func TestNextInterval(t *testing.T) {
	if got := nextInterval(2*time.Second, 10*time.Second); got != 10*time.Second {
		t.Fatalf("fast fetch interval = %v", got)
	}
	if got := nextInterval(30*time.Second, 10*time.Second); got != 15*time.Second {
		t.Fatalf("slow fetch interval = %v", got)
	}
}
