package simbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/veghadev/fdrl-signals/go-controller/internal/sim"
)

// fakeTransport answers every round trip with a canned result or error code,
// echoing the request id, and records what was sent.
type fakeTransport struct {
	result    string // raw JSON for the result field
	errCode   string // non-empty: answer with this bridge error code
	errMsg    string
	mangleID  bool // answer with a wrong reply id
	lastOp    string
	lastParam json.RawMessage
	closed    bool
}

func (f *fakeTransport) RoundTrip(ctx context.Context, body []byte) ([]byte, error) {
	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	f.lastOp = req.Op
	f.lastParam = req.Params

	id := req.ID
	if f.mangleID {
		id = "not-" + id
	}
	if f.errCode != "" {
		return []byte(fmt.Sprintf(`{"id":%q,"error":{"code":%q,"message":%q}}`, id, f.errCode, f.errMsg)), nil
	}
	result := f.result
	if result == "" {
		result = "{}"
	}
	return []byte(fmt.Sprintf(`{"id":%q,"result":%s}`, id, result)), nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func TestReadLaneMetricsDecodesResult(t *testing.T) {
	ft := &fakeTransport{result: `{"halted":3,"waiting_time":12.5,"vehicle_count":7,"mean_speed":4.25,"occupancy":0.5}`}
	c := NewClient(ft, 0)

	m, err := c.ReadLaneMetrics(context.Background(), "a_0")
	if err != nil {
		t.Fatalf("ReadLaneMetrics: %v", err)
	}
	if m.HaltedCount != 3 || m.WaitingTime != 12.5 || m.VehicleCount != 7 || m.MeanSpeed != 4.25 || m.Occupancy != 0.5 {
		t.Fatalf("decoded metrics wrong: %+v", m)
	}
	if ft.lastOp != "lane.metrics" {
		t.Fatalf("op %q, want lane.metrics", ft.lastOp)
	}
	if !strings.Contains(string(ft.lastParam), `"a_0"`) {
		t.Fatalf("params %s missing lane id", ft.lastParam)
	}
}

func TestReadingUnavailableMapsToTypedError(t *testing.T) {
	ft := &fakeTransport{errCode: "reading_unavailable", errMsg: "lane warming up"}
	c := NewClient(ft, 0)

	_, err := c.ReadLaneMetrics(context.Background(), "a_0")
	if !sim.IsReadingUnavailable(err) {
		t.Fatalf("expected typed reading-unavailable error, got %v", err)
	}
	if !strings.Contains(err.Error(), "a_0") {
		t.Fatalf("error %q missing lane id", err)
	}
}

func TestCommandRejectedMapsToTypedError(t *testing.T) {
	ft := &fakeTransport{errCode: "command_rejected", errMsg: "bad state length"}
	c := NewClient(ft, 0)

	err := c.SetSignalState(context.Background(), "J1", "GGrr")
	if !sim.IsCommandRejected(err) {
		t.Fatalf("expected typed command-rejected error, got %v", err)
	}
	for _, want := range []string{"J1", "GGrr", "bad state length"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}

func TestUnknownErrorCodePropagates(t *testing.T) {
	ft := &fakeTransport{errCode: "internal", errMsg: "boom"}
	c := NewClient(ft, 0)

	err := c.AdvanceOneStep(context.Background())
	if err == nil || sim.IsReadingUnavailable(err) || sim.IsCommandRejected(err) {
		t.Fatalf("unknown code must stay a plain error, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("error %q missing bridge message", err)
	}
}

func TestReplyIDMismatchFails(t *testing.T) {
	ft := &fakeTransport{result: `{"time":5}`, mangleID: true}
	c := NewClient(ft, 0)

	if _, err := c.SimulationTime(context.Background()); err == nil {
		t.Fatal("expected error for mismatched reply id")
	}
}

func TestControlledLinksOrderPreserved(t *testing.T) {
	ft := &fakeTransport{result: `[
		{"incoming_lane":"n_0","outgoing_lane":"o_0"},
		{"incoming_lane":"s_0","outgoing_lane":"o_1"}
	]`}
	c := NewClient(ft, 0)

	links, err := c.ControlledLinks(context.Background(), "J1")
	if err != nil {
		t.Fatalf("ControlledLinks: %v", err)
	}
	if len(links) != 2 || links[0].IncomingLane != "n_0" || links[1].IncomingLane != "s_0" {
		t.Fatalf("links wrong: %+v", links)
	}
}

func TestListJunctions(t *testing.T) {
	ft := &fakeTransport{result: `{"junctions":["J1","J2"]}`}
	c := NewClient(ft, 0)

	ids, err := c.ListJunctions(context.Background())
	if err != nil {
		t.Fatalf("ListJunctions: %v", err)
	}
	if len(ids) != 2 || ids[0] != "J1" || ids[1] != "J2" {
		t.Fatalf("junctions wrong: %v", ids)
	}
}

func TestReadLanePresentVehicles(t *testing.T) {
	ft := &fakeTransport{result: `[{"id":"v1","type_id":"DEFAULT_AMBULANCE","accumulated_wait":9.5}]`}
	c := NewClient(ft, 0)

	vehicles, err := c.ReadLanePresentVehicles(context.Background(), "a_0")
	if err != nil {
		t.Fatalf("ReadLanePresentVehicles: %v", err)
	}
	if len(vehicles) != 1 || vehicles[0].TypeID != "DEFAULT_AMBULANCE" || vehicles[0].AccumulatedWait != 9.5 {
		t.Fatalf("vehicles wrong: %+v", vehicles)
	}
}

func TestSimulationTime(t *testing.T) {
	ft := &fakeTransport{result: `{"time":42.5}`}
	c := NewClient(ft, 0)

	now, err := c.SimulationTime(context.Background())
	if err != nil {
		t.Fatalf("SimulationTime: %v", err)
	}
	if now != 42.5 {
		t.Fatalf("time %f, want 42.5", now)
	}
	if ft.lastOp != "sim.time" {
		t.Fatalf("op %q, want sim.time", ft.lastOp)
	}
}

func TestCloseReleasesTransport(t *testing.T) {
	ft := &fakeTransport{}
	c := NewClient(ft, 0)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !ft.closed {
		t.Fatal("transport not closed")
	}
}
