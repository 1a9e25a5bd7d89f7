package simbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/veghadev/fdrl-signals/go-controller/internal/sim"
)

// #region protocol

// Bridge operation names.
const (
	opLaneMetrics  = "lane.metrics"
	opLaneVehicles = "lane.vehicles"
	opLaneEdge     = "lane.edge"
	opTLSLinks     = "tls.links"
	opTLSSetState  = "tls.set_state"
	opTLSGetState  = "tls.get_state"
	opTLSList      = "tls.list"
	opSimStep      = "sim.step"
	opSimTime      = "sim.time"
)

// Bridge error codes mapped to typed sim errors.
const (
	codeReadingUnavailable = "reading_unavailable"
	codeCommandRejected    = "command_rejected"
)

type request struct {
	ID     string          `json:"id"`
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params,omitempty"`
}

type response struct {
	ID     string          `json:"id"`
	Error  *bridgeError    `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

type bridgeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// #endregion protocol

// #region client

// Client talks the bridge protocol and satisfies sim.Simulator.
type Client struct {
	transport      Transport
	requestTimeout float64
}

var _ sim.Simulator = (*Client)(nil)

// NewClient wraps an established transport. requestTimeout bounds each round
// trip in seconds; zero disables the bound.
func NewClient(t Transport, requestTimeout float64) *Client {
	return &Client{transport: t, requestTimeout: requestTimeout}
}

// Dial connects to the bridge and returns a ready client.
func Dial(ctx context.Context, url string, requestTimeout float64) (*Client, error) {
	t, err := DialBridge(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewClient(t, requestTimeout), nil
}

// Close releases the underlying transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

// errSubject carries the identifiers a typed error needs when the bridge
// answers with a domain error code.
type errSubject struct {
	lane     string
	junction string
	state    string
}

// call performs one request/response exchange and decodes the result into
// out (which may be nil for commands with empty results). Domain error codes
// are translated to the typed sim errors callers branch on.
func (c *Client) call(ctx context.Context, op string, params interface{}, out interface{}, subject errSubject) error {
	ctx, cancel := withTimeout(ctx, c.requestTimeout)
	defer cancel()

	req := request{ID: uuid.New().String(), Op: op}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("%s: marshal params: %w", op, err)
		}
		req.Params = raw
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", op, err)
	}

	reply, err := c.transport.RoundTrip(ctx, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var resp response
	if err := json.Unmarshal(reply, &resp); err != nil {
		return fmt.Errorf("%s: parse reply: %w", op, err)
	}
	if resp.ID != req.ID {
		return fmt.Errorf("%s: reply id %s for request %s", op, resp.ID, req.ID)
	}
	if resp.Error != nil {
		switch resp.Error.Code {
		case codeReadingUnavailable:
			return &sim.ReadingUnavailableError{Lane: subject.lane}
		case codeCommandRejected:
			return &sim.CommandRejectedError{Junction: subject.junction, State: subject.state, Reason: resp.Error.Message}
		default:
			return fmt.Errorf("%s: %s: %s", op, resp.Error.Code, resp.Error.Message)
		}
	}
	if out != nil {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("%s: parse result: %w", op, err)
		}
	}
	return nil
}

// #endregion client

// #region simulator-impl

type laneParams struct {
	Lane string `json:"lane"`
}

type laneMetricsResult struct {
	Halted       int     `json:"halted"`
	WaitingTime  float32 `json:"waiting_time"`
	VehicleCount int     `json:"vehicle_count"`
	MeanSpeed    float32 `json:"mean_speed"`
	Occupancy    float32 `json:"occupancy"`
}

// ReadLaneMetrics fetches one lane's current readings.
func (c *Client) ReadLaneMetrics(ctx context.Context, laneID string) (sim.LaneMetrics, error) {
	var res laneMetricsResult
	err := c.call(ctx, opLaneMetrics, laneParams{Lane: laneID}, &res, errSubject{lane: laneID})
	if err != nil {
		return sim.LaneMetrics{}, err
	}
	return sim.LaneMetrics{
		HaltedCount:  res.Halted,
		WaitingTime:  res.WaitingTime,
		VehicleCount: res.VehicleCount,
		MeanSpeed:    res.MeanSpeed,
		Occupancy:    res.Occupancy,
	}, nil
}

type vehicleResult struct {
	ID              string  `json:"id"`
	TypeID          string  `json:"type_id"`
	AccumulatedWait float32 `json:"accumulated_wait"`
}

// ReadLanePresentVehicles lists the vehicles currently on a lane.
func (c *Client) ReadLanePresentVehicles(ctx context.Context, laneID string) ([]sim.Vehicle, error) {
	var res []vehicleResult
	err := c.call(ctx, opLaneVehicles, laneParams{Lane: laneID}, &res, errSubject{lane: laneID})
	if err != nil {
		return nil, err
	}
	vehicles := make([]sim.Vehicle, len(res))
	for i, v := range res {
		vehicles[i] = sim.Vehicle{ID: v.ID, TypeID: v.TypeID, AccumulatedWait: v.AccumulatedWait}
	}
	return vehicles, nil
}

// LaneEdgeID resolves a lane to its parent edge.
func (c *Client) LaneEdgeID(ctx context.Context, laneID string) (string, error) {
	var res struct {
		Edge string `json:"edge"`
	}
	if err := c.call(ctx, opLaneEdge, laneParams{Lane: laneID}, &res, errSubject{lane: laneID}); err != nil {
		return "", err
	}
	return res.Edge, nil
}

type junctionParams struct {
	Junction string `json:"junction"`
}

type linkResult struct {
	IncomingLane string `json:"incoming_lane"`
	OutgoingLane string `json:"outgoing_lane"`
}

// ControlledLinks returns a junction's controlled links in signal index
// order.
func (c *Client) ControlledLinks(ctx context.Context, junctionID string) ([]sim.Link, error) {
	var res []linkResult
	if err := c.call(ctx, opTLSLinks, junctionParams{Junction: junctionID}, &res, errSubject{junction: junctionID}); err != nil {
		return nil, err
	}
	links := make([]sim.Link, len(res))
	for i, l := range res {
		links[i] = sim.Link{IncomingLane: l.IncomingLane, OutgoingLane: l.OutgoingLane}
	}
	return links, nil
}

type setStateParams struct {
	Junction string `json:"junction"`
	State    string `json:"state"`
}

// SetSignalState commands a signal bit-string on a junction.
func (c *Client) SetSignalState(ctx context.Context, junctionID, state string) error {
	return c.call(ctx, opTLSSetState, setStateParams{Junction: junctionID, State: state}, nil, errSubject{junction: junctionID, state: state})
}

// GetSignalState returns a junction's current signal bit-string.
func (c *Client) GetSignalState(ctx context.Context, junctionID string) (string, error) {
	var res struct {
		State string `json:"state"`
	}
	if err := c.call(ctx, opTLSGetState, junctionParams{Junction: junctionID}, &res, errSubject{junction: junctionID}); err != nil {
		return "", err
	}
	return res.State, nil
}

// ListJunctions returns every signalized junction id.
func (c *Client) ListJunctions(ctx context.Context) ([]string, error) {
	var res struct {
		Junctions []string `json:"junctions"`
	}
	if err := c.call(ctx, opTLSList, nil, &res, errSubject{}); err != nil {
		return nil, err
	}
	return res.Junctions, nil
}

// AdvanceOneStep advances the simulation by one step.
func (c *Client) AdvanceOneStep(ctx context.Context) error {
	return c.call(ctx, opSimStep, nil, nil, errSubject{})
}

// SimulationTime returns the current simulation time in seconds.
func (c *Client) SimulationTime(ctx context.Context) (float64, error) {
	var res struct {
		Time float64 `json:"time"`
	}
	if err := c.call(ctx, opSimTime, nil, &res, errSubject{}); err != nil {
		return 0, err
	}
	return res.Time, nil
}

// #endregion simulator-impl
