package decisions

import "time"

// #region reason

// Reason categorizes why a signal decision was made.
type Reason string

const (
	ReasonQValue   Reason = "q_value"           // learned switch to a better edge
	ReasonContinue Reason = "continue"          // learned choice was to stay
	ReasonMaxRed   Reason = "max_red_safety"    // starvation override fired
	ReasonMaxGreen Reason = "max_green_safety"  // max green duration exceeded
	ReasonPriority Reason = "priority_override" // priority vehicle forced the edge
)

// #endregion reason

// #region record

// Record is one logged signal decision.
type Record struct {
	JunctionID   string
	Episode      int
	SimTime      float64
	ChosenEdge   string
	Alternatives []string
	Reason       Reason
	QValue       float32
	Epsilon      float32
	Switched     bool
	CreatedAt    time.Time
}

// Summary aggregates decisions of one episode.
type Summary struct {
	Total    int
	Switches int
	ByReason map[Reason]int
}

// #endregion record
