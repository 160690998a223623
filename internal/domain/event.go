package domain

import "time"

// EventType enumerates lifecycle events published to the hub event log.
type EventType string

const (
	EventSignalGenerated EventType = "SignalGenerated"
	EventDecisionMade    EventType = "DecisionMade"
	EventOrderSubmitted  EventType = "OrderSubmitted"
	EventFill            EventType = "Fill"
	EventPositionOpened  EventType = "PositionOpened"
	EventPositionUpdated EventType = "PositionUpdated"
	EventPositionClosed  EventType = "PositionClosed"
	EventEngineHalted    EventType = "EngineHalted"
	EventEngineResumed   EventType = "EngineResumed"
	EventComponentCrash  EventType = "ComponentCrashed"
)

// Severity grades an event for downstream consumers.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one entry in the append-only lifecycle log consumed by the host
// API. Payload values are already stringified for transport.
type Event struct {
	ID        string
	Timestamp time.Time
	Type      EventType
	Component string
	Severity  Severity
	Payload   map[string]string
}

// EngineState is the coarse run state persisted under bot:status.
type EngineState string

const (
	EngineStopped EngineState = "stopped"
	EngineRunning EngineState = "running"
	EngineHalted  EngineState = "halted"
)

// BotStatus is the engine state snapshot persisted under bot:status.
type BotStatus struct {
	State         EngineState
	DryRun        bool
	PaperTrading  bool
	StartedAt     time.Time
	LastCycleAt   time.Time
	OpenPositions int
	HaltReason    string
}

// DashboardStats is the counters snapshot persisted under dashboard:stats.
type DashboardStats struct {
	SignalsGenerated  int
	DecisionsAccepted int
	DecisionsRejected int
	OrdersSubmitted   int
	Fills             int
	PositionsClosed   int
	RealizedPnL       float64
}

// RealtimeMetrics is the cycle/latency snapshot persisted under
// realtime:metrics.
type RealtimeMetrics struct {
	CycleCount     int64
	LastCycleMs    int64
	AvgCycleMs     float64
	ViewsPublished int64
	EventsDropped  int64
	UpdatedAt      time.Time
}
