package observer

import (
	"trafficsim.ai/internal/sim/simtime"
	"trafficsim.ai/internal/sim/world"
)

// Version is the observer stream protocol version.
const Version = "1"

const (
	TypeHello = "HELLO"
	TypeSpeed = "SPEED"
	TypeTick  = "TICK"
)

// HelloMsg is the first frame on every connection.
type HelloMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	RunID           string       `json:"run_id"`
	WorldID         string       `json:"world_id"`
	MapName         string       `json:"map_name,omitempty"`
	Scenario        string       `json:"scenario,omitempty"`
	Tick            simtime.Tick `json:"tick"`
}

// SpeedMsg mirrors a world speed report.
type SpeedMsg struct {
	Type    string       `json:"type"`
	Tick    simtime.Tick `json:"tick"`
	Ratio   float64      `json:"ratio"`
	Summary string       `json:"summary"`
}

// TickMsg carries one stepped tick.
type TickMsg struct {
	Type   string        `json:"type"`
	Tick   simtime.Tick  `json:"tick"`
	Digest string        `json:"digest"`
	Events []world.Event `json:"events,omitempty"`
}
