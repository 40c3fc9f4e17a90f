// Package protocol defines the Meffec wire envelope and its message variants.
// Both the relay server and the connecting peers decode frames through this
// package, so every frame is classified exactly once at the boundary.
package protocol

import (
	"encoding/json"
)

// MessageType is the top-level "type" tag of an envelope.
type MessageType string

const (
	MsgAuthentication MessageType = "authentication"
	MsgInformation    MessageType = "information"
	MsgDeviceAction   MessageType = "device_action"
	MsgPlayEffect     MessageType = "play_effect"
	MsgHeartbeat      MessageType = "heartbeat"
)

// InformationType is the nested tag inside an information envelope.
type InformationType string

const (
	InfoAvailableEffects InformationType = "available_effects"
	InfoConnectedClients InformationType = "connected_clients"
)

// Envelope is the unit exchanged over a connection, one JSON object per frame.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Role is the identity a session claims when it authenticates.
type Role string

const (
	RoleUnassigned Role = "unassigned"
	RoleController Role = "controller"
	RoleApp        Role = "app"
	RoleDevice     Role = "device"
)

// ParseRole maps a wire role name to a Role. Unknown names report false.
func ParseRole(name string) (Role, bool) {
	switch Role(name) {
	case RoleController, RoleApp, RoleDevice:
		return Role(name), true
	}
	return RoleUnassigned, false
}

// Effect describes one triggerable effect as shown to apps.
type Effect struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Category groups effects under a display name.
type Category struct {
	Name    string   `json:"name"`
	Effects []Effect `json:"effects"`
}

// Catalog is the ordered set of effect categories. It is replaced wholesale,
// never merged.
type Catalog []Category

// Clone returns a deep copy so callers can hand the catalog to other
// goroutines without sharing backing arrays.
func (c Catalog) Clone() Catalog {
	out := make(Catalog, len(c))
	for i, cat := range c {
		effects := make([]Effect, len(cat.Effects))
		copy(effects, cat.Effects)
		out[i] = Category{Name: cat.Name, Effects: effects}
	}
	return out
}

// EffectCount returns the number of effects across all categories.
func (c Catalog) EffectCount() int {
	n := 0
	for _, cat := range c {
		n += len(cat.Effects)
	}
	return n
}

// RosterEntry is what the controller learns about a connected session.
type RosterEntry struct {
	Type Role   `json:"type"`
	Name string `json:"name"`
}

// Roster is the ordered list of live sessions.
type Roster []RosterEntry
