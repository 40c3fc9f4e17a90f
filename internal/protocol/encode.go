package protocol

import (
	"encoding/json"
	"time"
)

// Encode marshals data under the given envelope type.
func Encode(t MessageType, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: t, Data: raw})
}

type nested struct {
	Type InformationType `json:"type"`
	Data any             `json:"data"`
}

// AuthenticationFrame identifies the sender as role with a display name.
func AuthenticationFrame(role Role, name string) ([]byte, error) {
	return Encode(MsgAuthentication, map[string]string{
		"type": string(role),
		"name": name,
	})
}

// AvailableEffectsFrame wraps a catalog. A nil catalog is sent as [].
func AvailableEffectsFrame(c Catalog) ([]byte, error) {
	if c == nil {
		c = Catalog{}
	}
	return Encode(MsgInformation, nested{Type: InfoAvailableEffects, Data: c})
}

// ConnectedClientsFrame wraps a roster. A nil roster is sent as [].
func ConnectedClientsFrame(r Roster) ([]byte, error) {
	if r == nil {
		r = Roster{}
	}
	return Encode(MsgInformation, nested{Type: InfoConnectedClients, Data: r})
}

// DeviceActionFrame is what a controller sends to the relay.
func DeviceActionFrame(device string, data any) ([]byte, error) {
	return Encode(MsgDeviceAction, struct {
		Device string `json:"device"`
		Data   any    `json:"data"`
	}{Device: device, Data: data})
}

// ForwardedDeviceActionFrame is what the relay sends to device sessions:
// the inner payload only, untouched.
func ForwardedDeviceActionFrame(data json.RawMessage) ([]byte, error) {
	return json.Marshal(Envelope{Type: MsgDeviceAction, Data: data})
}

// PlayEffectFrame asks the controller to run the named effect.
func PlayEffectFrame(category, name string) ([]byte, error) {
	return Encode(MsgPlayEffect, map[string]string{
		"category": category,
		"name":     name,
	})
}

// HeartbeatFrame is the liveness marker the relay broadcasts.
func HeartbeatFrame(at time.Time) ([]byte, error) {
	return Encode(MsgHeartbeat, map[string]string{
		"sent_at": at.UTC().Format(time.RFC3339Nano),
	})
}
