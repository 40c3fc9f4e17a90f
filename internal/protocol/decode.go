package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMissingType = errors.New("envelope has no type")
	ErrMissingData = errors.New("envelope has no data")
	ErrMalformed   = errors.New("malformed envelope")
)

// Kind classifies a decoded message.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindAuthentication
	KindAvailableEffects
	KindConnectedClients
	KindInformation
	KindDeviceAction
	KindPlayEffect
	KindHeartbeat
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindAvailableEffects:
		return "available_effects"
	case KindConnectedClients:
		return "connected_clients"
	case KindInformation:
		return "information"
	case KindDeviceAction:
		return "device_action"
	case KindPlayEffect:
		return "play_effect"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unrecognized"
	}
}

// Message is one of the concrete variants below.
type Message interface {
	Kind() Kind
}

// Authentication claims a role and display name for the sending session.
// Role holds the raw wire value; use ParseRole to validate it.
type Authentication struct {
	Role string
	Name string
}

// AvailableEffects carries a full replacement catalog.
type AvailableEffects struct {
	Catalog Catalog
}

// ConnectedClients carries the roster pushed to the controller.
type ConnectedClients struct {
	Roster Roster
}

// Information is an information envelope with a nested tag this package
// does not model.
type Information struct {
	Type InformationType
	Data json.RawMessage
}

// DeviceAction targets device sessions. Data is kept verbatim.
type DeviceAction struct {
	Device string
	Data   json.RawMessage
}

// PlayEffect asks the controller to run an effect.
type PlayEffect struct {
	Category string
	Name     string
}

// Heartbeat is the periodic liveness marker.
type Heartbeat struct {
	Data json.RawMessage
}

// Unrecognized is any envelope whose type is not part of the protocol.
type Unrecognized struct {
	Type MessageType
	Data json.RawMessage
}

func (Authentication) Kind() Kind   { return KindAuthentication }
func (AvailableEffects) Kind() Kind { return KindAvailableEffects }
func (ConnectedClients) Kind() Kind { return KindConnectedClients }
func (Information) Kind() Kind      { return KindInformation }
func (DeviceAction) Kind() Kind     { return KindDeviceAction }
func (PlayEffect) Kind() Kind       { return KindPlayEffect }
func (Heartbeat) Kind() Kind        { return KindHeartbeat }
func (Unrecognized) Kind() Kind     { return KindUnrecognized }

type rawEnvelope struct {
	Type *string        `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode parses one frame into its message variant. Missing keys yield
// errors wrapping ErrMissingType, ErrMissingData or ErrMalformed.
func Decode(frame []byte) (Message, error) {
	var env rawEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == nil || *env.Type == "" {
		return nil, ErrMissingType
	}
	if isAbsent(env.Data) {
		return nil, ErrMissingData
	}

	t := MessageType(*env.Type)
	switch t {
	case MsgAuthentication:
		return decodeAuthentication(env.Data)
	case MsgInformation:
		return decodeInformation(env.Data)
	case MsgDeviceAction:
		return decodeDeviceAction(env.Data)
	case MsgPlayEffect:
		return decodePlayEffect(env.Data)
	case MsgHeartbeat:
		return Heartbeat{Data: env.Data}, nil
	default:
		return Unrecognized{Type: t, Data: env.Data}, nil
	}
}

func decodeAuthentication(data json.RawMessage) (Message, error) {
	var body struct {
		Type *string `json:"type"`
		Name *string `json:"name"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%w: authentication: %v", ErrMalformed, err)
	}
	if body.Type == nil {
		return nil, fmt.Errorf("%w: authentication without type", ErrMalformed)
	}
	if body.Name == nil || *body.Name == "" {
		return nil, fmt.Errorf("%w: authentication without name", ErrMalformed)
	}
	return Authentication{Role: *body.Type, Name: *body.Name}, nil
}

func decodeInformation(data json.RawMessage) (Message, error) {
	var body struct {
		Type *string        `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%w: information: %v", ErrMalformed, err)
	}
	if body.Type == nil {
		return nil, fmt.Errorf("%w: information without type", ErrMalformed)
	}
	if isAbsent(body.Data) {
		return nil, fmt.Errorf("%w: information without data", ErrMalformed)
	}

	switch InformationType(*body.Type) {
	case InfoAvailableEffects:
		var catalog Catalog
		if err := json.Unmarshal(body.Data, &catalog); err != nil {
			return nil, fmt.Errorf("%w: available_effects: %v", ErrMalformed, err)
		}
		if catalog == nil {
			catalog = Catalog{}
		}
		return AvailableEffects{Catalog: catalog}, nil
	case InfoConnectedClients:
		var roster Roster
		if err := json.Unmarshal(body.Data, &roster); err != nil {
			return nil, fmt.Errorf("%w: connected_clients: %v", ErrMalformed, err)
		}
		return ConnectedClients{Roster: roster}, nil
	default:
		return Information{Type: InformationType(*body.Type), Data: body.Data}, nil
	}
}

func decodeDeviceAction(data json.RawMessage) (Message, error) {
	var body struct {
		Device *string         `json:"device"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%w: device_action: %v", ErrMalformed, err)
	}
	if body.Device == nil {
		return nil, fmt.Errorf("%w: device_action without device", ErrMalformed)
	}
	if isAbsent(body.Data) {
		return nil, fmt.Errorf("%w: device_action without data", ErrMalformed)
	}
	return DeviceAction{Device: *body.Device, Data: body.Data}, nil
}

func decodePlayEffect(data json.RawMessage) (Message, error) {
	var body struct {
		Category *string `json:"category"`
		Name     *string `json:"name"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%w: play_effect: %v", ErrMalformed, err)
	}
	if body.Category == nil || body.Name == nil {
		return nil, fmt.Errorf("%w: play_effect needs category and name", ErrMalformed)
	}
	return PlayEffect{Category: *body.Category, Name: *body.Name}, nil
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
