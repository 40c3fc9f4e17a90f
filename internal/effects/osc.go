package effects

import (
	"fmt"
	"math"
	"net"
	"strconv"

	"github.com/hypebeast/go-osc/osc"
)

// UDPOSCSender sends OSC messages with a single argument over UDP.
type UDPOSCSender struct {
	client *osc.Client
}

// NewOSCSender targets the OSC server at host:port.
func NewOSCSender(addr string) (*UDPOSCSender, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("osc server %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("osc server %q: invalid port", addr)
	}
	if _, err := net.ResolveUDPAddr("udp", addr); err != nil {
		return nil, fmt.Errorf("osc server %q: %w", addr, err)
	}
	return &UDPOSCSender{client: osc.NewClient(host, port)}, nil
}

func (s *UDPOSCSender) Send(address string, value any) error {
	msg, err := oscMessage(address, value)
	if err != nil {
		return err
	}
	return s.client.Send(msg)
}

// oscMessage maps a YAML value onto an OSC message. Integers become int32,
// floats float32 and booleans the T/F tags; nil sends no argument.
func oscMessage(address string, value any) (*osc.Message, error) {
	switch v := value.(type) {
	case nil:
		return osc.NewMessage(address), nil
	case bool, int32, float32, string:
		return osc.NewMessage(address, v), nil
	case int:
		return int32Message(address, int64(v))
	case int64:
		return int32Message(address, v)
	case float64:
		return osc.NewMessage(address, float32(v)), nil
	default:
		return nil, fmt.Errorf("unsupported osc value type %T", value)
	}
}

func int32Message(address string, v int64) (*osc.Message, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return nil, fmt.Errorf("osc int %d out of int32 range", v)
	}
	return osc.NewMessage(address, int32(v)), nil
}
