package hook

import (
	"net"
	"time"

	"github.com/axmqtt/mqttc/encoding"
)

// Event identifies a point in the client lifecycle a Hook can observe.
type Event byte

const (
	OnConnect Event = iota
	OnConnected
	OnDisconnect
	OnPublish
	OnMessage
	OnReconnect
)

func (e Event) String() string {
	names := [...]string{
		"OnConnect",
		"OnConnected",
		"OnDisconnect",
		"OnPublish",
		"OnMessage",
		"OnReconnect",
	}
	if e < Event(len(names)) {
		return names[e]
	}
	return "Unknown"
}

// Hook observes or vetoes client lifecycle events. Embed Base and override
// only the methods a given hook cares about.
type Hook interface {
	// ID returns a unique identifier for this hook.
	ID() string

	// Provides reports whether the hook implements the given event.
	Provides(event Event) bool

	// Stop releases any resources held by the hook (timers, goroutines).
	Stop() error

	// OnConnect is called immediately before a CONNECT is sent.
	OnConnect(opts *ConnectOptions) error

	// OnConnected is called once a CONNACK has been received successfully.
	OnConnected(sessionPresent bool) error

	// OnDisconnect is called when the connection is torn down, cleanly or not.
	OnDisconnect(err error) error

	// OnPublish is called before an outbound PUBLISH is encoded; returning
	// an error vetoes the publish.
	OnPublish(msg *PublishMessage) error

	// OnMessage is called for each inbound PUBLISH dispatched to the caller.
	OnMessage(msg *PublishMessage) error

	// OnReconnect is called once when the client starts reconnecting after a
	// dropped connection, before the reconnector's first dial attempt.
	OnReconnect(attempt int, delay time.Duration) error
}

// ConnectOptions mirrors the fields of a client connect that a hook may
// want to inspect or log; of the transport it carries only RemoteAddr.
type ConnectOptions struct {
	ClientID     string
	CleanSession bool
	KeepAlive    uint16
	RemoteAddr   net.Addr
}

// PublishMessage describes a publish flowing through the client, inbound
// or outbound.
type PublishMessage struct {
	Topic     string
	Payload   []byte
	QoS       encoding.QoS
	Retain    bool
	Duplicate bool
	PacketID  uint16
	Created   time.Time
}
