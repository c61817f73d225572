package client

import (
	"log/slog"
	"os"
	"time"

	"github.com/axmqtt/mqttc/encoding"
	"github.com/axmqtt/mqttc/network"
	"github.com/axmqtt/mqttc/pkg/logger"
	"github.com/axmqtt/mqttc/qos"
	"github.com/axmqtt/mqttc/session"
)

// Logger is the logging surface a Client calls into for connection
// lifecycle events. *logger.SlogLogger satisfies it.
type Logger interface {
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// Options configures a Client. ClientID is required (the broker address is
// passed to NewClient, not set here); every
// other field has a workable zero value or falls back to a package default.
type Options struct {
	ClientID     string
	CleanSession bool
	KeepAlive    uint16 // seconds, 0 disables keep-alive

	Username string
	Password []byte

	WillTopic   string
	WillMessage []byte
	WillQoS     encoding.QoS
	WillRetain  bool

	// TLSConfig enables TLS when non-nil.
	TLSConfig *network.TLSConfig

	DialTimeout    time.Duration
	ConnectTimeout time.Duration

	// ReconnectConfig drives the backoff used when the connection drops and
	// AutoReconnect is true. A nil value falls back to
	// network.DefaultBackoffConfig.
	AutoReconnect   bool
	ReconnectConfig *network.BackoffConfig

	// QoSConfig configures outbound retry/dedup bookkeeping. A nil value
	// falls back to qos.DefaultConfig.
	QoSConfig *qos.Config

	// Store persists session state across reconnects. A nil value means no
	// session state is kept: every connect and reconnect starts a fresh session.
	Store session.Store

	// Logger receives connection lifecycle events. A nil value falls back
	// to a SlogLogger writing to stderr at Info level.
	Logger Logger
}

func (o *Options) withDefaults() *Options {
	out := *o
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = 10 * time.Second
	}
	if out.DialTimeout <= 0 {
		out.DialTimeout = 10 * time.Second
	}
	if out.QoSConfig == nil {
		out.QoSConfig = qos.DefaultConfig()
	}
	if out.ReconnectConfig == nil {
		out.ReconnectConfig = network.DefaultBackoffConfig()
	}
	if out.Logger == nil {
		out.Logger = logger.NewSlogLogger(slog.LevelInfo, os.Stderr)
	}
	return &out
}

func (o *Options) validate() error {
	if o.ClientID == "" {
		return ErrEmptyClientID
	}
	if !o.WillQoS.IsValid() {
		return encoding.ErrInvalidQoS
	}
	return nil
}
