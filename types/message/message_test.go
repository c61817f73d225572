package message

import (
	"testing"
	"time"

	"github.com/axmqtt/mqttc/encoding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name     string
		packetID uint16
		topic    string
		payload  []byte
		qos      encoding.QoS
		retain   bool
	}{
		{
			name:     "qos 0 message",
			packetID: 1,
			topic:    "test/topic",
			payload:  []byte("test payload"),
			qos:      encoding.QoS0,
			retain:   false,
		},
		{
			name:     "qos 1 message retained",
			packetID: 2,
			topic:    "test/topic",
			payload:  []byte("test payload"),
			qos:      encoding.QoS1,
			retain:   true,
		},
		{
			name:     "qos 2 message",
			packetID: 3,
			topic:    "test/topic",
			payload:  []byte("test payload"),
			qos:      encoding.QoS2,
			retain:   false,
		},
		{
			name:     "empty payload",
			packetID: 4,
			topic:    "test/topic",
			payload:  []byte{},
			qos:      encoding.QoS1,
			retain:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := NewMessage(tt.packetID, tt.topic, tt.payload, tt.qos, tt.retain)

			require.NotNil(t, msg)
			assert.Equal(t, tt.packetID, msg.PacketID)
			assert.Equal(t, tt.topic, msg.Topic)
			assert.Equal(t, tt.payload, msg.Payload)
			assert.Equal(t, tt.qos, msg.QoS)
			assert.Equal(t, tt.retain, msg.Retain)
			assert.False(t, msg.DUP)
			assert.Equal(t, 0, msg.AttemptCount)
			assert.False(t, msg.CreatedAt.IsZero())
			assert.False(t, msg.LastAttemptAt.IsZero())
		})
	}
}

func TestMessageMarkAttempt(t *testing.T) {
	msg := NewMessage(1, "test/topic", []byte("payload"), encoding.QoS1, false)

	assert.Equal(t, 0, msg.AttemptCount)
	assert.False(t, msg.DUP)

	initialTime := msg.LastAttemptAt

	time.Sleep(10 * time.Millisecond)
	msg.MarkAttempt()

	assert.Equal(t, 1, msg.AttemptCount)
	assert.False(t, msg.DUP)
	assert.True(t, msg.LastAttemptAt.After(initialTime))

	msg.MarkAttempt()
	assert.Equal(t, 2, msg.AttemptCount)
	assert.True(t, msg.DUP)

	msg.MarkAttempt()
	assert.Equal(t, 3, msg.AttemptCount)
	assert.True(t, msg.DUP)
}

func TestMessageClone(t *testing.T) {
	original := NewMessage(1, "test/topic", []byte("payload"), encoding.QoS2, true)
	original.MarkAttempt()
	original.MarkAttempt()

	cloned := original.Clone()

	require.NotNil(t, cloned)
	assert.Equal(t, original.PacketID, cloned.PacketID)
	assert.Equal(t, original.Topic, cloned.Topic)
	assert.Equal(t, original.Payload, cloned.Payload)
	assert.Equal(t, original.QoS, cloned.QoS)
	assert.Equal(t, original.Retain, cloned.Retain)
	assert.Equal(t, original.DUP, cloned.DUP)
	assert.Equal(t, original.AttemptCount, cloned.AttemptCount)

	cloned.Payload[0] = 'X'
	assert.NotEqual(t, original.Payload[0], cloned.Payload[0])
}

func TestMessageAllQoSLevels(t *testing.T) {
	tests := []struct {
		name string
		qos  encoding.QoS
	}{
		{name: "qos 0", qos: encoding.QoS0},
		{name: "qos 1", qos: encoding.QoS1},
		{name: "qos 2", qos: encoding.QoS2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := NewMessage(1, "test/topic", []byte("payload"), tt.qos, false)
			assert.Equal(t, tt.qos, msg.QoS)
		})
	}
}

func TestMessageLargePayload(t *testing.T) {
	largePayload := make([]byte, 1024*1024)
	for i := range largePayload {
		largePayload[i] = byte(i % 256)
	}

	msg := NewMessage(1, "test/topic", largePayload, encoding.QoS1, false)
	assert.Equal(t, len(largePayload), len(msg.Payload))

	cloned := msg.Clone()
	assert.Equal(t, len(largePayload), len(cloned.Payload))
	assert.Equal(t, msg.Payload, cloned.Payload)
}
