package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedPacket struct {
	packetType PacketType
	flags      byte
	body       []byte
}

func collectingDecoder() (*Decoder, *[]capturedPacket) {
	var got []capturedPacket
	d := NewDecoder(func(pt PacketType, flags byte, body []byte) {
		got = append(got, capturedPacket{pt, flags, append([]byte(nil), body...)})
	})
	return d, &got
}

func TestDecoderConnackByteByByte(t *testing.T) {
	d, got := collectingDecoder()

	require.NoError(t, d.Feed([]byte{0x20}))
	require.NoError(t, d.Feed([]byte{0x02}))
	require.NoError(t, d.Feed([]byte{0x01}))
	assert.Empty(t, *got, "no callback before the final body byte")

	require.NoError(t, d.Feed([]byte{0x00}))
	require.Len(t, *got, 1)
	assert.Equal(t, CONNACK, (*got)[0].packetType)
	assert.Equal(t, byte(0), (*got)[0].flags)
	assert.Equal(t, []byte{0x01, 0x00}, (*got)[0].body)
}

func TestDecoderLongPublishRemainingLength(t *testing.T) {
	d, got := collectingDecoder()

	payload := make([]byte, 220-2-7)
	for i := range payload {
		payload[i] = byte(i)
	}
	body := append([]byte{0x00, 0x05, 't', 'o', 'p', 'i', 'c', 0x00, 0x01}, payload...)
	packet := append([]byte{0x32, 0xDC, 0x01}, body...)
	require.Len(t, body, 220)

	require.NoError(t, d.Feed(packet[:len(packet)-1]))
	assert.Empty(t, *got, "must not fire until the 220th body byte arrives")

	require.NoError(t, d.Feed(packet[len(packet)-1:]))
	require.Len(t, *got, 1)
	assert.Equal(t, PUBLISH, (*got)[0].packetType)
	assert.Len(t, (*got)[0].body, 220)
}

func TestDecoderPingrespNoBodyBuffer(t *testing.T) {
	d, got := collectingDecoder()

	require.NoError(t, d.Feed([]byte{0xD0, 0x00}))
	require.Len(t, *got, 1)
	assert.Equal(t, PINGRESP, (*got)[0].packetType)
	assert.Empty(t, (*got)[0].body)
}

func TestDecoderMalformedVarintPoisonsOnlyOnePacket(t *testing.T) {
	d, got := collectingDecoder()

	err := d.Feed([]byte{0x20, 0xFF, 0xFF, 0xFF, 0xFF})
	assert.ErrorIs(t, err, ErrMalformedVariableByteInteger)
	assert.Empty(t, *got)

	// decoder must have reset to ExpectingFixedHeader, ready for the next packet
	require.NoError(t, d.Feed([]byte{0xC0, 0x00}))
	require.Len(t, *got, 1)
	assert.Equal(t, PINGREQ, (*got)[0].packetType)
}

func TestDecoderFragmentationInvariance(t *testing.T) {
	packet, err := EncodeSubscribe(0x1234, []SubscribeEntry{{TopicFilter: "a/b", QoS: QoS2}})
	require.NoError(t, err)

	whole, gotWhole := collectingDecoder()
	require.NoError(t, whole.Feed(packet))

	fragmented, gotFragmented := collectingDecoder()
	for _, b := range packet {
		require.NoError(t, fragmented.Feed([]byte{b}))
	}

	require.Len(t, *gotWhole, 1)
	require.Len(t, *gotFragmented, 1)
	assert.Equal(t, (*gotWhole)[0], (*gotFragmented)[0])
}

func TestDecoderMultiplePacketsInOneFeed(t *testing.T) {
	p1, err := EncodePing()
	require.NoError(t, err)
	p2, err := EncodeDisconnect()
	require.NoError(t, err)

	d, got := collectingDecoder()
	require.NoError(t, d.Feed(append(append([]byte{}, p1...), p2...)))

	require.Len(t, *got, 2)
	assert.Equal(t, PINGREQ, (*got)[0].packetType)
	assert.Equal(t, DISCONNECT, (*got)[1].packetType)
}

func TestDecoderNoSpuriousCallbackOnPartialPacket(t *testing.T) {
	packet, err := EncodePublish(QoS1, false, false, 7, "topic", []byte("hello world"))
	require.NoError(t, err)

	for k := 1; k < len(packet); k++ {
		d, got := collectingDecoder()
		require.NoError(t, d.Feed(packet[:k]))
		assert.Emptyf(t, *got, "fed %d of %d bytes must not fire a callback", k, len(packet))
	}
}

func TestDecoderPublishFlagsSurfaceDupQoSRetain(t *testing.T) {
	packet, err := EncodePublish(QoS2, true, true, 99, "t", []byte("x"))
	require.NoError(t, err)

	d, got := collectingDecoder()
	require.NoError(t, d.Feed(packet))
	require.Len(t, *got, 1)

	flags := (*got)[0].flags
	assert.NotZero(t, flags&0x08, "dup bit")
	assert.Equal(t, byte(2), (flags&0x06)>>1, "qos bits")
	assert.NotZero(t, flags&0x01, "retain bit")
}

func TestDecoderNilReceiverFails(t *testing.T) {
	var d *Decoder
	err := d.Feed([]byte{0x01})
	assert.ErrorIs(t, err, ErrNilDecoder)
}

func TestDecoderEmptyFeedIsNoOp(t *testing.T) {
	d, got := collectingDecoder()
	require.NoError(t, d.Feed(nil))
	require.NoError(t, d.Feed([]byte{}))
	assert.Empty(t, *got)
}
