package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePing(t *testing.T) {
	b, err := EncodePing()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xC0, 0x00}, b)
}

func TestEncodeDisconnect(t *testing.T) {
	b, err := EncodeDisconnect()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xE0, 0x00}, b)
}

func TestEncodePublishAck(t *testing.T) {
	b, err := EncodePublishAck(0x1234)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x40, 0x02, 0x12, 0x34}, b)
}

func TestEncodePublishReceivedReleaseComplete(t *testing.T) {
	rec, err := EncodePublishReceived(0x0001)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x50, 0x02, 0x00, 0x01}, rec)

	rel, err := EncodePublishRelease(0x0001)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x62, 0x02, 0x00, 0x01}, rel)

	comp, err := EncodePublishComplete(0x0001)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x70, 0x02, 0x00, 0x01}, comp)
}

func TestEncodeSubscribe(t *testing.T) {
	b, err := EncodeSubscribe(0x1234, []SubscribeEntry{
		{TopicFilter: "subTopic1", QoS: QoS1},
		{TopicFilter: "subTopic2", QoS: QoS2},
	})
	require.NoError(t, err)

	expected := []byte{0x82, 0x1A, 0x12, 0x34,
		0x00, 0x09, 's', 'u', 'b', 'T', 'o', 'p', 'i', 'c', '1', 0x01,
		0x00, 0x09, 's', 'u', 'b', 'T', 'o', 'p', 'i', 'c', '2', 0x02,
	}
	assert.Equal(t, expected, b)
}

func TestEncodeSubscribeEmptyListFails(t *testing.T) {
	_, err := EncodeSubscribe(1, nil)
	assert.ErrorIs(t, err, ErrEmptySubscriptionList)
}

func TestEncodeUnsubscribeEmptyListFails(t *testing.T) {
	_, err := EncodeUnsubscribe(1, nil)
	assert.ErrorIs(t, err, ErrEmptyUnsubscribeList)
}

func TestEncodePublish(t *testing.T) {
	b, err := EncodePublish(QoS1, true, false, 0x1234, "topic Name", []byte("Message to send"))
	require.NoError(t, err)

	expected := []byte{0x3A, 0x1D,
		0x00, 0x0A, 't', 'o', 'p', 'i', 'c', ' ', 'N', 'a', 'm', 'e',
		0x12, 0x34,
		'M', 'e', 's', 's', 'a', 'g', 'e', ' ', 't', 'o', ' ', 's', 'e', 'n', 'd',
	}
	assert.Equal(t, expected, b)
}

func TestEncodePublishQoS0HasNoPacketID(t *testing.T) {
	b, err := EncodePublish(QoS0, false, false, 0x1234, "t", []byte("x"))
	require.NoError(t, err)

	// remaining length = 2(len)+1(topic)+1(payload) = 4, no packet id present
	assert.Equal(t, []byte{0x30, 0x04, 0x00, 0x01, 't', 'x'}, b)
}

func TestEncodePublishRejectsEmptyTopic(t *testing.T) {
	_, err := EncodePublish(QoS0, false, false, 0, "", []byte("x"))
	assert.ErrorIs(t, err, ErrEmptyTopicName)
}

func TestEncodeConnectMinimal(t *testing.T) {
	b, err := EncodeConnect(ConnectOptions{ClientID: "c1", CleanSession: true, KeepAlive: 60})
	require.NoError(t, err)

	assert.Equal(t, byte(CONNECT)<<4, b[0])
	assert.Contains(t, string(b), "MQTT")
	assert.Contains(t, string(b), "c1")
}

func TestEncodeConnectRejectsEmptyClientID(t *testing.T) {
	_, err := EncodeConnect(ConnectOptions{})
	assert.ErrorIs(t, err, ErrEmptyClientID)
}

func TestEncodeConnectRejectsMismatchedWill(t *testing.T) {
	_, err := EncodeConnect(ConnectOptions{ClientID: "c1", HasWill: true, WillTopic: "t"})
	assert.ErrorIs(t, err, ErrWillTopicPayloadMismatch)
}

func TestEncodeConnectRejectsPasswordWithoutUsername(t *testing.T) {
	_, err := EncodeConnect(ConnectOptions{ClientID: "c1", HasPassword: true, Password: []byte("p")})
	assert.ErrorIs(t, err, ErrPasswordWithoutUsername)
}

func TestEncodeConnectWithWillAndCredentials(t *testing.T) {
	b, err := EncodeConnect(ConnectOptions{
		ClientID:    "c1",
		HasWill:     true,
		WillTopic:   "lwt",
		WillMessage: []byte("bye"),
		WillQoS:     QoS1,
		WillRetain:  true,
		HasUsername: true,
		Username:    "u",
		HasPassword: true,
		Password:    []byte("p"),
	})
	require.NoError(t, err)

	// fixed header (2 bytes) + proto name (2+4) + level (1) = connect flags at index 9
	flags := b[9]
	assert.NotZero(t, flags&0x04, "will flag should be set")
	assert.NotZero(t, flags&0x20, "will retain flag should be set")
	assert.NotZero(t, flags&0x40, "password flag should be set")
	assert.NotZero(t, flags&0x80, "username flag should be set")
}

func TestEncodePublishAckRoundTripAllPacketIDs(t *testing.T) {
	for _, p := range []uint16{0, 1, 0x00FF, 0x1234, 0xFFFF} {
		b, err := EncodePublishAck(p)
		require.NoError(t, err)

		var got []byte
		d := NewDecoder(func(pt PacketType, flags byte, body []byte) {
			assert.Equal(t, PUBACK, pt)
			got = append([]byte(nil), body...)
		})
		require.NoError(t, d.Feed(b))
		require.Len(t, got, 2)
		assert.Equal(t, p, uint16(got[0])<<8|uint16(got[1]))
	}
}
