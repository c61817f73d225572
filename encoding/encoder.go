package encoding

// MQTT 3.1.1 encoder: stateless functions that each produce one complete,
// ready-to-write packet buffer. Every function follows the same two-pass
// shape (see wire.go: finishPacket) and validates its inputs before
// attempting to build anything, so a validation failure never leaves a
// partially built buffer behind.

// MaxSendSize is the largest body (variable header + payload) this encoder
// will produce, matching the Remaining Length varint's own ceiling.
const MaxSendSize = MaxVariableByteInteger

const protocolName = "MQTT"
const protocolLevel311 = 0x04

// ConnectOptions is the input to EncodeConnect.
type ConnectOptions struct {
	ClientID     string
	CleanSession bool
	KeepAlive    uint16

	HasUsername bool
	Username    string

	HasPassword bool
	Password    []byte

	HasWill     bool
	WillTopic   string
	WillMessage []byte
	WillQoS     QoS
	WillRetain  bool
}

// SubscribeEntry is one (topic filter, requested QoS) pair in a SUBSCRIBE packet.
type SubscribeEntry struct {
	TopicFilter string
	QoS         QoS
}

// EncodeConnect builds a CONNECT packet: client id is required and
// non-empty, a will-flag requires both will-topic and will-message, and
// password-without-username is rejected (MQTT 3.1.1 3.1.2.9).
func EncodeConnect(opts ConnectOptions) ([]byte, error) {
	if opts.ClientID == "" {
		return nil, ErrEmptyClientID
	}
	if opts.HasWill && (opts.WillTopic == "" || len(opts.WillMessage) == 0) {
		return nil, ErrWillTopicPayloadMismatch
	}
	if opts.HasPassword && !opts.HasUsername {
		return nil, ErrPasswordWithoutUsername
	}
	if !opts.WillQoS.IsValid() {
		return nil, ErrInvalidQoS
	}

	var connectFlags byte
	if opts.CleanSession {
		connectFlags |= 0x02
	}
	if opts.HasWill {
		connectFlags |= 0x04
		connectFlags |= byte(opts.WillQoS) << 3
		if opts.WillRetain {
			connectFlags |= 0x20
		}
	}
	if opts.HasPassword {
		connectFlags |= 0x40
	}
	if opts.HasUsername {
		connectFlags |= 0x80
	}

	body := make([]byte, 0, 64)
	var err error
	body, err = appendUTF8String(body, protocolName)
	if err != nil {
		return nil, err
	}
	body = append(body, protocolLevel311)
	body = append(body, connectFlags)
	body = appendUint16(body, opts.KeepAlive)

	body, err = appendUTF8String(body, opts.ClientID)
	if err != nil {
		return nil, err
	}

	if opts.HasWill {
		body, err = appendUTF8String(body, opts.WillTopic)
		if err != nil {
			return nil, err
		}
		body, err = appendBinaryData(body, opts.WillMessage)
		if err != nil {
			return nil, err
		}
	}

	if opts.HasUsername {
		body, err = appendUTF8String(body, opts.Username)
		if err != nil {
			return nil, err
		}
	}

	if opts.HasPassword {
		body, err = appendBinaryData(body, opts.Password)
		if err != nil {
			return nil, err
		}
	}

	return finishPacket(CONNECT, 0x00, body)
}

// EncodePublish builds a PUBLISH packet. packetID is only serialized when
// qos > QoS0.
func EncodePublish(qos QoS, dup, retain bool, packetID uint16, topic string, payload []byte) ([]byte, error) {
	if !qos.IsValid() {
		return nil, ErrInvalidQoS
	}
	if topic == "" {
		return nil, ErrEmptyTopicName
	}
	if len(payload) > int(MaxSendSize) {
		return nil, ErrPayloadTooLarge
	}

	body := make([]byte, 0, 4+len(topic)+len(payload))
	var err error
	body, err = appendUTF8String(body, topic)
	if err != nil {
		return nil, err
	}
	if qos > QoS0 {
		body = appendUint16(body, packetID)
	}
	body = append(body, payload...)

	return finishPacket(PUBLISH, publishFlags(dup, qos, retain), body)
}

// encodePacketIDOnly builds the shared 4-byte shape of PUBACK/PUBREC/PUBREL/PUBCOMP.
func encodePacketIDOnly(t PacketType, packetID uint16) ([]byte, error) {
	body := appendUint16(make([]byte, 0, 2), packetID)
	return finishPacket(t, fixedFlagsForType(t), body)
}

// EncodePublishAck builds a PUBACK packet.
func EncodePublishAck(packetID uint16) ([]byte, error) {
	return encodePacketIDOnly(PUBACK, packetID)
}

// EncodePublishReceived builds a PUBREC packet.
func EncodePublishReceived(packetID uint16) ([]byte, error) {
	return encodePacketIDOnly(PUBREC, packetID)
}

// EncodePublishRelease builds a PUBREL packet. Fixed-header low nibble is 0010.
func EncodePublishRelease(packetID uint16) ([]byte, error) {
	return encodePacketIDOnly(PUBREL, packetID)
}

// EncodePublishComplete builds a PUBCOMP packet.
func EncodePublishComplete(packetID uint16) ([]byte, error) {
	return encodePacketIDOnly(PUBCOMP, packetID)
}

// EncodeSubscribe builds a SUBSCRIBE packet. Entry order is preserved on the wire.
func EncodeSubscribe(packetID uint16, entries []SubscribeEntry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, ErrEmptySubscriptionList
	}

	body := appendUint16(make([]byte, 0, 2+4*len(entries)), packetID)
	var err error
	for _, e := range entries {
		if !e.QoS.IsValid() {
			return nil, ErrInvalidQoS
		}
		body, err = appendUTF8String(body, e.TopicFilter)
		if err != nil {
			return nil, err
		}
		body = append(body, byte(e.QoS))
	}

	return finishPacket(SUBSCRIBE, fixedFlagsForType(SUBSCRIBE), body)
}

// EncodeUnsubscribe builds an UNSUBSCRIBE packet. Entry order is preserved on the wire.
func EncodeUnsubscribe(packetID uint16, topicFilters []string) ([]byte, error) {
	if len(topicFilters) == 0 {
		return nil, ErrEmptyUnsubscribeList
	}

	body := appendUint16(make([]byte, 0, 2+4*len(topicFilters)), packetID)
	var err error
	for _, filter := range topicFilters {
		body, err = appendUTF8String(body, filter)
		if err != nil {
			return nil, err
		}
	}

	return finishPacket(UNSUBSCRIBE, fixedFlagsForType(UNSUBSCRIBE), body)
}

// EncodePing builds the two-byte PINGREQ packet: [0xC0, 0x00].
func EncodePing() ([]byte, error) {
	return []byte{byte(PINGREQ) << 4, 0x00}, nil
}

// EncodeDisconnect builds the two-byte DISCONNECT packet: [0xE0, 0x00].
func EncodeDisconnect() ([]byte, error) {
	return []byte{byte(DISCONNECT) << 4, 0x00}, nil
}
