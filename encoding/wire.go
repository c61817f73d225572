package encoding

// Shared wire-format primitives used by every Encode* function: the Remaining
// Length varint, the length-prefixed UTF-8 string writer, and fixed-header
// byte composition. Kept separate from the per-packet encoders so both the
// encoder and (indirectly, via the constants) the decoder agree on layout.

const maxUTF8StringLength = 0xFFFF

// appendVariableByteInteger appends the MQTT Remaining Length encoding of
// value to buf and returns the extended slice.
func appendVariableByteInteger(buf []byte, value uint32) ([]byte, error) {
	if value > MaxVariableByteInteger {
		return nil, ErrVariableByteIntegerTooLarge
	}
	for {
		b := byte(value % 128)
		value /= 128
		if value > 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if value == 0 {
			return buf, nil
		}
	}
}

// appendUint16 appends a big-endian uint16 to buf.
func appendUint16(buf []byte, value uint16) []byte {
	return append(buf, byte(value>>8), byte(value))
}

// appendUTF8String appends a two-byte big-endian length prefix followed by
// the raw bytes of s. Fails when len(s) exceeds 65,535.
func appendUTF8String(buf []byte, s string) ([]byte, error) {
	if len(s) > maxUTF8StringLength {
		return nil, ErrStringTooLarge
	}
	buf = appendUint16(buf, uint16(len(s)))
	return append(buf, s...), nil
}

// appendBinaryData appends a two-byte big-endian length prefix followed by
// the raw bytes of data (used for will-message and password, which are not
// required to be valid UTF-8).
func appendBinaryData(buf []byte, data []byte) ([]byte, error) {
	if len(data) > maxUTF8StringLength {
		return nil, ErrStringTooLarge
	}
	buf = appendUint16(buf, uint16(len(data)))
	return append(buf, data...), nil
}

// publishFlags composes the PUBLISH fixed-header low nibble: (DUP<<3)|(QoS<<1)|RETAIN.
func publishFlags(dup bool, qos QoS, retain bool) byte {
	var flags byte
	if dup {
		flags |= 0x08
	}
	flags |= byte(qos) << 1
	if retain {
		flags |= 0x01
	}
	return flags
}

// fixedFlagsForType returns the mandated low nibble for packet types whose
// flags are not per-instance (PUBREL/SUBSCRIBE/UNSUBSCRIBE fix it at 0010,
// everything else other than PUBLISH fixes it at 0000).
func fixedFlagsForType(t PacketType) byte {
	switch t {
	case PUBREL, SUBSCRIBE, UNSUBSCRIBE:
		return 0x02
	default:
		return 0x00
	}
}

// finishPacket prepends the fixed header (type+flags byte, then the Remaining
// Length varint) to body and returns the complete packet. This is the
// "build body, then prepend fixed header" two-pass shape every encoder
// shares, since the Remaining Length field cannot be written until the
// body's final size is known.
func finishPacket(t PacketType, flags byte, body []byte) ([]byte, error) {
	if len(body) > int(MaxVariableByteInteger) {
		return nil, ErrPayloadTooLarge
	}

	header := make([]byte, 0, 5)
	header = append(header, byte(t)<<4|flags)
	header, err := appendVariableByteInteger(header, uint32(len(body)))
	if err != nil {
		return nil, err
	}

	packet := make([]byte, 0, len(header)+len(body))
	packet = append(packet, header...)
	packet = append(packet, body...)
	return packet, nil
}
