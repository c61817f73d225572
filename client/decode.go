package client

import "github.com/axmqtt/mqttc/encoding"

// Body parsers for the inbound packet types a client needs to understand.
// The encoding package only frames packets (type, flags, body); a client
// interprets the body itself, same division of labor as the encoder side.

func readUint16(body []byte) (uint16, []byte, error) {
	if len(body) < 2 {
		return 0, nil, ErrMalformedBody
	}
	return uint16(body[0])<<8 | uint16(body[1]), body[2:], nil
}

func readUTF8String(body []byte) (string, []byte, error) {
	length, rest, err := readUint16(body)
	if err != nil {
		return "", nil, err
	}
	if int(length) > len(rest) {
		return "", nil, ErrMalformedBody
	}
	return string(rest[:length]), rest[length:], nil
}

type connackBody struct {
	SessionPresent bool
	ReturnCode     byte
}

func parseConnack(body []byte) (*connackBody, error) {
	if len(body) != 2 {
		return nil, ErrMalformedBody
	}
	return &connackBody{
		SessionPresent: body[0]&0x01 != 0,
		ReturnCode:     body[1],
	}, nil
}

type publishBody struct {
	Topic    string
	PacketID uint16
	Payload  []byte
}

func parsePublish(flags byte, body []byte) (*publishBody, encoding.QoS, bool, bool, error) {
	dup := flags&0x08 != 0
	qos := encoding.QoS((flags & 0x06) >> 1)
	retain := flags&0x01 != 0

	topic, rest, err := readUTF8String(body)
	if err != nil {
		return nil, 0, false, false, err
	}

	var packetID uint16
	if qos > encoding.QoS0 {
		packetID, rest, err = readUint16(rest)
		if err != nil {
			return nil, 0, false, false, err
		}
	}

	return &publishBody{Topic: topic, PacketID: packetID, Payload: rest}, qos, dup, retain, nil
}

func parsePacketID(body []byte) (uint16, error) {
	id, _, err := readUint16(body)
	if err != nil {
		return 0, err
	}
	return id, nil
}

type subackBody struct {
	PacketID    uint16
	ReturnCodes []byte
}

func parseSuback(body []byte) (*subackBody, error) {
	id, rest, err := readUint16(body)
	if err != nil {
		return nil, err
	}
	if len(rest) == 0 {
		return nil, ErrMalformedBody
	}
	return &subackBody{PacketID: id, ReturnCodes: rest}, nil
}

type unsubackBody struct {
	PacketID uint16
}

func parseUnsuback(body []byte) (*unsubackBody, error) {
	id, err := parsePacketID(body)
	if err != nil {
		return nil, err
	}
	return &unsubackBody{PacketID: id}, nil
}
