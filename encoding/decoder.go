package encoding

// Decoder is the incremental inbound-stream parser: a single stateful
// object that reassembles an arbitrarily fragmented byte stream into
// complete MQTT control packets, firing a callback once per packet. It
// holds the only mutable state in this package; every encoder above is a
// pure function.
//
// A Decoder is not safe for concurrent Feed calls; callers must serialize
// access to a given instance. Distinct instances are fully independent.

// Phase is the Decoder's state-machine position.
type Phase byte

const (
	ExpectingFixedHeader Phase = iota
	ReadingRemainingLength
	ReadingBody
)

// OnPacketComplete is invoked synchronously from within Feed once a full
// packet has been reassembled. body is borrowed: it is valid only for the
// duration of the call and must be copied if the callback needs it later.
type OnPacketComplete func(packetType PacketType, flags byte, body []byte)

// Decoder reassembles one inbound MQTT 3.1.1 byte stream.
type Decoder struct {
	phase Phase

	packetType PacketType
	flags      byte

	remainingLength uint32
	multiplier      uint32
	varintBytesRead int

	body       []byte
	bodyFilled uint32

	callback OnPacketComplete
}

// NewDecoder constructs a Decoder that invokes callback once per complete
// packet. There is no separate context parameter: callers close over
// whatever state they need in the callback closure, which is the idiomatic
// Go equivalent of the source's (callback, context) pair.
func NewDecoder(callback OnPacketComplete) *Decoder {
	return &Decoder{callback: callback}
}

// Feed appends data to whatever stage of the state machine the decoder
// currently occupies, firing the completion callback zero or more times
// along the way. It tolerates any fragmentation, including single-byte
// feeds and multiple complete packets in one call.
//
// Feed returns ErrNilDecoder for a nil Decoder. A malformed Remaining Length
// varint resets this Decoder to ExpectingFixedHeader and is reported as
// ErrMalformedVariableByteInteger, poisoning the one in-flight packet rather
// than the whole stream.
func (d *Decoder) Feed(data []byte) error {
	if d == nil {
		return ErrNilDecoder
	}

	for len(data) > 0 {
		switch d.phase {
		case ExpectingFixedHeader:
			b := data[0]
			data = data[1:]
			d.packetType = PacketType(b >> 4)
			d.flags = b & 0x0F
			d.remainingLength = 0
			d.multiplier = 1
			d.varintBytesRead = 0
			d.phase = ReadingRemainingLength

		case ReadingRemainingLength:
			b := data[0]
			data = data[1:]

			d.remainingLength += uint32(b&0x7F) * d.multiplier
			d.varintBytesRead++

			if b&0x80 != 0 {
				if d.varintBytesRead >= MaxVariableByteIntegerBytes {
					d.reset()
					return ErrMalformedVariableByteInteger
				}
				d.multiplier *= 128
				continue
			}

			if d.remainingLength == 0 {
				d.fireAndReset(nil)
				continue
			}

			d.body = make([]byte, d.remainingLength)
			d.bodyFilled = 0
			d.phase = ReadingBody

		case ReadingBody:
			need := d.remainingLength - d.bodyFilled
			n := uint32(len(data))
			if n > need {
				n = need
			}
			copy(d.body[d.bodyFilled:], data[:n])
			d.bodyFilled += n
			data = data[n:]

			if d.bodyFilled == d.remainingLength {
				d.fireAndReset(d.body)
			}
		}
	}

	return nil
}

// fireAndReset invokes the callback with the current packet type/flags/body
// and then resets all scratch state to ExpectingFixedHeader.
func (d *Decoder) fireAndReset(body []byte) {
	packetType, flags := d.packetType, d.flags
	d.reset()
	if d.callback != nil {
		d.callback(packetType, flags, body)
	}
}

// reset zeroes all scratch fields and returns the decoder to
// ExpectingFixedHeader.
func (d *Decoder) reset() {
	d.phase = ExpectingFixedHeader
	d.packetType = 0
	d.flags = 0
	d.remainingLength = 0
	d.multiplier = 0
	d.varintBytesRead = 0
	d.body = nil
	d.bodyFilled = 0
}
