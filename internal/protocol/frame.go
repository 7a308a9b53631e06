package protocol

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Frame layout (all frame types share it, little-endian):
//
//	[0]     frame_type     FrameTypeCommand, FrameTypeAck or FrameTypeAccept
//	[1-2]   seq            Sequence number (uint16)
//	[3]     field          Action (command), reported state (ack), 0x00 (accept)
//	[4-7]   crc32          IEEE CRC-32 over bytes 0-3
const (
	FrameTypeSize = 1
	SeqSize       = 2
	FieldSize     = 1
	ChecksumSize  = 4

	// HeaderSize is everything covered by the checksum
	HeaderSize = FrameTypeSize + SeqSize + FieldSize

	// FrameSize is the on-air size of every frame
	FrameSize = HeaderSize + ChecksumSize
)

// Frame types
const (
	FrameTypeCommand byte = 0x01
	FrameTypeAck     byte = 0x02
	FrameTypeAccept  byte = 0x03
)

// Action is the operation a Command asks the actuator to perform.
type Action byte

const (
	ActionOpen  Action = 0x01
	ActionClose Action = 0x02
)

func (a Action) String() string {
	switch a {
	case ActionOpen:
		return "open"
	case ActionClose:
		return "close"
	default:
		return fmt.Sprintf("action(0x%02x)", byte(a))
	}
}

// Valid reports whether a is a known action code.
func (a Action) Valid() bool {
	return a == ActionOpen || a == ActionClose
}

// ReportedState is the physical door state carried by an acknowledgment.
type ReportedState byte

const (
	ReportedUnknown ReportedState = 0x00
	ReportedClosed  ReportedState = 0x01
	ReportedOpening ReportedState = 0x02
	ReportedOpen    ReportedState = 0x03
	ReportedClosing ReportedState = 0x04
)

func (s ReportedState) String() string {
	switch s {
	case ReportedUnknown:
		return "unknown"
	case ReportedClosed:
		return "closed"
	case ReportedOpening:
		return "opening"
	case ReportedOpen:
		return "open"
	case ReportedClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(0x%02x)", byte(s))
	}
}

// Valid reports whether s is a known state code.
func (s ReportedState) Valid() bool {
	return s <= ReportedClosing
}

// Message is a decoded frame payload: *Command, *Ack or *Accept.
type Message interface {
	FrameType() byte
	Sequence() uint16
	String() string
}

// Command asks the remote actuator to open or close the door.
type Command struct {
	Seq    uint16
	Action Action
}

func (c *Command) FrameType() byte  { return FrameTypeCommand }
func (c *Command) Sequence() uint16 { return c.Seq }

func (c *Command) String() string {
	return fmt.Sprintf("Command{seq=%d, action=%s}", c.Seq, c.Action)
}

// Ack confirms the command with the same sequence number and reports the
// resulting physical state.
type Ack struct {
	Seq   uint16
	State ReportedState
}

func (a *Ack) FrameType() byte  { return FrameTypeAck }
func (a *Ack) Sequence() uint16 { return a.Seq }

func (a *Ack) String() string {
	return fmt.Sprintf("Ack{seq=%d, state=%s}", a.Seq, a.State)
}

// Accept is the controller's final signal that an ack was received, so the
// remote stops retransmitting it.
type Accept struct {
	Seq uint16
}

func (a *Accept) FrameType() byte  { return FrameTypeAccept }
func (a *Accept) Sequence() uint16 { return a.Seq }

func (a *Accept) String() string {
	return fmt.Sprintf("Accept{seq=%d}", a.Seq)
}

// Encode serialises a message into a complete frame with checksum.
func Encode(msg Message) ([]byte, error) {
	var field byte

	switch m := msg.(type) {
	case *Command:
		if !m.Action.Valid() {
			return nil, fmt.Errorf("cannot encode command: unknown action 0x%02x", byte(m.Action))
		}
		field = byte(m.Action)
	case *Ack:
		if !m.State.Valid() {
			return nil, fmt.Errorf("cannot encode ack: unknown state 0x%02x", byte(m.State))
		}
		field = byte(m.State)
	case *Accept:
		field = 0x00
	case nil:
		return nil, fmt.Errorf("cannot encode nil message")
	default:
		return nil, fmt.Errorf("cannot encode message of type %T", msg)
	}

	frame := make([]byte, FrameSize)
	frame[0] = msg.FrameType()
	binary.LittleEndian.PutUint16(frame[1:3], msg.Sequence())
	frame[3] = field
	binary.LittleEndian.PutUint32(frame[HeaderSize:], Checksum(frame[:HeaderSize]))

	return frame, nil
}

// MustEncode is Encode for messages known to be valid; it panics otherwise.
func MustEncode(msg Message) []byte {
	frame, err := Encode(msg)
	if err != nil {
		panic(err)
	}
	return frame
}

// Decode parses and verifies a frame. The checksum is verified before any
// field is interpreted, so a corrupted frame is never returned as a valid
// message.
func Decode(data []byte) (Message, error) {
	if len(data) != FrameSize {
		return nil, newMalformed(fmt.Sprintf("frame is %d bytes (want %d)", len(data), FrameSize))
	}

	want := binary.LittleEndian.Uint32(data[HeaderSize:])
	got := Checksum(data[:HeaderSize])
	if want != got {
		return nil, &CodecError{
			Kind:    ChecksumMismatch,
			Message: fmt.Sprintf("checksum 0x%08x does not match computed 0x%08x", want, got),
		}
	}

	seq := binary.LittleEndian.Uint16(data[1:3])
	field := data[3]

	switch data[0] {
	case FrameTypeCommand:
		action := Action(field)
		if !action.Valid() {
			return nil, newMalformed(fmt.Sprintf("unknown action 0x%02x", field))
		}
		return &Command{Seq: seq, Action: action}, nil

	case FrameTypeAck:
		state := ReportedState(field)
		if !state.Valid() {
			return nil, newMalformed(fmt.Sprintf("unknown reported state 0x%02x", field))
		}
		return &Ack{Seq: seq, State: state}, nil

	case FrameTypeAccept:
		return &Accept{Seq: seq}, nil

	default:
		return nil, newMalformed(fmt.Sprintf("unknown frame type 0x%02x", data[0]))
	}
}

// Checksum returns the IEEE CRC-32 of data.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// FrameTypeName returns a human-readable frame type name
func FrameTypeName(t byte) string {
	switch t {
	case FrameTypeCommand:
		return "command"
	case FrameTypeAck:
		return "ack"
	case FrameTypeAccept:
		return "accept"
	default:
		return fmt.Sprintf("unknown(0x%02x)", t)
	}
}
