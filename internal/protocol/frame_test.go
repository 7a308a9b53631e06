package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name      string
		msg       Message
		wantType  byte
		wantSeq   uint16
		wantField byte
	}{
		{
			name:      "open command",
			msg:       &Command{Seq: 1, Action: ActionOpen},
			wantType:  FrameTypeCommand,
			wantSeq:   1,
			wantField: 0x01,
		},
		{
			name:      "close command",
			msg:       &Command{Seq: 0xBEEF, Action: ActionClose},
			wantType:  FrameTypeCommand,
			wantSeq:   0xBEEF,
			wantField: 0x02,
		},
		{
			name:      "ack reporting open",
			msg:       &Ack{Seq: 42, State: ReportedOpen},
			wantType:  FrameTypeAck,
			wantSeq:   42,
			wantField: 0x03,
		},
		{
			name:      "ack reporting unknown",
			msg:       &Ack{Seq: 7, State: ReportedUnknown},
			wantType:  FrameTypeAck,
			wantSeq:   7,
			wantField: 0x00,
		},
		{
			name:      "accept",
			msg:       &Accept{Seq: 0xFFFF},
			wantType:  FrameTypeAccept,
			wantSeq:   0xFFFF,
			wantField: 0x00,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			if len(frame) != FrameSize {
				t.Fatalf("frame size = %d, want %d", len(frame), FrameSize)
			}
			if frame[0] != tt.wantType {
				t.Errorf("frame type = 0x%02x, want 0x%02x", frame[0], tt.wantType)
			}
			if got := binary.LittleEndian.Uint16(frame[1:3]); got != tt.wantSeq {
				t.Errorf("seq = %d, want %d", got, tt.wantSeq)
			}
			if frame[3] != tt.wantField {
				t.Errorf("field = 0x%02x, want 0x%02x", frame[3], tt.wantField)
			}

			wantCRC := Checksum(frame[:HeaderSize])
			if got := binary.LittleEndian.Uint32(frame[HeaderSize:]); got != wantCRC {
				t.Errorf("crc = 0x%08x, want 0x%08x", got, wantCRC)
			}
		})
	}
}

func TestEncodeRejectsInvalidMessages(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"nil message", nil},
		{"unknown action", &Command{Seq: 1, Action: Action(0x7F)}},
		{"unknown reported state", &Ack{Seq: 1, State: ReportedState(0x09)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Encode(tt.msg); err == nil {
				t.Error("Encode() error = nil, want error")
			}
		})
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	cmd := &Command{Seq: 300, Action: ActionOpen}

	first := MustEncode(cmd)
	second := MustEncode(cmd)

	if !bytes.Equal(first, second) {
		t.Errorf("Encode() not deterministic: % x vs % x", first, second)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"command", &Command{Seq: 513, Action: ActionClose}},
		{"ack", &Ack{Seq: 513, State: ReportedClosing}},
		{"accept", &Accept{Seq: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := Decode(MustEncode(tt.msg))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}

			if decoded.FrameType() != tt.msg.FrameType() {
				t.Errorf("FrameType() = 0x%02x, want 0x%02x", decoded.FrameType(), tt.msg.FrameType())
			}
			if decoded.Sequence() != tt.msg.Sequence() {
				t.Errorf("Sequence() = %d, want %d", decoded.Sequence(), tt.msg.Sequence())
			}
			if decoded.String() != tt.msg.String() {
				t.Errorf("decoded = %s, want %s", decoded, tt.msg)
			}
		})
	}
}

func TestDecodeInvalidFrames(t *testing.T) {
	valid := MustEncode(&Ack{Seq: 9, State: ReportedOpen})

	// resign recomputes the checksum so only the field under test is wrong
	resign := func(frame []byte) []byte {
		binary.LittleEndian.PutUint32(frame[HeaderSize:], Checksum(frame[:HeaderSize]))
		return frame
	}

	tests := []struct {
		name     string
		data     []byte
		wantKind error
	}{
		{
			name:     "nil data",
			data:     nil,
			wantKind: ErrMalformed,
		},
		{
			name:     "too short",
			data:     valid[:FrameSize-1],
			wantKind: ErrMalformed,
		},
		{
			name:     "too long",
			data:     append(append([]byte{}, valid...), 0x00),
			wantKind: ErrMalformed,
		},
		{
			name: "flipped seq byte",
			data: func() []byte {
				f := append([]byte{}, valid...)
				f[1] ^= 0x01
				return f
			}(),
			wantKind: ErrChecksumMismatch,
		},
		{
			name: "flipped state byte",
			data: func() []byte {
				f := append([]byte{}, valid...)
				f[3] = byte(ReportedClosed)
				return f
			}(),
			wantKind: ErrChecksumMismatch,
		},
		{
			name: "corrupt checksum",
			data: func() []byte {
				f := append([]byte{}, valid...)
				f[FrameSize-1] ^= 0xFF
				return f
			}(),
			wantKind: ErrChecksumMismatch,
		},
		{
			name: "unknown frame type",
			data: func() []byte {
				f := append([]byte{}, valid...)
				f[0] = 0x7E
				return resign(f)
			}(),
			wantKind: ErrMalformed,
		},
		{
			name: "unknown action",
			data: func() []byte {
				f := MustEncode(&Command{Seq: 1, Action: ActionOpen})
				f[3] = 0x09
				return resign(f)
			}(),
			wantKind: ErrMalformed,
		},
		{
			name: "unknown reported state",
			data: func() []byte {
				f := append([]byte{}, valid...)
				f[3] = 0x42
				return resign(f)
			}(),
			wantKind: ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode(tt.data)
			if err == nil {
				t.Fatalf("Decode() = %v, want error", msg)
			}
			if msg != nil {
				t.Errorf("Decode() returned message %v alongside error", msg)
			}
			if !errors.Is(err, tt.wantKind) {
				t.Errorf("Decode() error = %v, want %v", err, tt.wantKind)
			}
			if !IsCodecError(err) {
				t.Errorf("IsCodecError(%v) = false, want true", err)
			}
		})
	}
}

func TestCodecErrorIsOnlyMatchesOwnKind(t *testing.T) {
	err := &CodecError{Kind: ChecksumMismatch, Message: "x"}

	if errors.Is(err, ErrMalformed) {
		t.Error("checksum error should not match ErrMalformed")
	}
	if !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("Error() = %q, want it to name the kind", err.Error())
	}
}

func TestDump(t *testing.T) {
	frame := MustEncode(&Command{Seq: 5, Action: ActionOpen})

	out := Dump(frame)
	for _, want := range []string{"01 05 00 01", "type=command", "seq=5", "field=0x01"} {
		if !strings.Contains(out, want) {
			t.Errorf("Dump() = %q, missing %q", out, want)
		}
	}
	if strings.Contains(out, "invalid") {
		t.Errorf("Dump() flagged a valid frame: %q", out)
	}

	frame[FrameSize-1] ^= 0xFF
	if out := Dump(frame); !strings.Contains(out, "invalid: checksum mismatch") {
		t.Errorf("Dump() of corrupted frame = %q, want checksum note", out)
	}

	if out := Dump([]byte{0x01, 0x02}); !strings.Contains(out, "2 bytes") {
		t.Errorf("Dump() of short frame = %q, want size note", out)
	}
}
