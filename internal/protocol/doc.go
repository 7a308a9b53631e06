// Package protocol implements the coop door radio frame codec.
//
// This package serialises and verifies the three messages exchanged between
// the controller and the remote door actuator over the HC-12 serial radio.
// Every frame has the same fixed size. Delimiting frames on a byte stream is
// the transport's job, not the codec's.
//
// # Frame Layout
//
// All multi-byte fields are little-endian:
//   - Frame type: 1 byte (0x01 command, 0x02 ack, 0x03 accept)
//   - Sequence number: 2 bytes, wraps modulo 2^16
//   - Field: 1 byte (action code, reported state code, or 0x00)
//   - Checksum: 4 bytes, IEEE CRC-32 of the first four bytes
//
// # Message Types
//
//   - Command: controller asks the actuator to open (0x01) or close (0x02)
//   - Ack: actuator echoes the command sequence number and reports the
//     resulting state (unknown 0x00, closed 0x01, opening 0x02, open 0x03,
//     closing 0x04)
//   - Accept: controller confirms it received the ack so the actuator stops
//     retransmitting it
//
// # Usage Example
//
//	frame, err := protocol.Encode(&protocol.Command{Seq: seq, Action: protocol.ActionOpen})
//	if err != nil {
//	    return err
//	}
//
//	msg, err := protocol.Decode(reply)
//	if errors.Is(err, protocol.ErrChecksumMismatch) {
//	    // corrupted on air, treat like a lost frame
//	}
//	if ack, ok := msg.(*protocol.Ack); ok && ack.Seq == seq {
//	    fmt.Println("door is", ack.State)
//	}
//
// # Sequence Numbers
//
// Sequence numbers are compared with serial number arithmetic (SeqAfter), so
// 0x0000 is after 0xFFFF. A Sequencer hands out increasing numbers per
// controller instance.
//
// # Error Handling
//
// Decode returns a *CodecError whose kind is Malformed or ChecksumMismatch.
// The checksum is verified before any field is interpreted, so a corrupted
// frame is never mistaken for a valid but wrong acknowledgment.
//
// # Thread Safety
//
// Encode, Decode and Dump are pure functions and safe for concurrent use.
// Sequencer uses atomic operations.
package protocol
