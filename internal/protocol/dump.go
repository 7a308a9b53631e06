package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Dump renders a frame as an annotated hex listing for debug logs. It never
// fails: frames that do not decode are still annotated byte by byte, with the
// decode error appended.
func Dump(data []byte) string {
	var b strings.Builder

	fmt.Fprintf(&b, "% x", data)

	if len(data) != FrameSize {
		fmt.Fprintf(&b, " (%d bytes, want %d)", len(data), FrameSize)
		return b.String()
	}

	fmt.Fprintf(&b, " [type=%s seq=%d field=0x%02x crc=0x%08x]",
		FrameTypeName(data[0]),
		binary.LittleEndian.Uint16(data[1:3]),
		data[3],
		binary.LittleEndian.Uint32(data[HeaderSize:]),
	)

	if _, err := Decode(data); err != nil {
		fmt.Fprintf(&b, " invalid: %v", err)
	}

	return b.String()
}
