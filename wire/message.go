package wire

// EncodeMessage builds a complete wire envelope — heading followed by
// payload — for command under the given network magic. The heading's
// checksum and payload_size are computed from payload; callers never
// set them directly.
func EncodeMessage(magic uint32, command string, payload []byte) ([]byte, error) {
	heading := Heading{
		Magic:       magic,
		Command:     command,
		PayloadSize: uint32(len(payload)),
		Checksum:    Checksum(payload),
	}
	headingBytes, err := heading.Encode()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(headingBytes)+len(payload))
	out = append(out, headingBytes...)
	out = append(out, payload...)
	return out, nil
}
