package codec

import "bytes"

// Decoded is one frame pulled out of a sender's byte stream: either a
// successfully parsed Message, or an Err tagging a frame that failed to
// decode. A malformed frame never aborts the stream — the decoder resyncs
// on the next start sentinel and keeps going.
type Decoded struct {
	Msg Message
	Err error
}

// Decoder reassembles complete frames out of an arbitrarily fragmented byte
// stream, per sender. Any transport may hand Feed as few or as many bytes
// at a time as it likes; the accumulation buffer absorbs the difference.
type Decoder struct {
	buffers map[string][]byte
}

// NewDecoder returns a ready-to-use Decoder.
func NewDecoder() *Decoder {
	return &Decoder{buffers: make(map[string][]byte)}
}

// Feed appends chunk to sender's accumulation buffer and extracts every
// complete frame now available, in arrival order. A trailing partial frame
// is left buffered for the next call. sender is an opaque key (typically a
// ClientID or connection id) used only to keep streams from different
// senders from bleeding into one another.
func (d *Decoder) Feed(sender string, chunk []byte) []Decoded {
	buf := append(d.buffers[sender], chunk...)

	var out []Decoded
	for {
		frame, remainder, ok := extractFrame(buf)
		if !ok {
			buf = remainder
			break
		}
		msg, err := decodeBody(frame)
		out = append(out, Decoded{Msg: msg, Err: err})
		buf = remainder
	}

	if len(buf) == 0 {
		delete(d.buffers, sender)
	} else {
		d.buffers[sender] = buf
	}
	return out
}

// Drop discards any buffered partial frame for sender, e.g. on disconnect.
func (d *Decoder) Drop(sender string) {
	delete(d.buffers, sender)
}

// extractFrame looks for one complete, well-formed frame at the front of
// buf. It reports ok=false when buf holds no complete frame yet (remainder
// is what is left of buf once bytes that cannot begin a frame have been
// dropped), skips ahead to the next start sentinel when buf doesn't begin
// with one, and moves one byte past a sentinel whose declared length does
// not land on an end sentinel, so a corrupted stream eventually
// resynchronizes on the next real frame.
func extractFrame(buf []byte) (frame, remainder []byte, ok bool) {
	for {
		idx := bytes.Index(buf, startSentinel[:])
		if idx == -1 {
			// No full sentinel in buf, but its tail may still be a partial
			// prefix of one split across the next Feed call. Keep only
			// what could possibly complete into a sentinel; anything
			// before that is definitely not part of one and can be
			// dropped.
			keep := len(startSentinel) - 1
			if keep > len(buf) {
				keep = len(buf)
			}
			return nil, buf[len(buf)-keep:], false
		}
		if idx > 0 {
			buf = buf[idx:]
		}

		headerLen := len(startSentinel) + lengthFieldSize
		if len(buf) < headerLen {
			return nil, buf, false
		}

		bodyLen := int(beUint32(buf[len(startSentinel):headerLen]))
		total := headerLen + bodyLen + len(endSentinel)
		if len(buf) < total {
			return nil, buf, false
		}

		body := buf[headerLen : headerLen+bodyLen]
		trailer := buf[headerLen+bodyLen : total]
		if !bytes.Equal(trailer, endSentinel[:]) {
			// Declared length didn't land on a real end sentinel: this
			// wasn't a genuine frame start, just a coincidental match.
			// Skip past it and keep scanning for the next one.
			buf = buf[1:]
			continue
		}

		return body, buf[total:], true
	}
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
