package codec

import (
	"encoding/binary"
	"fmt"
)

// startSentinel and endSentinel bracket every frame on the wire. They are
// fixed byte sequences chosen once and never produced as ordinary message
// content: bodies are length-prefixed, so a decoder never needs to search
// for these sequences inside a body — it reads the declared number of bytes
// and then checks the trailer matches, which is what makes a sentinel that
// could in principle appear inside a Response's free-form text harmless.
var (
	startSentinel = [6]byte{0x7a, 0x79, 0x66, 0x00, 0x01, 0x02}
	endSentinel   = [5]byte{0x03, 0x04, 0xfe, 0xfd, 0x00}
)

const lengthFieldSize = 4 // uint32 body length, big-endian

// DecodeError reports a malformed frame body. The frame is discarded by the
// protocol layer; the connection stays open.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: decode error: %s", e.Reason)
}

// Encode serializes msg into a complete, self-framed wire payload.
func Encode(msg Message) ([]byte, error) {
	body, err := encodeBody(msg)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(startSentinel)+lengthFieldSize+len(body)+len(endSentinel))
	out = append(out, startSentinel[:]...)

	var lenBuf [lengthFieldSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	out = append(out, lenBuf[:]...)

	out = append(out, body...)
	out = append(out, endSentinel[:]...)
	return out, nil
}

func encodeBody(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case AddCode:
		if err := m.Item.Validate(); err != nil {
			return nil, err
		}
		body := make([]byte, 0, 1+8+itemIDLen)
		body = append(body, byte(TagAddCode))
		body = appendUint64(body, uint64(m.QueryID))
		body = append(body, []byte(m.Item)...)
		return body, nil

	case AddList:
		if err := m.Playlist.Validate(); err != nil {
			return nil, err
		}
		body := make([]byte, 0, 1+8+playlistIDLen)
		body = append(body, byte(TagAddList))
		body = appendUint64(body, uint64(m.QueryID))
		body = append(body, []byte(m.Playlist)...)
		return body, nil

	case Retry:
		return []byte{byte(TagRetry)}, nil

	case Discard:
		return []byte{byte(TagDiscard)}, nil

	case List:
		body := make([]byte, 0, 1+8)
		body = append(body, byte(TagList))
		body = appendUint64(body, uint64(m.QueryID))
		return body, nil

	case Response:
		text := []byte(m.Text)
		body := make([]byte, 0, 1+8+4+len(text))
		body = append(body, byte(TagResponse))
		body = appendUint64(body, uint64(m.QueryID))
		body = appendUint32(body, uint32(len(text)))
		body = append(body, text...)
		return body, nil

	default:
		return nil, fmt.Errorf("codec: unknown message type %T", msg)
	}
}

// decodeBody parses a frame body (sans sentinels and length prefix) into a
// Message. Any structural problem is reported as a *DecodeError.
func decodeBody(body []byte) (Message, error) {
	if len(body) < 1 {
		return nil, &DecodeError{Reason: "empty body"}
	}
	tag := Tag(body[0])
	rest := body[1:]

	switch tag {
	case TagAddCode:
		queryID, rest, err := takeUint64(rest)
		if err != nil {
			return nil, err
		}
		if len(rest) != itemIDLen {
			return nil, &DecodeError{Reason: fmt.Sprintf("AddCode: want %d item bytes, got %d", itemIDLen, len(rest))}
		}
		return AddCode{QueryID: QueryID(queryID), Item: ItemID(rest)}, nil

	case TagAddList:
		queryID, rest, err := takeUint64(rest)
		if err != nil {
			return nil, err
		}
		if len(rest) != playlistIDLen {
			return nil, &DecodeError{Reason: fmt.Sprintf("AddList: want %d playlist bytes, got %d", playlistIDLen, len(rest))}
		}
		return AddList{QueryID: QueryID(queryID), Playlist: PlaylistID(rest)}, nil

	case TagRetry:
		if len(rest) != 0 {
			return nil, &DecodeError{Reason: "Retry: unexpected trailing bytes"}
		}
		return Retry{}, nil

	case TagDiscard:
		if len(rest) != 0 {
			return nil, &DecodeError{Reason: "Discard: unexpected trailing bytes"}
		}
		return Discard{}, nil

	case TagList:
		queryID, rest, err := takeUint64(rest)
		if err != nil {
			return nil, err
		}
		if len(rest) != 0 {
			return nil, &DecodeError{Reason: "List: unexpected trailing bytes"}
		}
		return List{QueryID: QueryID(queryID)}, nil

	case TagResponse:
		queryID, rest, err := takeUint64(rest)
		if err != nil {
			return nil, err
		}
		textLen, rest, err := takeUint32(rest)
		if err != nil {
			return nil, err
		}
		if uint32(len(rest)) != textLen {
			return nil, &DecodeError{Reason: fmt.Sprintf("Response: want %d text bytes, got %d", textLen, len(rest))}
		}
		return Response{QueryID: QueryID(queryID), Text: string(rest)}, nil

	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown tag %d", byte(tag))}
	}
}

func appendUint64(b []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(b, buf[:]...)
}

func appendUint32(b []byte, v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(b, buf[:]...)
}

func takeUint64(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, &DecodeError{Reason: "truncated uint64 field"}
	}
	return binary.BigEndian.Uint64(b[:8]), b[8:], nil
}

func takeUint32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, &DecodeError{Reason: "truncated uint32 field"}
	}
	return binary.BigEndian.Uint32(b[:4]), b[4:], nil
}
