package bencode

import (
	"strconv"

	"github.com/pkg/errors"
)

// Decode parses exactly one Bencode value from data and fails with
// ErrMalformed if trailing bytes remain.
func Decode(data []byte) (Value, error) {
	v, pos, err := decodeValue(data, 0)
	if err != nil {
		return Value{}, err
	}
	if pos != len(data) {
		return Value{}, errors.Wrapf(ErrMalformed, "trailing bytes after top-level value at offset %d", pos)
	}
	return v, nil
}

// DecodeDictWithSpans decodes a top-level Bencode dictionary and, alongside
// the parsed Dict, returns the raw encoded byte span of each value — the
// cursor-tracked strategy from the design notes, used so callers (chiefly
// torrentfile) can hash the original "info" bytes without re-encoding them.
func DecodeDictWithSpans(data []byte) (*Dict, map[string][]byte, error) {
	if len(data) == 0 || data[0] != 'd' {
		return nil, nil, errors.Wrap(ErrMalformed, "expected top-level dictionary")
	}
	dict, spans, pos, err := decodeDictWithSpans(data, 0)
	if err != nil {
		return nil, nil, err
	}
	if pos != len(data) {
		return nil, nil, errors.Wrapf(ErrMalformed, "trailing bytes after top-level dictionary at offset %d", pos)
	}
	return dict, spans, nil
}

// DecodePrefix parses one Bencode value from the start of data and returns
// it along with the number of bytes consumed, tolerating trailing bytes.
// Used where a value is immediately followed by raw data whose boundary is
// the value's own encoded length — the ut_metadata response framing.
func DecodePrefix(data []byte) (Value, int, error) {
	return decodeValue(data, 0)
}

func decodeValue(data []byte, pos int) (Value, int, error) {
	if pos >= len(data) {
		return Value{}, pos, errors.Wrap(ErrMalformed, "unexpected end of input")
	}

	switch c := data[pos]; {
	case c >= '0' && c <= '9':
		s, newPos, err := decodeString(data, pos)
		if err != nil {
			return Value{}, pos, err
		}
		return String(s), newPos, nil

	case c == 'i':
		n, newPos, err := decodeInt(data, pos)
		if err != nil {
			return Value{}, pos, err
		}
		return Int(n), newPos, nil

	case c == 'l':
		items, newPos, err := decodeList(data, pos)
		if err != nil {
			return Value{}, pos, err
		}
		return List(items), newPos, nil

	case c == 'd':
		dict, _, newPos, err := decodeDictWithSpans(data, pos)
		if err != nil {
			return Value{}, pos, err
		}
		return DictOf(dict), newPos, nil

	default:
		return Value{}, pos, errors.Wrapf(ErrMalformed, "unrecognized bencode tag %q at offset %d", c, pos)
	}
}

func decodeString(data []byte, pos int) ([]byte, int, error) {
	colon := pos
	for colon < len(data) && data[colon] != ':' {
		colon++
	}
	if colon >= len(data) {
		return nil, pos, errors.Wrap(ErrMalformed, "byte-string length missing colon terminator")
	}

	length, err := strconv.Atoi(string(data[pos:colon]))
	if err != nil || length < 0 {
		return nil, pos, errors.Wrapf(ErrMalformed, "invalid byte-string length %q", data[pos:colon])
	}

	start := colon + 1
	end := start + length
	if end > len(data) {
		return nil, pos, errors.Wrap(ErrMalformed, "byte-string runs past end of input")
	}
	return data[start:end], end, nil
}

func decodeInt(data []byte, pos int) (int64, int, error) {
	end := pos + 1
	for end < len(data) && data[end] != 'e' {
		end++
	}
	if end >= len(data) {
		return 0, pos, errors.Wrap(ErrMalformed, "integer missing terminating 'e'")
	}
	digits := string(data[pos+1 : end])
	if digits == "" || digits == "-" {
		return 0, pos, errors.Wrapf(ErrMalformed, "empty integer literal %q", digits)
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, pos, errors.Wrapf(ErrMalformed, "invalid integer literal %q", digits)
	}
	return n, end + 1, nil
}

func decodeList(data []byte, pos int) ([]Value, int, error) {
	cur := pos + 1
	items := make([]Value, 0)
	for {
		if cur >= len(data) {
			return nil, pos, errors.Wrap(ErrMalformed, "list missing terminating 'e'")
		}
		if data[cur] == 'e' {
			return items, cur + 1, nil
		}
		v, newPos, err := decodeValue(data, cur)
		if err != nil {
			return nil, pos, err
		}
		items = append(items, v)
		cur = newPos
	}
}

func decodeDictWithSpans(data []byte, pos int) (*Dict, map[string][]byte, int, error) {
	cur := pos + 1
	dict := NewDict()
	spans := make(map[string][]byte)
	for {
		if cur >= len(data) {
			return nil, nil, pos, errors.Wrap(ErrMalformed, "dictionary missing terminating 'e'")
		}
		if data[cur] == 'e' {
			return dict, spans, cur + 1, nil
		}

		keyBytes, afterKey, err := decodeString(data, cur)
		if err != nil {
			return nil, nil, pos, errors.Wrap(ErrMalformed, "dictionary key is not a byte string")
		}
		key := string(keyBytes)
		cur = afterKey

		valueStart := cur
		v, afterValue, err := decodeValue(data, cur)
		if err != nil {
			return nil, nil, pos, err
		}
		dict.Set(key, v)
		spans[key] = data[valueStart:afterValue]
		cur = afterValue
	}
}
