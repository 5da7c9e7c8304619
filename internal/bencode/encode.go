package bencode

import (
	"bytes"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// Encode renders v as canonical Bencode: dictionary keys are always emitted
// in ascending lexicographic byte order, regardless of the order they were
// set in (the Dict.keys insertion order is ignored here on purpose).
func Encode(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case KindString:
		buf.WriteString(strconv.Itoa(len(v.str)))
		buf.WriteByte(':')
		buf.Write(v.str)

	case KindInt:
		buf.WriteByte('i')
		buf.WriteString(strconv.FormatInt(v.num, 10))
		buf.WriteByte('e')

	case KindList:
		buf.WriteByte('l')
		for _, item := range v.list {
			if err := encodeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte('e')

	case KindDict:
		buf.WriteByte('d')
		keys := append([]string(nil), v.dict.keys...)
		sort.Strings(keys)
		for _, k := range keys {
			val := v.dict.values[k]
			buf.WriteString(strconv.Itoa(len(k)))
			buf.WriteByte(':')
			buf.WriteString(k)
			if err := encodeValue(buf, val); err != nil {
				return err
			}
		}
		buf.WriteByte('e')

	default:
		return errors.Wrapf(ErrMalformed, "cannot encode value of kind %d", v.kind)
	}
	return nil
}

// EncodeDict is a convenience for the common case of encoding a *Dict.
func EncodeDict(d *Dict) ([]byte, error) {
	return Encode(DictOf(d))
}
