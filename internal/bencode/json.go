package bencode

import (
	"bytes"
	"encoding/json"
)

// MarshalJSON renders a Value the way the "decode" command surfaces it:
// byte-strings as JSON strings (bencode strings are arbitrary bytes, but the
// CLI only ever decodes text in practice), integers as JSON numbers, lists
// as arrays, dicts as objects in their insertion order.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(string(v.str))
	case KindInt:
		return json.Marshal(v.num)
	case KindList:
		return json.Marshal(v.list)
	case KindDict:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range v.dict.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(keyJSON)
			buf.WriteByte(':')
			valJSON, err := v.dict.values[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(valJSON)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return []byte("null"), nil
	}
}
