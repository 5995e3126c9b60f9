package memcache

import (
	"encoding/json"
	"strconv"
)

// Encoding bits are stored as the item's client flags (the F token on ms,
// returned via the f flag on mg) so a later Get knows how to turn the raw
// bytes back into a Go value without a side-channel. Mirrors the bitmask a
// mixed serializer uses to multiplex str/int/pickle/binary representations
// over a single flags integer, with compression layered in as a bit.
type Encoding uint32

const (
	EncodingString Encoding = 0
	EncodingJSON   Encoding = 1 << iota
	EncodingInt
	EncodingBinary
	EncodingCompressed
)

// Serializer turns arbitrary Go values into bytes plus an Encoding tag, and
// back. The default JSONSerializer covers string/int/[]byte/JSON-for-everything-else;
// callers needing a different wire format for the "everything else" bucket
// can provide their own Serializer via WithSerializer.
type Serializer interface {
	Marshal(v any) (data []byte, encoding Encoding, err error)
	Unmarshal(data []byte, encoding Encoding, v any) error
}

// JSONSerializer implements Serializer, falling back to encoding/json for
// values that aren't already string, []byte, int or int64. JSON is
// the typed-value format every repo in this corpus that serializes cached
// values reaches for; there's no grounded alternative (e.g. gob, a binary
// schema format) to prefer here.
type JSONSerializer struct{}

func (JSONSerializer) Marshal(v any) ([]byte, Encoding, error) {
	switch val := v.(type) {
	case []byte:
		return val, EncodingBinary, nil
	case string:
		return []byte(val), EncodingString, nil
	case int:
		return []byte(strconv.Itoa(val)), EncodingInt, nil
	case int64:
		return []byte(strconv.FormatInt(val, 10)), EncodingInt, nil
	default:
		data, err := json.Marshal(v)
		return data, EncodingJSON, err
	}
}

func (JSONSerializer) Unmarshal(data []byte, encoding Encoding, v any) error {
	switch encoding {
	case EncodingBinary:
		if p, ok := v.(*[]byte); ok {
			*p = data
			return nil
		}
	case EncodingString:
		if p, ok := v.(*string); ok {
			*p = string(data)
			return nil
		}
	case EncodingInt:
		if p, ok := v.(*int); ok {
			n, err := strconv.Atoi(string(data))
			if err != nil {
				return err
			}
			*p = n
			return nil
		}
		if p, ok := v.(*int64); ok {
			n, err := strconv.ParseInt(string(data), 10, 64)
			if err != nil {
				return err
			}
			*p = n
			return nil
		}
	}
	return json.Unmarshal(data, v)
}
