package crypto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Canonical produces the canonical JSON encoding used for hashing and
// signing: object keys sorted lexicographically at every nesting level, no
// insignificant whitespace, and absent optional fields omitted (struct
// fields must carry `,omitempty` so they vanish rather than serialize as
// null). Integers round-trip through json.Number so large token amounts are
// never distorted by a float64 conversion.
//
// v is first passed through the standard marshaller (so struct tags,
// omitempty, and RawMessage payloads are honored) and the result is then
// re-encoded with sorted keys.
func Canonical(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical: decode: %w", err)
	}
	var buf bytes.Buffer
	if err := encodeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HashCanonical returns the hex-encoded SHA-256 hash of v's canonical
// encoding.
func HashCanonical(v any) (string, error) {
	data, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return Hash(data), nil
}

func encodeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(val.String())
	case string:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonical: unsupported type %T", v)
	}
	return nil
}
