package result

import (
	"bytes"
	"strconv"
	"strings"
)

// element is one depth-2 tuple of a named array.
type element struct {
	text     string
	complete bool
}

// arrayElements locates the first occurrence of "key", then the first '['
// following it, and returns every depth-2 element of that array.
//
// The scan tracks bracket depth only; it does not validate the rest of the
// payload. An element left open at the end of the buffer is returned with
// complete=false. found is false when the key or its array is absent.
func arrayElements(payload []byte, key string) (elems []element, found bool) {
	start, ok := arrayStart(payload, key)
	if !ok {
		return nil, false
	}

	depth := 0
	open := -1
	for i := start; i < len(payload); i++ {
		switch payload[i] {
		case '[':
			depth++
			if depth == 2 {
				open = i + 1
			}
		case ']':
			if depth == 2 && open >= 0 {
				elems = append(elems, element{text: string(payload[open:i]), complete: true})
				open = -1
			}
			depth--
			if depth == 0 {
				return elems, true
			}
		}
	}

	if depth >= 2 && open >= 0 {
		elems = append(elems, element{text: string(payload[open:]), complete: false})
	}
	return elems, true
}

// flatArray returns the integers of the first flat array following "key".
func flatArray(payload []byte, key string) ([]int, bool) {
	start, ok := arrayStart(payload, key)
	if !ok {
		return nil, false
	}
	end := bytes.IndexByte(payload[start:], ']')
	if end < 0 {
		return nil, false
	}
	inner := payload[start+1 : start+end]
	if bytes.IndexByte(inner, '[') >= 0 {
		return nil, false
	}
	vals, err := splitInts(string(inner))
	if err != nil {
		return nil, false
	}
	return vals, true
}

func arrayStart(payload []byte, key string) (int, bool) {
	k := keyIndex(payload, key)
	if k < 0 {
		return 0, false
	}
	rel := bytes.IndexByte(payload[k:], '[')
	if rel < 0 {
		return 0, false
	}
	return k + rel, true
}

func keyIndex(payload []byte, key string) int {
	needle := []byte(`"` + key + `"`)
	i := bytes.Index(payload, needle)
	if i < 0 {
		return -1
	}
	return i + len(needle)
}

// splitInts parses a comma-separated list of integers.
func splitInts(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Field extracts a scalar value for key from a text payload. String values
// are returned without quotes; numbers and literals are returned as written.
//
// Example:
//
//	v, ok := result.Field([]byte(`{"code":0,"data":{"software":"2024.08.26"}}`), "software")
//	// v == "2024.08.26"
func Field(payload []byte, key string) (string, bool) {
	i := keyIndex(payload, key)
	if i < 0 {
		return "", false
	}
	i = skipSpace(payload, i)
	if i >= len(payload) || payload[i] != ':' {
		return "", false
	}
	i = skipSpace(payload, i+1)
	if i >= len(payload) {
		return "", false
	}

	if payload[i] == '"' {
		var b strings.Builder
		for j := i + 1; j < len(payload); j++ {
			switch c := payload[j]; c {
			case '\\':
				if j+1 < len(payload) {
					j++
					b.WriteByte(payload[j])
				}
			case '"':
				return b.String(), true
			default:
				b.WriteByte(c)
			}
		}
		return "", false
	}

	end := i
	for end < len(payload) && strings.IndexByte(",}]\r\n", payload[end]) < 0 {
		end++
	}
	v := strings.TrimSpace(string(payload[i:end]))
	if v == "" || v[0] == '{' || v[0] == '[' {
		return "", false
	}
	return v, true
}

// IntField extracts an integer value for key.
func IntField(payload []byte, key string) (int, bool) {
	s, ok := Field(payload, key)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

// IntFields returns every integer value stored under key, in order.
// Used for listings such as {"models":[{"id":1},{"id":3}]}.
func IntFields(payload []byte, key string) []int {
	var out []int
	for {
		i := keyIndex(payload, key)
		if i < 0 {
			return out
		}
		if v, ok := IntField(payload, key); ok {
			out = append(out, v)
		}
		payload = payload[i:]
	}
}

func skipSpace(b []byte, i int) int {
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\r' || b[i] == '\n') {
		i++
	}
	return i
}
