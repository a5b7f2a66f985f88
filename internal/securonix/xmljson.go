package securonix

import (
	"encoding/json"
	"fmt"

	"github.com/clbanning/mxj/v2"
)

// decodeXML transcodes a vendor XML response into the same generic map shape
// decodeJSON produces. A handful of legacy endpoints (policies, resource
// groups, users) still answer XML only.
func decodeXML(op string, body []byte) (map[string]any, error) {
	m, err := mxj.NewMapXml(body)
	if err != nil {
		return nil, fmt.Errorf("securonix: %s: response is not valid XML: %w; body: %s", op, err, truncate(string(body), 512))
	}
	return map[string]any(m), nil
}

// dig walks nested maps by key, returning nil as soon as a step is missing
// or not a map.
func dig(m map[string]any, keys ...string) any {
	var cur any = m
	for _, k := range keys {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = mm[k]
	}
	return cur
}

// asMapList normalizes a value that may be a list of objects or a single
// object into a slice. XML transcoding collapses one-element lists into the
// bare element, so both shapes occur.
func asMapList(v any) []map[string]any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case []map[string]any:
		return t
	case map[string]any:
		return []map[string]any{t}
	default:
		return nil
	}
}

// asStringList normalizes a value that may be a list or a single scalar into
// a string slice.
func asStringList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s := asString(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	default:
		if s := asString(v); s != "" {
			return []string{s}
		}
		return nil
	}
}

// asString renders a scalar as a string. Vendor IDs arrive as either JSON
// strings or numbers depending on the endpoint.
func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case json.Number:
		f, _ := t.Float64()
		return f
	case float64:
		return t
	default:
		return 0
	}
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case json.Number:
		n, _ := t.Int64()
		return n
	case float64:
		return int64(t)
	case int64:
		return t
	default:
		return 0
	}
}
