package jsonld

import (
	"encoding/json"
	"strconv"
)

// Node is one object of a compacted JSON-LD graph.
// Keys are compact IRIs such as "as:actor" plus the "@id" and "@type" keywords.
type Node = map[string]interface{}

const (
	IDKey    = "@id"
	TypeKey  = "@type"
	ValueKey = "@value"
)

// Element returns the raw value of element, or nil.
func Element(n Node, element string) interface{} {
	if n == nil {
		return nil
	}
	return n[element]
}

// FetchElement returns the "@id" of element.
// A plain string value is returned as is, and a list yields its first entry.
func FetchElement(n Node, element string) string {
	return FetchElementKey(n, element, IDKey)
}

// FetchValue returns the "@value" of element, for typed literals like dates.
func FetchValue(n Node, element string) string {
	return FetchElementKey(n, element, ValueKey)
}

// FetchElementKey returns key from the object stored at element.
func FetchElementKey(n Node, element, key string) string {
	return toString(elementKey(n, element, key))
}

func elementKey(n Node, element, key string) interface{} {
	switch v := Element(n, element).(type) {
	case nil:
		return nil
	case map[string]interface{}:
		return v[key]
	case []interface{}:
		for _, e := range v {
			if m, ok := e.(map[string]interface{}); ok {
				if val, ok := m[key]; ok {
					return val
				}
			} else if e != nil {
				return e
			}
		}
		return nil
	default:
		return v
	}
}

// FetchTypedElement returns key from the object at element, but only when
// that object's typeKey equals typeValue. A plain string never matches.
func FetchTypedElement(n Node, element, key, typeKey, typeValue string) string {
	for _, m := range FetchNodes(n, element) {
		if FetchString(m, typeKey) != typeValue {
			continue
		}
		if s := FetchElementKey(m, key, IDKey); s != "" {
			return s
		}
		if s := FetchElementKey(m, key, ValueKey); s != "" {
			return s
		}
	}
	return ""
}

// FetchString returns element when it is a scalar, or its "@id"/"@value" when it is an object.
func FetchString(n Node, element string) string {
	if s := FetchElement(n, element); s != "" {
		return s
	}
	return FetchValue(n, element)
}

// FetchBool reads a boolean that may be a bare literal or a typed value.
func FetchBool(n Node, element string) bool {
	v := Element(n, element)
	if m, ok := v.(map[string]interface{}); ok {
		v = m[ValueKey]
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	}
	return false
}

// FetchNode returns the first object stored at element.
func FetchNode(n Node, element string) Node {
	nodes := FetchNodes(n, element)
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

// FetchNodes returns every object stored at element, skipping plain strings.
func FetchNodes(n Node, element string) []Node {
	var nodes []Node
	for _, e := range asList(Element(n, element)) {
		if m, ok := e.(map[string]interface{}); ok {
			nodes = append(nodes, m)
		}
	}
	return nodes
}

// FetchElementArray returns every entry of element. Objects carrying key
// are replaced by that key's value, other objects are returned whole.
func FetchElementArray(n Node, element, key string) []interface{} {
	var list []interface{}
	for _, e := range asList(Element(n, element)) {
		if m, ok := e.(map[string]interface{}); ok {
			if v, ok := m[key]; ok {
				list = append(list, v)
				continue
			}
		}
		if e != nil {
			list = append(list, e)
		}
	}
	return list
}

// FetchIDs returns the string ids stored at element.
func FetchIDs(n Node, element string) []string {
	var ids []string
	for _, e := range FetchElementArray(n, element, IDKey) {
		if s, ok := e.(string); ok && s != "" {
			ids = append(ids, s)
		}
	}
	return ids
}

// IsObject reports whether element holds an embedded object rather than
// a bare reference like {"@id": "..."}.
func IsObject(n Node, element string) bool {
	for k := range FetchNode(n, element) {
		if k != IDKey {
			return true
		}
	}
	return false
}

func asList(v interface{}) []interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return t
	default:
		return []interface{}{t}
	}
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}
