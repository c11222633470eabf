package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Values maps variable names to replacement text and remembers insertion
// order, which Fill relies on. The zero value is an empty map ready to use.
type Values struct {
	keys []string
	m    map[string]string
}

// NewValues builds Values from alternating name/value pairs. A trailing
// unpaired name is set to the empty string.
func NewValues(pairs ...string) Values {
	var v Values
	for i := 0; i < len(pairs); i += 2 {
		val := ""
		if i+1 < len(pairs) {
			val = pairs[i+1]
		}
		v.Set(pairs[i], val)
	}
	return v
}

// ValuesFor returns Values with every declared variable set to "" in
// declaration order. Selecting a new template resets its inputs this way.
func ValuesFor(variables []string) Values {
	var v Values
	for _, name := range variables {
		v.Set(name, "")
	}
	return v
}

// Set assigns a value. An existing key keeps its original position.
func (v *Values) Set(key, value string) {
	if v.m == nil {
		v.m = make(map[string]string)
	}
	if _, ok := v.m[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.m[key] = value
}

// Get returns the value for key.
func (v Values) Get(key string) (string, bool) {
	val, ok := v.m[key]
	return val, ok
}

// Keys returns the keys in insertion order.
func (v Values) Keys() []string {
	return append([]string(nil), v.keys...)
}

// Len returns the number of entries.
func (v Values) Len() int {
	return len(v.keys)
}

// Map returns an unordered copy.
func (v Values) Map() map[string]string {
	out := make(map[string]string, len(v.keys))
	for _, k := range v.keys {
		out[k] = v.m[k]
	}
	return out
}

// Clone returns an independent copy.
func (v Values) Clone() Values {
	var out Values
	for _, k := range v.keys {
		out.Set(k, v.m[k])
	}
	return out
}

// MarshalJSON encodes the entries as an object in insertion order.
func (v Values) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range v.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(v.m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object of strings, keeping document order.
func (v *Values) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*v = Values{}
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("values must be a JSON object")
	}

	var out Values
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("values key must be a string")
		}
		var val string
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("value for %q must be a string: %w", key, err)
		}
		out.Set(key, val)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*v = out
	return nil
}

// UnmarshalYAML decodes a mapping of scalars, keeping document order.
func (v *Values) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("values must be a mapping")
	}
	var out Values
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		if valNode.Kind != yaml.ScalarNode {
			return fmt.Errorf("value for %q must be a scalar", keyNode.Value)
		}
		out.Set(keyNode.Value, valNode.Value)
	}
	*v = out
	return nil
}
