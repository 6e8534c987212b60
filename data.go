package handlebars

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// DataFromJSON decodes a JSON document into a Value, keeping object keys in
// document order so {{#each}} over them follows the source.
func DataFromJSON(b []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	v, err := decodeJSON(dec)
	if err != nil {
		return Null, fmt.Errorf("decoding JSON data: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Null, errors.New("decoding JSON data: trailing content after top-level value")
	}
	return v, nil
}

func decodeJSON(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Null, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m := NewMap()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Null, err
				}
				key, ok := kt.(string)
				if !ok {
					return Null, fmt.Errorf("unexpected object key %v", kt)
				}
				v, err := decodeJSON(dec)
				if err != nil {
					return Null, err
				}
				m.set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return Null, err
			}
			return MapValue(m), nil
		case '[':
			var list []Value
			for dec.More() {
				v, err := decodeJSON(dec)
				if err != nil {
					return Null, err
				}
				list = append(list, v)
			}
			if _, err := dec.Token(); err != nil {
				return Null, err
			}
			return ListValue(list), nil
		}
		return Null, fmt.Errorf("unexpected delimiter %v", t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Null, err
		}
		return NumberValue(f), nil
	case string:
		return StringValue(t), nil
	case bool:
		return BoolValue(t), nil
	case nil:
		return Null, nil
	}
	return Null, fmt.Errorf("unexpected token %v", tok)
}

// DataFromYAML decodes a YAML document into a Value, keeping mapping keys in
// document order. Aliases are expanded.
func DataFromYAML(b []byte) (Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return Null, fmt.Errorf("decoding YAML data: %w", err)
	}
	v, err := yamlValue(&doc)
	if err != nil {
		return Null, fmt.Errorf("decoding YAML data: %w", err)
	}
	return v, nil
}

func yamlValue(n *yaml.Node) (Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null, nil
		}
		return yamlValue(n.Content[0])
	case yaml.AliasNode:
		return yamlValue(n.Alias)
	case yaml.MappingNode:
		m := NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := yamlValue(n.Content[i+1])
			if err != nil {
				return Null, err
			}
			m.set(n.Content[i].Value, v)
		}
		return MapValue(m), nil
	case yaml.SequenceNode:
		list := make([]Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := yamlValue(c)
			if err != nil {
				return Null, err
			}
			list = append(list, v)
		}
		return ListValue(list), nil
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!null":
			return Null, nil
		case "!!bool", "!!int", "!!float":
			var v any
			if err := n.Decode(&v); err != nil {
				return Null, fmt.Errorf("line %d: %w", n.Line, err)
			}
			return ValueOf(v), nil
		}
		return StringValue(n.Value), nil
	}
	return Null, fmt.Errorf("line %d: unsupported YAML node", n.Line)
}
