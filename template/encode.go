package template

import (
	"bytes"
	"encoding/json"
	"sort"

	"gopkg.in/yaml.v3"

	"infrastructure/errors"
)

// orderedMap is a string keyed map encoded in insertion order.
type orderedMap struct {
	keys   []string
	values map[string]any
}

func newOrderedMap() *orderedMap {
	return &orderedMap{values: make(map[string]any)}
}

// Set adds or replaces key. A replaced key keeps its position.
func (m *orderedMap) Set(key string, value any) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

func (m *orderedMap) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *orderedMap) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *orderedMap) Len() int { return len(m.keys) }

// Sort orders the keys after the first n alphabetically.
func (m *orderedMap) Sort(n int) {
	if n < len(m.keys) {
		sort.Strings(m.keys[n:])
	}
}

func (m *orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(m.values[k])
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

func (m *orderedMap) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range m.keys {
		val := &yaml.Node{}
		if err := val.Encode(m.values[k]); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			val,
		)
	}
	return node, nil
}

// JSON encodes the template with two space indentation.
func (t *Template) JSON() ([]byte, error) {
	out, err := json.MarshalIndent(t.sections(), "", "  ")
	if err != nil {
		return nil, errors.New(errors.ErrRender, "error encoding template as JSON", map[string]interface{}{}, err)
	}
	return append(out, '\n'), nil
}

// YAML encodes the template in block style.
func (t *Template) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(t.sections()); err != nil {
		return nil, errors.New(errors.ErrRender, "error encoding template as YAML", map[string]interface{}{}, err)
	}
	if err := enc.Close(); err != nil {
		return nil, errors.New(errors.ErrRender, "error encoding template as YAML", map[string]interface{}{}, err)
	}
	return buf.Bytes(), nil
}

// Encode renders the template in the named format, json or yaml.
func (t *Template) Encode(format string) ([]byte, error) {
	switch format {
	case "json", "":
		return t.JSON()
	case "yaml", "yml":
		return t.YAML()
	}
	return nil, errors.New(errors.ErrRender, "unknown template format",
		map[string]interface{}{
			"format": format,
		}, nil)
}
