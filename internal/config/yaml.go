package config

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ParseYAML reads a mapping of section name to a mapping of key to scalar
// value:
//
//	classifier_system:
//	  population size: 400
//	  exploration strategy: epsilon-greedy 0.5
//
// Section and key order is preserved.
func ParseYAML(data []byte) (*File, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	f := New()
	if doc.Kind == 0 {
		return f, nil
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, errors.New("yaml config must hold a single document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: yaml config must be a mapping of sections", root.Line)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		body := root.Content[i+1]
		f.section(name)
		if body.Kind == yaml.ScalarNode && body.Tag == "!!null" {
			continue
		}
		if body.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("line %d: section %q must be a mapping", body.Line, name)
		}
		for j := 0; j+1 < len(body.Content); j += 2 {
			key := body.Content[j].Value
			value := body.Content[j+1]
			if value.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: value of %q in section %q must be a scalar", value.Line, key, name)
			}
			f.Set(name, key, yamlScalar(value))
		}
	}
	return f, nil
}

// yaml 1.1 style booleans are written back as the on/off flags the
// sectioned format uses.
func yamlScalar(n *yaml.Node) string {
	if n.Tag == "!!bool" {
		var b bool
		if err := n.Decode(&b); err == nil {
			if b {
				return "on"
			}
			return "off"
		}
	}
	return n.Value
}

// WriteYAML emits the file as YAML with the same section and key order.
func (f *File) WriteYAML(w io.Writer) error {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range f.order {
		s := f.sections[name]
		body := &yaml.Node{Kind: yaml.MappingNode}
		for _, key := range s.keys {
			body.Content = append(body.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: key},
				&yaml.Node{Kind: yaml.ScalarNode, Value: s.values[key], Style: quoteStyle(s.values[key])},
			)
		}
		root.Content = append(root.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: name}, body)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}); err != nil {
		return err
	}
	return enc.Close()
}

// on and off stay quoted so readers do not turn them into booleans.
func quoteStyle(v string) yaml.Style {
	switch v {
	case "on", "off", "ON", "OFF":
		return yaml.DoubleQuotedStyle
	}
	return 0
}
