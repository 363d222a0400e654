package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Snippet is one trigger and its replacement template.
type Snippet struct {
	Trigger  string
	Template string
}

// Snippets is the [strings] section in document order. A trigger appears at
// most once; setting an existing trigger keeps its position and replaces the
// template.
type Snippets []Snippet

// Get returns the template for trigger.
func (s Snippets) Get(trigger string) (string, bool) {
	for _, sn := range s {
		if sn.Trigger == trigger {
			return sn.Template, true
		}
	}
	return "", false
}

// Set adds or replaces trigger and returns the updated list.
func (s Snippets) Set(trigger, template string) Snippets {
	for i := range s {
		if s[i].Trigger == trigger {
			s[i].Template = template
			return s
		}
	}
	return append(s, Snippet{Trigger: trigger, Template: template})
}

// Delete removes trigger and reports whether it was present.
func (s Snippets) Delete(trigger string) (Snippets, bool) {
	for i := range s {
		if s[i].Trigger == trigger {
			return append(s[:i:i], s[i+1:]...), true
		}
	}
	return s, false
}

// Triggers returns the triggers in document order.
func (s Snippets) Triggers() []string {
	out := make([]string, len(s))
	for i, sn := range s {
		out[i] = sn.Trigger
	}
	return out
}

// UnmarshalTOML implements toml.Unmarshaler. The decoder hands over a map, so
// entries come out sorted here; loadConfigFromFile restores document order
// from the decode metadata.
func (s *Snippets) UnmarshalTOML(data any) error {
	table, ok := data.(map[string]any)
	if !ok {
		return fmt.Errorf("strings: expected a table, got %T", data)
	}

	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Snippets, 0, len(keys))
	for _, k := range keys {
		tpl, ok := table[k].(string)
		if !ok {
			return fmt.Errorf("strings.%s: expected a string, got %T", k, table[k])
		}
		out = append(out, Snippet{Trigger: k, Template: tpl})
	}
	*s = out
	return nil
}

// reorder sorts s to follow order. Triggers missing from order keep their
// relative position at the end.
func (s Snippets) reorder(order []string) {
	rank := make(map[string]int, len(order))
	for i, k := range order {
		if _, seen := rank[k]; !seen {
			rank[k] = i
		}
	}
	sort.SliceStable(s, func(i, j int) bool {
		ri, iok := rank[s[i].Trigger]
		rj, jok := rank[s[j].Trigger]
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		default:
			return false
		}
	})
}

// tomlOrder extracts the [strings] key order from decode metadata.
func tomlOrder(md toml.MetaData) []string {
	var order []string
	for _, key := range md.Keys() {
		if len(key) == 2 && key[0] == "strings" {
			order = append(order, key[1])
		}
	}
	return order
}

// UnmarshalJSON reads a JSON object keeping member order.
func (s *Snippets) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("strings: %w", err)
	}
	if tok == nil {
		*s = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("strings: expected an object")
	}

	var out Snippets
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("strings: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("strings: unexpected token %v", tok)
		}
		var tpl string
		if err := dec.Decode(&tpl); err != nil {
			return fmt.Errorf("strings.%s: %w", key, err)
		}
		out = out.Set(key, tpl)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("strings: %w", err)
	}

	if out == nil {
		out = Snippets{}
	}
	*s = out
	return nil
}

// MarshalJSON writes a JSON object in list order.
func (s Snippets) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, sn := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(sn.Trigger)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(sn.Template)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalYAML reads a YAML mapping keeping node order.
func (s *Snippets) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*s = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("strings: expected a mapping at line %d", node.Line)
	}

	out := Snippets{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var key, tpl string
		if err := node.Content[i].Decode(&key); err != nil {
			return fmt.Errorf("strings: %w", err)
		}
		if err := node.Content[i+1].Decode(&tpl); err != nil {
			return fmt.Errorf("strings.%s: %w", key, err)
		}
		out = out.Set(key, tpl)
	}
	*s = out
	return nil
}

// MarshalYAML writes a YAML mapping in list order.
func (s Snippets) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, sn := range s {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: sn.Trigger},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: sn.Template},
		)
	}
	return node, nil
}

// encodeTOML writes s as a [strings] table in list order.
func (s Snippets) encodeTOML(buf *bytes.Buffer) error {
	buf.WriteString("\n[strings]\n")
	for _, sn := range s {
		if err := toml.NewEncoder(buf).Encode(map[string]string{sn.Trigger: sn.Template}); err != nil {
			return fmt.Errorf("encode snippet %q: %w", sn.Trigger, err)
		}
	}
	return nil
}
