// Package dataset loads NLU training data from YAML files in the compact
// format: a top-level nlu list of intent blocks, each with a literal block
// of examples, one per line, with inline entity annotations.
package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/happyhackingspace/diet/nlu"
)

type file struct {
	Version string `yaml:"version"`
	NLU     []item `yaml:"nlu"`
}

type item struct {
	Intent   string `yaml:"intent"`
	Examples string `yaml:"examples"`
}

// annotation is the JSON form of an inline entity label:
// [value]{"entity": "city", "role": "destination", "group": "g1"}.
type annotation struct {
	Entity string `json:"entity"`
	Role   string `json:"role"`
	Group  string `json:"group"`
	Value  string `json:"value"`
}

// Load reads training examples from a YAML file.
func Load(path string) ([]*nlu.Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer f.Close()

	examples, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("dataset: parse %s: %w", path, err)
	}
	return examples, nil
}

// Parse reads training examples from YAML data.
func Parse(r io.Reader) ([]*nlu.Example, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var doc file
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.NLU) == 0 {
		return nil, fmt.Errorf("no nlu section found")
	}

	var out []*nlu.Example
	for _, block := range doc.NLU {
		if block.Intent == "" {
			return nil, fmt.Errorf("nlu block without an intent")
		}
		for _, line := range strings.Split(block.Examples, "\n") {
			line = strings.TrimSpace(line)
			line = strings.TrimPrefix(line, "- ")
			if line == "" || line == "-" {
				continue
			}
			e, err := parseExample(line, block.Intent)
			if err != nil {
				return nil, fmt.Errorf("intent %q: %w", block.Intent, err)
			}
			out = append(out, e)
		}
	}
	return out, nil
}

// parseExample resolves inline entity annotations in one example line and
// produces an example with character offsets into the cleaned text.
func parseExample(line, intent string) (*nlu.Example, error) {
	var text strings.Builder
	var entities []nlu.Entity

	for i := 0; i < len(line); {
		if line[i] != '[' {
			text.WriteByte(line[i])
			i++
			continue
		}

		close := strings.IndexByte(line[i:], ']')
		if close < 0 {
			return nil, fmt.Errorf("unterminated entity annotation in %q", line)
		}
		value := line[i+1 : i+close]
		i += close + 1

		var ann annotation
		switch {
		case i < len(line) && line[i] == '(':
			end := strings.IndexByte(line[i:], ')')
			if end < 0 {
				return nil, fmt.Errorf("unterminated entity label in %q", line)
			}
			ann.Entity = line[i+1 : i+end]
			i += end + 1
		case i < len(line) && line[i] == '{':
			end := strings.IndexByte(line[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unterminated entity attributes in %q", line)
			}
			raw := line[i : i+end+1]
			if err := json.Unmarshal([]byte(raw), &ann); err != nil {
				return nil, fmt.Errorf("malformed entity attributes %s: %w", raw, err)
			}
			i += end + 1
		default:
			// a literal bracket, not an annotation
			text.WriteByte('[')
			text.WriteString(value)
			text.WriteByte(']')
			continue
		}

		if ann.Entity == "" {
			return nil, fmt.Errorf("entity annotation on %q names no entity", value)
		}
		entityValue := ann.Value
		if entityValue == "" {
			entityValue = value
		}
		start := text.Len()
		text.WriteString(value)
		entities = append(entities, nlu.Entity{
			Start: start,
			End:   text.Len(),
			Value: entityValue,
			Type:  ann.Entity,
			Role:  ann.Role,
			Group: ann.Group,
		})
	}

	return &nlu.Example{
		Text:     text.String(),
		Intent:   intent,
		Entities: entities,
	}, nil
}
