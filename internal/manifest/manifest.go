// Package manifest parses clip.yaml manifests, the declarative description of
// a clip type loaded on demand from a source.
//
//	base: layout/page      # optional base type
//	template: main         # default template name, relative to the clip
//	styles: |              # optional inline styles
//	  .card { color: red }
//	data:                  # default options
//	  title: Hello
package manifest

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/clips/internal/registry"
)

// FileName is the manifest file looked up at "<name>/clip.yaml".
const FileName = "clip.yaml"

// Manifest describes a clip type.
type Manifest struct {
	Base     string         `yaml:"base"`
	Template string         `yaml:"template"`
	Styles   string         `yaml:"styles"`
	Data     map[string]any `yaml:"data"`
}

// Path returns the manifest path for a clip name.
func Path(name string) string {
	return name + "/" + FileName
}

// Parse decodes and validates a manifest. Unknown fields are rejected.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", FileName, err)
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks field values.
func (m *Manifest) Validate() error {
	m.Base = strings.TrimSpace(m.Base)
	m.Template = strings.TrimSpace(m.Template)

	if m.Base != "" {
		if err := registry.ValidateName(m.Base); err != nil {
			return fmt.Errorf("%s: base: %w", FileName, err)
		}
	}
	if m.Template != "" {
		if err := registry.ValidateName(m.Template); err != nil {
			return fmt.Errorf("%s: template: %w", FileName, err)
		}
	}
	return nil
}

// Marshal encodes the manifest as YAML.
func (m *Manifest) Marshal() ([]byte, error) {
	return yaml.Marshal(m)
}
