package keys

import (
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-yaml"
)

// Manifest names the key sets of the channels a deployment shares between
// programs, so both sides can Attach by name:
//
//	channels:
//	  events:
//	    poison_guard: 1193046
//	    available: 1193047
//	    taken: 1193048
//	    segment: 1193049
type Manifest struct {
	Channels map[string]Keys `yaml:"channels"`
}

// ParseManifest decodes and validates a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("keys: parse manifest: %w", err)
	}
	for name, k := range m.Channels {
		if err := k.Validate(); err != nil {
			return nil, fmt.Errorf("keys: channel %q: %w", name, err)
		}
	}
	return m, nil
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

// Lookup returns the keys registered under name.
func (m *Manifest) Lookup(name string) (Keys, error) {
	k, ok := m.Channels[name]
	if !ok {
		return Keys{}, fmt.Errorf("keys: no channel %q in manifest", name)
	}
	return k, nil
}

// Add registers k under name, replacing any previous entry.
func (m *Manifest) Add(name string, k Keys) error {
	if err := k.Validate(); err != nil {
		return err
	}
	if m.Channels == nil {
		m.Channels = make(map[string]Keys)
	}
	m.Channels[name] = k
	return nil
}

// Names returns the channel names in sorted order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Channels))
	for name := range m.Channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Marshal encodes the manifest as YAML.
func (m *Manifest) Marshal() ([]byte, error) {
	return yaml.Marshal(m)
}
