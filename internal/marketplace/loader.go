package marketplace

import (
	"bytes"
	"fmt"
	"os"

	"github.com/maltedev/domeme-scraper/internal/models"
	"gopkg.in/yaml.v3"
)

type overrideFile struct {
	Profiles map[string]yaml.Node `yaml:"profiles"`
}

// LoadFile applies the locator overrides in path on top of the built-in
// profiles. Fields absent from the file keep their defaults. Lists present
// in the file replace the default list, and a binding present in the file
// replaces the whole default binding, so a default Forbid never survives
// an override that only names Require.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read locator file: %w", err)
	}
	return Load(data)
}

func Load(data []byte) (*Registry, error) {
	var file overrideFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse locator file: %w", err)
	}

	reg := Defaults()
	for name, node := range file.Profiles {
		source := models.Source(name)
		base, err := reg.Get(source)
		if err != nil {
			base = &Profile{}
		}
		if err := node.Decode(base); err != nil {
			return nil, fmt.Errorf("profile %s: %w", name, err)
		}
		base.Source = source
		if err := base.Validate(); err != nil {
			return nil, err
		}
		reg.Put(base)
	}
	return reg, nil
}
