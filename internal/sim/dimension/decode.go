package dimension

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBase = "https://voxelparallax.ai/schemas/"

type Kind string

const (
	KindDimension Kind = "dimension"
	KindRegion    Kind = "region"
	KindBiome     Kind = "biome"
)

var (
	schemaOnce sync.Once
	schemas    map[Kind]*jsonschema.Schema
	schemaErr  error
)

func compileSchemas() (map[Kind]*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		for _, name := range []string{"stream", "common", "dimension", "region", "biome"} {
			b, err := schemaFS.ReadFile("schemas/" + name + ".json")
			if err != nil {
				schemaErr = err
				return
			}
			if err := c.AddResource(schemaBase+name+".json", bytes.NewReader(b)); err != nil {
				schemaErr = fmt.Errorf("schema %s: %w", name, err)
				return
			}
		}
		out := map[Kind]*jsonschema.Schema{}
		for _, k := range []Kind{KindDimension, KindRegion, KindBiome} {
			s, err := c.Compile(schemaBase + string(k) + ".json")
			if err != nil {
				schemaErr = fmt.Errorf("schema %s: %w", k, err)
				return
			}
			out[k] = s
		}
		schemas = out
	})
	return schemas, schemaErr
}

type document interface {
	Normalize()
	Validate() error
}

// ValidateDocument checks a raw YAML document against the schema for kind.
func ValidateDocument(kind Kind, raw []byte) error {
	all, err := compileSchemas()
	if err != nil {
		return err
	}
	s, ok := all[kind]
	if !ok {
		return fmt.Errorf("unknown document kind %q", kind)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%s: parse: %w", kind, err)
	}
	// Round-trip through JSON so the validator sees plain JSON values.
	js, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	var v any
	if err := json.Unmarshal(js, &v); err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	return nil
}

func decode(kind Kind, raw []byte, out document) error {
	if err := ValidateDocument(kind, raw); err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode: %w", kind, err)
	}
	out.Normalize()
	return out.Validate()
}

// DecodeDimension parses a dimension document. id names it when the
// document has no name of its own.
func DecodeDimension(id string, raw []byte) (*Dimension, error) {
	d := &Dimension{}
	if err := decode(KindDimension, raw, &named{d, &d.Name, id}); err != nil {
		return nil, err
	}
	return d, nil
}

func DecodeRegion(id string, raw []byte) (*Region, error) {
	r := &Region{}
	if err := decode(KindRegion, raw, &named{r, &r.Name, id}); err != nil {
		return nil, err
	}
	return r, nil
}

func DecodeBiome(id string, raw []byte) (*Biome, error) {
	b := &Biome{}
	if err := decode(KindBiome, raw, &named{b, &b.Name, id}); err != nil {
		return nil, err
	}
	return b, nil
}

// named fills an empty name from the file id before validation.
type named struct {
	document
	name *string
	id   string
}

func (n named) UnmarshalYAML(node *yaml.Node) error { return node.Decode(n.document) }

func (n named) Normalize() {
	if *n.name == "" {
		*n.name = n.id
	}
	n.document.Normalize()
}
