// Package seed reads fixture records from YAML. Raw field values are converted
// by the kind the catalog declares for them.
package seed

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/fedsearch/internal/domain/record"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/value"
)

// Kinds resolves the declared kind of a resource field.
type Kinds interface {
	Kind(resourceID, name string) field.Kind
}

type fileDTO struct {
	Records []recordDTO `yaml:"records"`
}

type recordDTO struct {
	Resource string            `yaml:"resource"`
	Key      string            `yaml:"key"`
	Fields   map[string]string `yaml:"fields"`
}

// Load reads and parses a seed file.
func Load(path string, kinds Kinds) ([]record.Record, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	recs, err := Parse(data, kinds)
	if err != nil {
		return nil, fmt.Errorf("seed %s: %w", path, err)
	}
	return recs, nil
}

// Parse decodes a YAML document of records, in file order.
func Parse(data []byte, kinds Kinds) ([]record.Record, error) {
	var f fileDTO
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	recs := make([]record.Record, 0, len(f.Records))
	for i, r := range f.Records {
		fields := make(map[string]value.Value, len(r.Fields))
		for name, raw := range r.Fields {
			v, err := value.Parse(kinds.Kind(r.Resource, name).ValueKind(), raw)
			if err != nil {
				return nil, fmt.Errorf("record %d field %s: %w", i, name, err)
			}
			fields[name] = v
		}
		rec, err := record.New(record.Ref{ResourceID: r.Resource, Key: r.Key}, fields)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
