package scenario

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"trafficsim.ai/internal/persistence/objects"
)

const schemaBaseURL = "https://trafficsim.ai/schemas/"

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		c := jsonschema.NewCompiler()
		names := map[string]string{
			objects.Scenarios:     "scenario.schema.json",
			objects.Neighborhoods: "neighborhood.schema.json",
		}
		for _, file := range names {
			b, err := schemaFS.ReadFile("schemas/" + file)
			if err != nil {
				schemasErr = err
				return
			}
			if err := c.AddResource(schemaBaseURL+file, bytes.NewReader(b)); err != nil {
				schemasErr = fmt.Errorf("schema %s: %w", file, err)
				return
			}
		}
		out := map[string]*jsonschema.Schema{}
		for ns, file := range names {
			s, err := c.Compile(schemaBaseURL + file)
			if err != nil {
				schemasErr = fmt.Errorf("compile %s: %w", file, err)
				return
			}
			out[ns] = s
		}
		schemas = out
	})
	return schemas, schemasErr
}

// ValidateJSON checks a raw document of namespace ns (scenarios or neighborhoods)
// against its schema.
func ValidateJSON(ns string, data []byte) error {
	all, err := loadSchemas()
	if err != nil {
		return err
	}
	s, ok := all[ns]
	if !ok {
		return fmt.Errorf("no schema for namespace %q", ns)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func ValidateScenarioJSON(data []byte) error { return ValidateJSON(objects.Scenarios, data) }

func ValidateNeighborhoodJSON(data []byte) error { return ValidateJSON(objects.Neighborhoods, data) }

// CheckDocument validates one bundled document: schema first, then the typed checks.
func CheckDocument(ns, name string, data []byte) error {
	if err := ValidateJSON(ns, data); err != nil {
		return err
	}
	switch ns {
	case objects.Scenarios:
		var s Scenario
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return s.Validate()
	case objects.Neighborhoods:
		var nb NeighborhoodBuilder
		return json.Unmarshal(data, &nb)
	}
	return nil
}
