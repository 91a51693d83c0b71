package request

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed request.schema.json
var schemaData []byte

var (
	requestSchema *jsonschema.Schema
	compileOnce   sync.Once
	compileErr    error
)

// compileSchema compiles the embedded request schema once.
func compileSchema() error {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaData))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal request schema: %w", err)
			return
		}

		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("request.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("add request schema resource: %w", err)
			return
		}

		requestSchema, err = compiler.Compile("request.schema.json")
		if err != nil {
			compileErr = fmt.Errorf("compile request schema: %w", err)
			return
		}
	})

	return compileErr
}

// validateSchema validates raw request JSON against the embedded schema.
func validateSchema(data []byte) error {
	if err := compileSchema(); err != nil {
		return err
	}

	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	return requestSchema.Validate(v)
}
