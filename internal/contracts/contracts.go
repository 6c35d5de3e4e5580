// Package contracts validates sink payloads against the embedded JSON schemas.
package contracts

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"ecolisting_ingest/internal/domain"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const listingBatchSchema = "schemas/listing_batch.json"

var listingBatch = mustCompile(listingBatchSchema)

func mustCompile(path string) *jsonschema.Schema {
	data, err := schemaFS.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("read schema %s: %v", path, err))
	}

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource(path, bytes.NewReader(data)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", path, err))
	}
	schema, err := compiler.Compile(path)
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", path, err))
	}
	return schema
}

// ValidationError reports a payload that violates the batch contract. It is
// never transient.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("listing batch violates schema: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Transient() bool {
	return false
}

// ValidateListings checks a batch as it will be serialized on the wire.
func ValidateListings(rows []domain.Listing) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode batch: %w", err)
	}

	if err := listingBatch.Validate(doc); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}
