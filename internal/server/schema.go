package server

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ashita-ai/menusync/api"
)

// stateSchema is the compiled PUT /state body schema, built on first use.
var stateSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(api.StateSchemaURL, bytes.NewReader(api.StateSchema)); err != nil {
		return nil, fmt.Errorf("server: load state schema: %w", err)
	}
	s, err := c.Compile(api.StateSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("server: compile state schema: %w", err)
	}
	return s, nil
})

// validateStateBody checks a decoded PUT /state body against the schema.
// The returned message is suitable for clients.
func validateStateBody(doc any) (string, error) {
	schema, err := stateSchema()
	if err != nil {
		return "", err
	}
	if err := schema.Validate(doc); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			return schemaMessage(ve), nil
		}
		return err.Error(), nil
	}
	return "", nil
}

// schemaMessage reports the deepest failing location of a validation error.
func schemaMessage(ve *jsonschema.ValidationError) string {
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	loc := leaf.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return fmt.Sprintf("request body does not match schema at %s: %s", loc, leaf.Message)
}
