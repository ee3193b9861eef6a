// Package api embeds the OpenAPI specification and request schemas for serving at runtime.
package api

import _ "embed"

// OpenAPISpec is the raw OpenAPI 3.1 YAML specification.
//
//go:embed openapi.yaml
var OpenAPISpec []byte

// StateSchema is the JSON Schema (draft 2020-12) for PUT /state bodies.
//
//go:embed state.schema.json
var StateSchema []byte

// StateSchemaURL is the $id of StateSchema.
const StateSchemaURL = "https://menusync.local/schemas/state.json"
