// Package schemas holds the embedded JSON Schemas for the wire and
// script document formats.
package schemas

import _ "embed"

//go:embed batch_import.schema.json
var BatchImportSchemaJSON string

//go:embed script.schema.json
var ScriptSchemaJSON string
