package quickmod

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "quickmod-descriptor.json"

var (
	schemaOnce sync.Once
	schemaJSON []byte
	compiled   *validator.Schema
)

// SchemaJSON returns the JSON schema of the persisted descriptor format,
// generated from the [Mod] type.
func SchemaJSON() []byte {
	loadSchema()
	return schemaJSON
}

// Schema returns the compiled descriptor schema used by [Parse].
func Schema() *validator.Schema {
	loadSchema()
	return compiled
}

func loadSchema() {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			Anonymous:                  true,
			ExpandedStruct:             true,
			AllowAdditionalProperties:  true,
			RequiredFromJSONSchemaTags: true,
		}
		data, err := json.MarshalIndent(r.Reflect(&Mod{}), "", "  ")
		if err != nil {
			panic("quickmod: marshal descriptor schema: " + err.Error())
		}
		schemaJSON = data
		compiled = validator.MustCompileString(schemaURL, string(data))
	})
}
