package manifest

import (
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const manifestSchemaJSON = `{
  "type": "object",
  "properties": {
    "_base": {"type": "string"}
  },
  "patternProperties": {
    "^[^_]": {
      "oneOf": [
        {"type": "string"},
        {"type": "array", "items": {"type": "string"}},
        {
          "type": "object",
          "additionalProperties": {
            "oneOf": [
              {"type": "string"},
              {"type": "array", "items": {"type": "string"}, "minItems": 1}
            ]
          }
        }
      ]
    }
  }
}`

const aliasSchemaJSON = `{
  "type": "object",
  "additionalProperties": {"type": "string"}
}`

var (
	manifestSchema = sync.OnceValue(func() *gojsonschema.Schema { return mustSchema(manifestSchemaJSON) })
	aliasSchema    = sync.OnceValue(func() *gojsonschema.Schema { return mustSchema(aliasSchemaJSON) })
)

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic("manifest: invalid built-in schema: " + err.Error())
	}
	return schema
}

// validate checks the document shape before the ordered decode runs, so
// malformed manifests are reported with the offending field
func validate(schema *gojsonschema.Schema, data []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return parseError("%v", err)
	}
	if result.Valid() {
		return nil
	}

	var msgs []string
	for i, e := range result.Errors() {
		if i == 3 {
			msgs = append(msgs, "...")
			break
		}
		msgs = append(msgs, e.String())
	}
	return parseError("%s", strings.Join(msgs, "; "))
}
