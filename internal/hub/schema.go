package hub

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// publishSchemaJSON guards the internal publish endpoint: producers are
// other services, so malformed payloads get a machine-checkable
// rejection before any store mutation.
const publishSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["recipientId", "type"],
  "properties": {
    "recipientId": {"type": "string", "minLength": 1},
    "type": {"enum": ["generic", "team_invite"]},
    "message": {"type": "string"},
    "projectId": {"type": "string"},
    "projectName": {"type": "string"},
    "inviterId": {"type": "string"}
  },
  "allOf": [
    {
      "if": {"properties": {"type": {"const": "team_invite"}}},
      "then": {
        "required": ["projectId", "projectName", "inviterId"],
        "properties": {
          "projectId": {"minLength": 1},
          "projectName": {"minLength": 1},
          "inviterId": {"minLength": 1}
        }
      }
    },
    {
      "if": {"properties": {"type": {"const": "generic"}}},
      "then": {
        "required": ["message"],
        "properties": {"message": {"minLength": 1}}
      }
    }
  ]
}`

var publishSchema = mustCompilePublishSchema()

func mustCompilePublishSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(publishSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("hub: parse publish schema: %v", err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("publish.json", doc); err != nil {
		panic(fmt.Sprintf("hub: register publish schema: %v", err))
	}
	schema, err := compiler.Compile("publish.json")
	if err != nil {
		panic(fmt.Sprintf("hub: compile publish schema: %v", err))
	}
	return schema
}

// ValidatePublishPayload checks a raw publish body against the schema.
// The returned error wraps ErrInvalidInput so HTTP handlers can map it
// to a 400 without inspecting the message.
func ValidatePublishPayload(payload []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := publishSchema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
