package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateJSONWithSchema_Valid(t *testing.T) {
	schema := `{
		"type": "object",
		"properties": { "task": {"type": "string"}, "round": {"type": "integer"} },
		"required": ["task"]
	}`
	assert.NoError(t, ValidateJSONWithSchema(schema, `{"task": "markdown-to-html", "round": 1}`))
	assert.NoError(t, ValidateJSONWithSchema(schema, `{"task": "markdown-to-html"}`))
}

func TestValidateJSONWithSchema_Invalid(t *testing.T) {
	schema := `{
		"type": "object",
		"properties": { "task": {"type": "string"}, "round": {"type": "integer", "minimum": 1} },
		"required": ["task", "round"]
	}`
	err := ValidateJSONWithSchema(schema, `{"task": "t1"}`)
	assert.Error(t, err)
	if err != nil {
		assert.Contains(t, err.Error(), "missing properties: 'round'")
	}

	err = ValidateJSONWithSchema(schema, `{"task": "t1", "round": "one"}`)
	assert.Error(t, err)
	if err != nil {
		assert.Contains(t, err.Error(), "expected integer, but got string")
	}

	err = ValidateJSONWithSchema(schema, `{"task": "t1", "round": 0}`)
	assert.Error(t, err)
	if err != nil {
		assert.Contains(t, err.Error(), "must be >= 1 but found 0")
	}
}

func TestValidateJSONWithSchema_EmptySchema(t *testing.T) {
	assert.NoError(t, ValidateJSONWithSchema("", `{"task": "t1"}`))
}

func TestValidateJSONWithSchema_InvalidSchema(t *testing.T) {
	err := ValidateJSONWithSchema(`{"type": "object", "properties": {"task": {"type": "str"}}}`, `{"task": "t1"}`)
	assert.Error(t, err)
	if err != nil {
		assert.Contains(t, err.Error(), "failed to compile JSON schema")
	}
}

func TestValidateJSONWithSchema_BadData(t *testing.T) {
	schema := `{"type": "object", "required": ["task"]}`
	err := ValidateJSONWithSchema(schema, "")
	assert.Error(t, err)
	if err != nil {
		assert.Contains(t, err.Error(), "failed to unmarshal JSON data")
	}
}
