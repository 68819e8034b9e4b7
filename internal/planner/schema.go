package planner

import "github.com/xeipuuv/gojsonschema"

const planSchemaJSON = `{
  "type": "object",
  "required": ["subtasks", "post_actions"],
  "properties": {
    "plan_summary": {"type": "string"},
    "subtasks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type"],
        "properties": {
          "id": {"type": "string"},
          "type": {"type": "string"},
          "action": {"type": "string"},
          "question": {"type": "string"},
          "params": {"type": "object"},
          "requires": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "post_actions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type"],
        "properties": {
          "type": {"type": "string"},
          "params": {"type": "object"}
        }
      }
    }
  }
}`

var planSchema = mustSchema(planSchemaJSON)

func mustSchema(raw string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(err)
	}
	return s
}
