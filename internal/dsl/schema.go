// Package dsl holds the ActionPlan JSON Schema and its validator.
package dsl

// SchemaJSON is the built-in ActionPlan schema. Step requirements depend on
// the step kind: goto needs url, fill needs selector+value, click needs
// selector, assert needs selector+kind, and text/count assertion kinds pull
// in a value of the matching shape.
const SchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "ActionPlan",
  "type": "object",
  "required": ["meta", "steps"],
  "properties": {
    "meta": {
      "type": "object",
      "required": ["testId", "baseUrl"],
      "properties": {
        "testId": {"type": "string", "minLength": 1},
        "baseUrl": {"type": "string", "minLength": 1},
        "dataSource": {"type": "string"}
      }
    },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["t"],
        "properties": {
          "t": {"enum": ["goto", "fill", "click", "assert"]},
          "selector": {"type": "string", "minLength": 1},
          "url": {"type": "string", "minLength": 1},
          "value": {},
          "kind": {
            "enum": [
              "visible", "invisible",
              "text_contains", "text_equals", "text_regex",
              "count_equals", "count_at_least"
            ]
          }
        },
        "allOf": [
          {
            "if": {"properties": {"t": {"const": "goto"}}, "required": ["t"]},
            "then": {"required": ["url"]}
          },
          {
            "if": {"properties": {"t": {"const": "fill"}}, "required": ["t"]},
            "then": {"required": ["selector", "value"]}
          },
          {
            "if": {"properties": {"t": {"const": "click"}}, "required": ["t"]},
            "then": {"required": ["selector"]}
          },
          {
            "if": {"properties": {"t": {"const": "assert"}}, "required": ["t"]},
            "then": {"required": ["selector", "kind"]}
          },
          {
            "if": {
              "properties": {
                "t": {"const": "assert"},
                "kind": {"enum": ["text_contains", "text_equals", "text_regex"]}
              },
              "required": ["t", "kind"]
            },
            "then": {
              "required": ["value"],
              "properties": {"value": {"type": "string", "minLength": 1}}
            }
          },
          {
            "if": {
              "properties": {
                "t": {"const": "assert"},
                "kind": {"enum": ["count_equals", "count_at_least"]}
              },
              "required": ["t", "kind"]
            },
            "then": {
              "required": ["value"],
              "properties": {
                "value": {
                  "anyOf": [
                    {"type": "integer", "minimum": 0},
                    {"type": "string", "pattern": "^[0-9]+$"}
                  ]
                }
              }
            }
          }
        ]
      }
    }
  }
}`
