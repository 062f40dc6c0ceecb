package decider

// planSchema is the JSON Schema the LLM's structured output is
// validated against before we even attempt to unmarshal it into Plan,
// grounded in santhosh-tekuri/jsonschema/v6's draft validation. Keeping
// it a plain embedded string (rather than a struct-reflected schema)
// keeps the schema reviewable as a document and avoids reflection on
// types the provider never sees.
const planSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["execution_path", "active_instances", "reasoning", "changes_explanation"],
  "properties": {
    "execution_path": {"type": "string", "enum": ["agent_loop", "direct_trigger"]},
    "active_instances": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["task_key", "module_class", "description", "status", "depends_on"],
        "properties": {
          "task_key": {"type": "string"},
          "instance_id": {"type": "string"},
          "module_class": {"type": "string"},
          "description": {"type": "string"},
          "status": {"type": "string"},
          "depends_on": {"type": "array", "items": {"type": "string"}},
          "job_config": {
            "type": "object",
            "required": ["title", "payload"],
            "properties": {
              "title": {"type": "string"},
              "payload": {"type": "string"},
              "cron": {"type": "string"},
              "interval_seconds": {"type": "integer"},
              "scheduled_at": {"type": "string"},
              "end_condition": {"type": "string"},
              "max_iterations": {"type": "integer"},
              "related_entity_id": {"type": "string"}
            }
          }
        }
      }
    },
    "direct_trigger": {
      "type": "object",
      "required": ["tool_name", "arguments"],
      "properties": {
        "tool_name": {"type": "string"},
        "arguments": {"type": "object"}
      }
    },
    "reasoning": {"type": "string"},
    "changes_explanation": {"type": "string"},
    "relationship_graph": {"type": "object"}
  }
}`
