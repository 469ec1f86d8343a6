package record

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// definitionSchema constrains the user-supplied parts of a process
// definition. Runtime fields (pid, start_time, ...) are engine-owned and not
// validated here.
const definitionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "command"],
  "properties": {
    "name": {"type": "string", "pattern": "^[A-Za-z0-9][A-Za-z0-9._-]*$", "maxLength": 64},
    "command": {"type": "string", "minLength": 1},
    "port": {"type": "integer", "minimum": 1, "maximum": 65535},
    "workdir": {"type": "string"},
    "env_file": {"type": "string"}
  }
}`

var compiledSchema = jsonschema.MustCompileString("definition.json", definitionSchema)

// ValidateDefinition checks the user-supplied fields of a record against the
// definition schema and verifies that a configured workdir exists.
func ValidateDefinition(r *ProcessRecord) error {
	doc := map[string]any{
		"name":    r.Name,
		"command": r.Command,
	}
	if r.Port != 0 {
		doc["port"] = r.Port
	}
	if r.Workdir != "" {
		doc["workdir"] = r.Workdir
	}
	if r.EnvFile != "" {
		doc["env_file"] = r.EnvFile
	}
	// Round-trip through JSON so the validator sees canonical types.
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	if err := compiledSchema.Validate(generic); err != nil {
		return fmt.Errorf("invalid process definition %q: %w", r.Name, err)
	}
	if r.Workdir != "" {
		st, err := os.Stat(r.Workdir)
		if err != nil || !st.IsDir() {
			return fmt.Errorf("workdir does not exist: %s", r.Workdir)
		}
	}
	return nil
}
