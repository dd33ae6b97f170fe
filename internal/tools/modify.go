package tools

import (
	"encoding/json"
	"strings"

	"github.com/dataplane-ai/analyst-agent/internal/agenterrors"
)

var updateFilesSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"files": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"id": {"type": "string"},
					"file_name": {"type": "string"},
					"modifications": {
						"type": "array",
						"items": {
							"type": "object",
							"properties": {
								"content_to_replace": {"type": "string"},
								"new_content": {"type": "string"}
							},
							"required": ["content_to_replace", "new_content"]
						}
					}
				},
				"required": ["id", "file_name", "modifications"]
			}
		}
	},
	"required": ["files"]
}`)

type updateFilesParams struct {
	Files []updateFileParam `json:"files"`
}

type updateFileParam struct {
	ID            string         `json:"id"`
	FileName      string         `json:"file_name"`
	Modifications []modification `json:"modifications"`
}

type modification struct {
	ContentToReplace string `json:"content_to_replace"`
	NewContent       string `json:"new_content"`
}

// applyModifications applies each modification to text in order, per
// §4.2.5 step 3: content_to_replace must match exactly once; zero matches
// or more than one match is an error. An empty modification list is a
// no-op, per §8's idempotence property.
func applyModifications(text string, mods []modification) (string, error) {
	for _, m := range mods {
		count := strings.Count(text, m.ContentToReplace)
		switch count {
		case 0:
			return "", agenterrors.ModificationMismatch("", m.ContentToReplace, false)
		case 1:
			text = strings.Replace(text, m.ContentToReplace, m.NewContent, 1)
		default:
			return "", agenterrors.ModificationMismatch("", m.ContentToReplace, true)
		}
	}
	return text, nil
}
