/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package calibre

import (
	"encoding/json"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"papyrix/internal/papyrixerr"
)

// payloadSchemas holds a belt-and-braces JSON Schema per opcode whose
// payload shape is structurally critical before the hand-written
// field-level validation (lpath extension/length bounds, etc.) runs. This
// never replaces the deliberately-preserved byte-oriented DELETE_BOOK
// "lpaths" bracket scanner (scanLpaths), which is kept as-is.
var payloadSchemas = map[Opcode]string{
	SendBook: `{
		"type": "object",
		"required": ["lpath", "length"],
		"properties": {
			"lpath": {"type": "string", "minLength": 1},
			"length": {"type": "number", "minimum": 1}
		}
	}`,
	SetLibraryInfo: `{
		"type": "object",
		"required": ["libraryName", "libraryUuid"],
		"properties": {
			"libraryName": {"type": "string"},
			"libraryUuid": {"type": "string"}
		}
	}`,
	GetInitializationInfo: `{"type": "object"}`,
}

// validateShape runs the opcode's JSON Schema, if any, against raw. A nil
// error means either validation passed or no schema is registered for this
// opcode.
func validateShape(opcode Opcode, raw json.RawMessage) error {
	schemaJSON, ok := payloadSchemas[opcode]
	if !ok {
		return nil
	}
	schemaLoader := gojsonschema.NewStringLoader(schemaJSON)
	docLoader := gojsonschema.NewBytesLoader(raw)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return papyrixerr.Wrap(papyrixerr.KindJSONParse, err, "calibre: schema check for opcode %d", opcode)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return papyrixerr.New(papyrixerr.KindProtocol, "calibre: opcode %d payload shape: %s", opcode, strings.Join(msgs, "; "))
	}
	return nil
}
