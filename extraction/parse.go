package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"exceptionforms/models"
)

var ErrEmptyOutput = errors.New("extraction returned no data")

// Entry is one form found in an extraction result.
type Entry struct {
	Pure   map[string]any
	Fields models.FormFields
	Rows   []models.FormRow
}

// MappedJSON is the mapped view of the entry as stored alongside the pure
// payload.
func (e Entry) MappedJSON() ([]byte, error) {
	return json.Marshal(struct {
		models.FormFields
		Rows []models.FormRow `json:"rows"`
	}{e.Fields, e.Rows})
}

// PureJSON is the payload exactly as extracted.
func (e Entry) PureJSON() ([]byte, error) {
	return json.Marshal(e.Pure)
}

// Decode parses extractor output into a JSON object. Markdown code fences
// around the JSON are tolerated.
func Decode(raw []byte) (map[string]any, error) {
	body := bytes.TrimSpace(raw)
	if bytes.HasPrefix(body, []byte("```")) {
		if nl := bytes.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:]
		} else {
			body = body[3:]
		}
		body = bytes.TrimSuffix(bytes.TrimSpace(body), []byte("```"))
		body = bytes.TrimSpace(body)
	}
	if len(body) == 0 {
		return nil, ErrEmptyOutput
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("invalid extraction output: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyOutput
	}
	return data, nil
}

// Split returns the forms contained in data. A payload with an "entries"
// list yields one form per entry; employee details given once at the top
// level are merged into every entry, with entry values taking precedence.
func Split(data map[string]any) []map[string]any {
	list, ok := data["entries"].([]any)
	if !ok || len(list) == 0 {
		return []map[string]any{data}
	}

	var employee map[string]any
	for _, key := range []string{"employee", "employeeDetails"} {
		if e, ok := data[key].(map[string]any); ok {
			employee = e
			break
		}
	}

	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		merged := make(map[string]any, len(employee)+len(entry))
		for k, v := range employee {
			merged[k] = v
		}
		for k, v := range entry {
			merged[k] = v
		}
		out = append(out, merged)
	}
	if len(out) == 0 {
		return []map[string]any{data}
	}
	return out
}

// Process decodes extractor output and maps every form it contains.
func Process(raw []byte, formType models.FormType) ([]Entry, error) {
	data, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	forms := Split(data)
	entries := make([]Entry, 0, len(forms))
	for _, form := range forms {
		fields, rows := MapEntry(form, formType)
		entries = append(entries, Entry{Pure: form, Fields: fields, Rows: rows})
	}
	return entries, nil
}

// DisplayName picks the name shown for an uploaded form: the pass number,
// then a name carried in the payload, then the uploaded file name.
func DisplayName(e Entry, uploaded string) string {
	if e.Fields.PassNumber != "" {
		return e.Fields.PassNumber
	}
	if v := Lookup(e.Pure, "pass_number", "file_name", "filename", "name"); v != "" {
		return v
	}
	if uploaded != "" {
		return uploaded
	}
	return "N/A"
}
