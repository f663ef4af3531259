package out

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/agentwallet-labs/gasless-cli/internal/config"
	"github.com/agentwallet-labs/gasless-cli/internal/model"
)

// Render writes the response envelope in the configured output mode. JSON is
// the default surface for agents; plain mode prints one key=value line per
// item for shell pipelines.
func Render(w io.Writer, env model.Envelope, settings config.Settings) error {
	data := env.Data
	if len(settings.SelectFields) > 0 {
		data = project(data, settings.SelectFields)
	}

	if settings.ResultsOnly {
		if settings.OutputMode == "json" {
			return encodeJSON(w, data)
		}
		return writePlain(w, data)
	}

	if settings.OutputMode == "json" {
		env.Data = data
		return encodeJSON(w, env)
	}

	plain := map[string]any{
		"success": env.Success,
		"data":    data,
		"meta":    env.Meta,
	}
	if len(env.Warnings) > 0 {
		plain["warnings"] = env.Warnings
	}
	if env.Error != nil {
		plain["error"] = env.Error
	}
	return writePlain(w, plain)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writePlain(w io.Writer, data any) error {
	v := reflect.ValueOf(data)
	if !v.IsValid() {
		_, err := fmt.Fprintln(w, "null")
		return err
	}

	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		if v.Len() == 0 {
			_, err := fmt.Fprintln(w, "[]")
			return err
		}
		for i := 0; i < v.Len(); i++ {
			if err := writeLine(w, v.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	}
	return writeLine(w, data)
}

func writeLine(w io.Writer, item any) error {
	line, err := formatLine(roundTrip(item))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, line)
	return err
}

func project(data any, fields []string) any {
	switch t := roundTrip(data).(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, pickFields(m, fields))
			}
		}
		return out
	case map[string]any:
		return pickFields(t, fields)
	default:
		return t
	}
}

func pickFields(m map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := m[f]; ok {
			out[f] = v
		}
	}
	return out
}

// roundTrip flattens structs into plain maps via their JSON form so plain
// rendering and field selection see the same key names as JSON output.
func roundTrip(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return v
	}
	return out
}

func formatLine(v any) (string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		buf, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(buf), nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return strings.Join(parts, " "), nil
}
