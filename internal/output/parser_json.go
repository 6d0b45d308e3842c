package output

import (
	"encoding/json"
	"fmt"
)

// parseJSON unmarshals a JSON artifact and extracts the conventional
// summary and numeric metrics fields when the top level is an object.
func parseJSON(content []byte) (*JSONOutput, string) {
	var data interface{}
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, ""
	}

	out := &JSONOutput{Data: data}

	obj, ok := data.(map[string]interface{})
	if !ok {
		if arr, ok := data.([]interface{}); ok {
			out.Summary = fmt.Sprintf("%d entries", len(arr))
		}
		return out, out.Summary
	}

	for _, key := range []string{"summary", "message", "description"} {
		if s, ok := obj[key].(string); ok && s != "" {
			out.Summary = s
			break
		}
	}

	metrics := make(map[string]float64)
	for k, v := range obj {
		if n, ok := v.(float64); ok {
			metrics[k] = n
		}
	}
	if nested, ok := obj["metrics"].(map[string]interface{}); ok {
		for k, v := range nested {
			if n, ok := v.(float64); ok {
				metrics[k] = n
			}
		}
	}
	if len(metrics) > 0 {
		out.Metrics = metrics
	}

	if out.Summary == "" {
		out.Summary = fmt.Sprintf("%d fields", len(obj))
	}
	return out, out.Summary
}
