// Package template renders node configuration values against the
// execution context, so node data can reference trigger payloads and
// earlier node results.
package template

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/voltflow/voltflow/pkg/models"
)

// RenderWithContext renders input with the execution context exposed
// as .input, .results, .trigger, .env, and .run.
func RenderWithContext(input string, execCtx *models.ExecutionContext, nodeInput map[string]any) (any, error) {
	data := map[string]any{
		"input":   nodeInput,
		"results": execCtx.NodeResults,
		"trigger": execCtx.TriggerData,
		"env":     getEnvVars(),
		"run": map[string]any{
			"id":      execCtx.RunID,
			"flow_id": execCtx.FlowID,
			"user_id": execCtx.UserID,
		},
	}

	return Render(input, data)
}

// Render executes templateStr against data. Results that look like
// JSON, numbers, or booleans are returned as their parsed type.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("node").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderString renders and stringifies, for config fields that must
// stay textual (URLs, headers).
func RenderString(templateStr string, execCtx *models.ExecutionContext, nodeInput map[string]any) (string, error) {
	result, err := RenderWithContext(templateStr, execCtx, nodeInput)
	if err != nil {
		return "", err
	}

	switch v := result.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to stringify template result: %w", err)
		}

		return string(data), nil
	}
}

// Parse checks template syntax without executing.
func Parse(templateStr string) (*template.Template, error) {
	return template.New("node").Parse(templateStr)
}

func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
