package tools

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// JSONFormat pretty-prints, minifies or validates JSON documents.
func JSONFormat() Tool {
	return Tool{
		Manifest: domain.Manifest{
			ID:              "json-format",
			Version:         "1.0.0",
			Actions:         []string{"format", "minify", "validate"},
			Cacheable:       true,
			RuntimeLanguage: "go",
			CapabilityClass: "transform",
			Description:     "Format, minify or validate JSON.",
		},
		Executor: domain.ExecutorFunc(jsonFormatExecute),
	}
}

func jsonFormatExecute(ctx context.Context, action, input string) (domain.ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.ToolResult{}, err
	}
	doc := strings.TrimSpace(input)
	if !gjson.Valid(doc) {
		return domain.ToolResult{Error: "input is not valid JSON"}, nil
	}

	switch action {
	case "format":
		out := gjson.Get(doc, "@pretty").Raw
		return domain.ToolResult{Success: true, Output: strings.TrimRight(out, "\n")}, nil
	case "minify":
		return domain.ToolResult{Success: true, Output: gjson.Get(doc, "@ugly").Raw}, nil
	case "validate":
		return domain.ToolResult{Success: true, Output: "valid"}, nil
	default:
		return unsupported("json-format", action), nil
	}
}
