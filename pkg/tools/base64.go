package tools

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// Base64 encodes and decodes standard padded base64.
func Base64() Tool {
	return Tool{
		Manifest: domain.Manifest{
			ID:              "base64",
			Version:         "1.0.0",
			Actions:         []string{"encode", "decode"},
			Cacheable:       true,
			RuntimeLanguage: "go",
			CapabilityClass: "transform",
			Description:     "Encode or decode base64 text.",
		},
		Executor: domain.ExecutorFunc(base64Execute),
	}
}

func base64Execute(ctx context.Context, action, input string) (domain.ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.ToolResult{}, err
	}
	switch action {
	case "encode":
		return domain.ToolResult{Success: true, Output: base64.StdEncoding.EncodeToString([]byte(input))}, nil
	case "decode":
		// Accept unpadded input as well as line-wrapped text.
		cleaned := strings.Join(strings.Fields(input), "")
		enc := base64.StdEncoding
		if len(cleaned)%4 != 0 {
			enc = base64.RawStdEncoding
		}
		out, err := enc.DecodeString(cleaned)
		if err != nil {
			return domain.ToolResult{Error: "input is not valid base64"}, nil
		}
		return domain.ToolResult{Success: true, Output: string(out)}, nil
	default:
		return unsupported("base64", action), nil
	}
}
