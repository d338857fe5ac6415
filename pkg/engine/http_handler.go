package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// Request header constants mapped onto execution options.
const (
	HeaderAPIKey        = "X-API-Key"
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderTenantID      = "X-Tenant-ID"
	HeaderRiskTier      = "X-Risk-Tier"
)

// ToolsPath prefixes the tool execution routes.
const ToolsPath = "/api/v1/tools/"

// Executor runs one capability call; *Chain and *Pipeline implement it.
type Executor interface {
	Execute(ctx context.Context, capabilityID, action, input string, options map[string]string) (domain.Response, error)
}

// ToolHandler serves GET and POST /api/v1/tools/{capability}/{action}.
// GET reads the input from the "input" query parameter; POST accepts either a
// JSON body {"input": ..., "options": {...}} or the raw body as input.
type ToolHandler struct {
	executor Executor
	logger   *slog.Logger
	maxBody  int64
}

// ToolHandlerConfig holds configuration for creating a ToolHandler.
type ToolHandlerConfig struct {
	Executor     Executor
	Logger       *slog.Logger
	MaxBodyBytes int64
}

type executeRequest struct {
	Input   string            `json:"input"`
	Options map[string]string `json:"options"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		TraceID string `json:"trace_id,omitempty"`
	} `json:"error"`
}

// NewToolHandler constructs the HTTP surface for an executor.
func NewToolHandler(cfg ToolHandlerConfig) *ToolHandler {
	if cfg.Executor == nil {
		panic("engine: tool handler requires an executor")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = int64(domain.DefaultMaxInputSize) + 4096
	}
	return &ToolHandler{executor: cfg.Executor, logger: logger, maxBody: maxBody}
}

// ServeHTTP implements http.Handler.
func (h *ToolHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	capabilityID, action, ok := splitToolPath(r.URL.Path)
	if !ok {
		h.writeError(r.Context(), w, http.StatusNotFound, "route_not_found", "Expected "+ToolsPath+"{capability}/{action}.")
		return
	}

	var req executeRequest
	switch r.Method {
	case http.MethodGet:
		req.Input = r.URL.Query().Get("input")
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				h.writeError(r.Context(), w, http.StatusRequestEntityTooLarge, domain.CodePayloadTooLarge, "Request body is too large.")
				return
			}
			h.writeError(r.Context(), w, http.StatusBadRequest, "invalid_body", "Request body could not be read.")
			return
		}
		if isJSON(r.Header.Get("Content-Type")) {
			if err := json.Unmarshal(body, &req); err != nil {
				h.writeError(r.Context(), w, http.StatusBadRequest, "invalid_body", "Request body is not a valid execute request.")
				return
			}
		} else {
			req.Input = string(body)
		}
	default:
		w.Header().Set("Allow", "GET, POST")
		h.writeError(r.Context(), w, http.StatusMethodNotAllowed, domain.CodeHTTPMethodDenied, "Only GET and POST are supported.")
		return
	}

	options := requestOptions(r, req.Options)
	w.Header().Set(HeaderCorrelationID, options[domain.OptionCorrelationID])

	resp, err := h.executor.Execute(r.Context(), capabilityID, action, req.Input, options)
	if err != nil {
		status := http.StatusInternalServerError
		code := domain.CodeExecutionFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status, code = http.StatusServiceUnavailable, "canceled"
		}
		h.logger.Warn("tool execution aborted",
			"capability", capabilityID,
			"action", action,
			"correlation_id", options[domain.OptionCorrelationID],
			"error", err,
		)
		h.writeError(r.Context(), w, status, code, "Tool execution was aborted.")
		return
	}

	h.writeJSON(w, StatusForCode(resp), resp)
}

// StatusForCode maps a pipeline response onto an HTTP status.
func StatusForCode(resp domain.Response) int {
	if resp.Success {
		return http.StatusOK
	}
	switch resp.Code {
	case domain.CodeInvalidCapability, domain.CodeInvalidAction, domain.CodeActionNotSupported, domain.CodeInvalidTimeout:
		return http.StatusBadRequest
	case domain.CodeCapabilityNotFound:
		return http.StatusNotFound
	case domain.CodeAPIKeyRequired:
		return http.StatusUnauthorized
	case domain.CodeExecutionDisabled, domain.CodeAdmissionDenied:
		return http.StatusForbidden
	case domain.CodeHTTPMethodDenied:
		return http.StatusMethodNotAllowed
	case domain.CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case domain.CodeRateLimited:
		return http.StatusTooManyRequests
	case domain.CodeCircuitOpen, domain.CodeRuntimeNotEnabled, domain.CodePolicyUnavailable:
		return http.StatusServiceUnavailable
	case domain.CodeTimeout:
		return http.StatusGatewayTimeout
	case domain.CodeExecutionFailed:
		// The tool ran and rejected its input.
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func splitToolPath(path string) (capabilityID, action string, ok bool) {
	rest, found := strings.CutPrefix(path, ToolsPath)
	if !found {
		rest, found = strings.CutPrefix(path, "/api/tools/")
	}
	if !found {
		return "", "", false
	}
	capabilityID, action, found = strings.Cut(strings.Trim(rest, "/"), "/")
	if !found || capabilityID == "" || action == "" || strings.Contains(action, "/") {
		return "", "", false
	}
	return capabilityID, action, true
}

// requestOptions merges query parameters, body options and well-known
// headers. Headers win so credentials cannot be overridden by the body.
func requestOptions(r *http.Request, bodyOptions map[string]string) map[string]string {
	options := make(map[string]string, len(bodyOptions)+4)
	for k, values := range r.URL.Query() {
		if k == "input" || len(values) == 0 {
			continue
		}
		options[k] = values[0]
	}
	for k, v := range bodyOptions {
		options[k] = v
	}

	setHeader := func(header, option string) {
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			options[option] = v
		}
	}
	setHeader(HeaderAPIKey, domain.OptionAPIKey)
	setHeader(HeaderCorrelationID, domain.OptionCorrelationID)
	setHeader(HeaderTenantID, domain.OptionTenantID)
	setHeader(HeaderRiskTier, domain.OptionRiskTier)

	if options[domain.OptionCorrelationID] == "" {
		options[domain.OptionCorrelationID] = uuid.NewString()
	}
	options[domain.OptionHTTPMethod] = r.Method
	return options
}

func isJSON(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.EqualFold(strings.TrimSpace(mediaType), "application/json")
}

func (h *ToolHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *ToolHandler) writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		body.Error.TraceID = sc.TraceID().String()
	}
	h.writeJSON(w, status, body)
}
