package runtime

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

const (
	defaultCapabilityVersion = "1.0.0"
	defaultCapabilityClass   = "standard"
)

// authorityControlKeys may never be set by callers; any key containing
// "authority" is treated the same way.
var authorityControlKeys = []string{"language", "executionCapability"}

// RequestMapper turns an execution context into a universal request.
type RequestMapper struct {
	logger *slog.Logger
	newID  func() string
}

// NewRequestMapper creates a mapper that reports stripped options to logger.
func NewRequestMapper(logger *slog.Logger) *RequestMapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestMapper{logger: logger, newID: uuid.NewString}
}

// Map builds the request. Runtime and capability class come only from the
// manifest; caller options that try to override authority are dropped.
func (m *RequestMapper) Map(ec *domain.ExecutionContext) domain.ExecutionRequest {
	options, blocked := sanitizeOptions(ec.Options)
	if len(blocked) > 0 {
		m.logger.Warn("security incident: authority override options ignored",
			"capability", ec.CapabilityID,
			"blocked_keys", strings.Join(blocked, ","),
		)
	}

	version := optionOr(options, domain.OptionToolVersion, defaultCapabilityVersion)
	language := DefaultLanguage
	capabilityClass := defaultCapabilityClass
	if ec.Manifest != nil {
		if v := strings.TrimSpace(ec.Manifest.Version); v != "" {
			version = v
		}
		language = NormalizeLanguage(ec.Manifest.RuntimeLanguage)
		if c := strings.TrimSpace(ec.Manifest.CapabilityClass); c != "" {
			capabilityClass = strings.ToLower(c)
		}
	}

	timeoutBudget := 0
	if ec.Policy != nil {
		timeoutBudget = ec.Policy.TimeoutSeconds * 1000
	}

	correlationID := optionOr(options, domain.OptionCorrelationID, "")
	if correlationID == "" {
		correlationID = m.newID()
	}

	return domain.ExecutionRequest{
		CapabilityID:        ec.CapabilityID,
		CapabilityVersion:   version,
		RuntimeLanguage:     language,
		ExecutionCapability: capabilityClass,
		Action:              ec.Action,
		Input:               ec.Input,
		ExecutionPolicyID:   optionOr(options, domain.OptionExecutionPolicyID, ""),
		ResourceClass:       optionOr(options, domain.OptionResourceClass, ""),
		TimeoutBudgetMS:     timeoutBudget,
		TenantID:            optionOr(options, domain.OptionTenantID, ""),
		CorrelationID:       correlationID,
		Options:             options,
	}
}

// sanitizeOptions drops authority-control keys and credentials, returning the
// blocked authority keys in sorted order.
func sanitizeOptions(in map[string]string) (map[string]string, []string) {
	out := make(map[string]string, len(in))
	var blocked []string
	for k, v := range in {
		switch {
		case isAuthorityControlKey(k):
			blocked = append(blocked, k)
		case strings.EqualFold(k, domain.OptionAPIKey):
		default:
			out[k] = v
		}
	}
	sort.Strings(blocked)
	return out, blocked
}

func isAuthorityControlKey(key string) bool {
	if strings.TrimSpace(key) == "" {
		return false
	}
	if strings.Contains(strings.ToLower(key), "authority") {
		return true
	}
	for _, blocked := range authorityControlKeys {
		if strings.EqualFold(blocked, key) {
			return true
		}
	}
	return false
}

func optionOr(options map[string]string, key, fallback string) string {
	if v, ok := lookupFold(options, key); ok {
		return v
	}
	return fallback
}
