package runtime

import (
	"strings"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// AuthorityConfig selects which requests run on the shadow or unified paths.
// An empty matcher list matches everything.
type AuthorityConfig struct {
	ShadowEnabled      bool     `yaml:"shadow_enabled"`
	ShadowLanguages    []string `yaml:"shadow_languages"`
	ShadowCapabilities []string `yaml:"shadow_capabilities"`
	ShadowRiskTiers    []string `yaml:"shadow_risk_tiers"`

	UnifiedEnabled      bool     `yaml:"unified_enabled"`
	UnifiedLanguages    []string `yaml:"unified_languages"`
	UnifiedCapabilities []string `yaml:"unified_capabilities"`

	// RiskTierOptionKey names the option carrying the request's risk tier.
	RiskTierOptionKey string `yaml:"risk_tier_option_key"`
}

// AuthorityResolver decides which execution path owns a request.
type AuthorityResolver struct {
	shadowEnabled  bool
	unifiedEnabled bool

	shadowLanguages    matcher
	shadowCapabilities matcher
	shadowRiskTiers    matcher

	unifiedLanguages    matcher
	unifiedCapabilities matcher

	riskTierKey string
}

// NewAuthorityResolver compiles cfg into a resolver.
func NewAuthorityResolver(cfg AuthorityConfig) *AuthorityResolver {
	key := strings.TrimSpace(cfg.RiskTierOptionKey)
	if key == "" {
		key = domain.OptionRiskTier
	}
	return &AuthorityResolver{
		shadowEnabled:       cfg.ShadowEnabled,
		unifiedEnabled:      cfg.UnifiedEnabled,
		shadowLanguages:     newMatcher(cfg.ShadowLanguages),
		shadowCapabilities:  newMatcher(cfg.ShadowCapabilities),
		shadowRiskTiers:     newMatcher(cfg.ShadowRiskTiers),
		unifiedLanguages:    newMatcher(cfg.UnifiedLanguages),
		unifiedCapabilities: newMatcher(cfg.UnifiedCapabilities),
		riskTierKey:         key,
	}
}

// Resolve returns ShadowOnly, UnifiedAuthoritative or LegacyAuthoritative, in
// that order of precedence.
func (r *AuthorityResolver) Resolve(ec *domain.ExecutionContext, req domain.ExecutionRequest) domain.ExecutionAuthority {
	language := req.RuntimeLanguage
	capability := req.ExecutionCapability

	if r.shadowEnabled &&
		r.shadowLanguages.match(language) &&
		r.shadowCapabilities.match(capability) &&
		r.shadowRiskTiers.match(r.riskTier(ec, req)) {
		return domain.AuthorityShadowOnly
	}

	if r.unifiedEnabled &&
		r.unifiedLanguages.match(language) &&
		r.unifiedCapabilities.match(capability) {
		return domain.AuthorityUnifiedAuthoritative
	}

	return domain.AuthorityLegacyAuthoritative
}

// riskTier reads the request options first, then the context options.
func (r *AuthorityResolver) riskTier(ec *domain.ExecutionContext, req domain.ExecutionRequest) string {
	if v, ok := lookupFold(req.Options, r.riskTierKey); ok {
		return v
	}
	if ec != nil {
		if v, ok := ec.Option(r.riskTierKey); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// matcher is a case-insensitive set; the zero value matches everything.
type matcher map[string]struct{}

func newMatcher(values []string) matcher {
	m := make(matcher, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			m[v] = struct{}{}
		}
	}
	return m
}

func (m matcher) match(value string) bool {
	if len(m) == 0 {
		return true
	}
	_, ok := m[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

func lookupFold(options map[string]string, key string) (string, bool) {
	if v, ok := options[key]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), true
	}
	for k, v := range options {
		if strings.EqualFold(k, key) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}
