package fulfillment

import (
	"regexp"
	"sort"
	"strings"

	"github.com/fastidp/fastidp-backend/pkg/enums"
)

// Decision explains a routing outcome.
type Decision struct {
	Type        enums.FulfillmentType
	CountryCode string
	Reason      string
}

const (
	ReasonDomesticCarrier    = "domestic_or_military"
	ReasonSupportedCountry   = "supported_country"
	ReasonUnsupportedCountry = "unsupported_country"
	ReasonUnresolvedCountry  = "unresolved_country"
	ReasonUnknownCategory    = "unknown_category"
)

// Router decides whether a shipment can be handled by the automated carrier
// integration. It is safe for concurrent use.
type Router struct {
	allowed map[string]struct{}
}

// NewRouter builds a router over the allow-list of destination countries
// supported by automated fulfillment.
func NewRouter(automatedCountries []string) *Router {
	allowed := make(map[string]struct{}, len(automatedCountries))
	for _, code := range automatedCountries {
		if normalized := strings.ToUpper(strings.TrimSpace(code)); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}
	return &Router{allowed: allowed}
}

// Determine returns the fulfillment type for a shipment.
func (r *Router) Determine(category enums.ShippingCategory, explicitCode, freeText string) enums.FulfillmentType {
	return r.Resolve(category, explicitCode, freeText).Type
}

// Resolve is Determine with the resolved country and the reason attached.
// International shipments fall back to manual whenever the destination cannot
// be pinned to a supported country.
func (r *Router) Resolve(category enums.ShippingCategory, explicitCode, freeText string) Decision {
	switch category {
	case enums.ShippingDomestic, enums.ShippingMilitary:
		return Decision{Type: enums.FulfillmentAutomated, Reason: ReasonDomesticCarrier}
	case enums.ShippingInternational:
	default:
		return Decision{Type: enums.FulfillmentManual, Reason: ReasonUnknownCategory}
	}

	code, ok := normalizeExplicit(explicitCode)
	if !ok {
		code, ok = ExtractCountryCode(freeText)
	}
	if !ok {
		return Decision{Type: enums.FulfillmentManual, Reason: ReasonUnresolvedCountry}
	}
	if !r.IsAutomated(code) {
		return Decision{Type: enums.FulfillmentManual, CountryCode: code, Reason: ReasonUnsupportedCountry}
	}
	return Decision{Type: enums.FulfillmentAutomated, CountryCode: code, Reason: ReasonSupportedCountry}
}

// IsAutomated reports whether code is on the allow-list.
func (r *Router) IsAutomated(code string) bool {
	_, ok := r.allowed[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// ExtractCountryCode resolves an ISO alpha-2 code from a free-text address.
// The last non-empty line is checked first, as an exact country name or a
// bare two-letter code. Otherwise every line is scanned from the bottom up for a
// bare two-letter line or a country name anywhere in it, longest alias first.
func ExtractCountryCode(text string) (string, bool) {
	lines := splitLines(text)
	if len(lines) == 0 {
		return "", false
	}

	if code, ok := resolveToken(lines[len(lines)-1]); ok {
		return code, true
	}

	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if isTwoLetterCode(line) {
			return resolveToken(line)
		}
		lowered := strings.ToLower(line)
		for _, entry := range aliasesByLength {
			if strings.Contains(lowered, entry.alias) {
				return entry.code, true
			}
		}
	}
	return "", false
}

type aliasEntry struct {
	alias string
	code  string
}

var aliasesByLength = sortAliases(countryAliases)

// sortAliases orders aliases longest first so "nigeria" is tried before
// "niger" and "northern ireland" before "ireland".
func sortAliases(aliases map[string]string) []aliasEntry {
	entries := make([]aliasEntry, 0, len(aliases))
	for alias, code := range aliases {
		entries = append(entries, aliasEntry{alias: alias, code: code})
	}
	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i].alias) != len(entries[j].alias) {
			return len(entries[i].alias) > len(entries[j].alias)
		}
		return entries[i].alias < entries[j].alias
	})
	return entries
}

var twoLetterRe = regexp.MustCompile(`^[A-Za-z]{2}$`)

func isTwoLetterCode(s string) bool {
	return twoLetterRe.MatchString(s)
}

func normalizeExplicit(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	return resolveToken(trimmed)
}

// resolveToken treats a whole line as either a country name or a bare code.
// Two-letter aliases such as "UK" map to their ISO code first.
func resolveToken(s string) (string, bool) {
	if code, ok := lookupAlias(s); ok {
		return code, true
	}
	if isTwoLetterCode(s) {
		return strings.ToUpper(s), true
	}
	return "", false
}

// lookupAlias matches a whole line against the alias table, tolerating
// trailing punctuation.
func lookupAlias(s string) (string, bool) {
	name := strings.ToLower(strings.Trim(strings.TrimSpace(s), ",;"))
	if code, ok := countryAliases[name]; ok {
		return code, true
	}
	code, ok := countryAliases[strings.TrimRight(name, ".")]
	return code, ok
}

func splitLines(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' })
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if trimmed := strings.Trim(strings.TrimSpace(line), ",;"); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}
