package rules

import "strings"

// UnknownOwner is the documented fallback when no roster name matches.
const UnknownOwner = "unknown"

// OwnerParser recovers an owner name from free-text campaign names by
// roster substring match. This is best-effort string heuristics: an
// enrichment step, not part of the core data model.
type OwnerParser struct {
	roster []string
}

// NewOwnerParser builds a parser over the configured owner roster.
func NewOwnerParser(roster []string) *OwnerParser {
	names := make([]string, 0, len(roster))
	for _, name := range roster {
		name = strings.TrimSpace(name)
		if name != "" {
			names = append(names, name)
		}
	}
	return &OwnerParser{roster: names}
}

// Parse returns the matched owner, lowercased, and whether a match was
// found.
func (p *OwnerParser) Parse(campaignName string) (string, bool) {
	if campaignName == "" {
		return "", false
	}
	lower := strings.ToLower(campaignName)
	for _, owner := range p.roster {
		if strings.Contains(lower, strings.ToLower(owner)) {
			return strings.ToLower(owner), true
		}
	}
	return "", false
}

// OwnerOrUnknown applies the fallback.
func (p *OwnerParser) OwnerOrUnknown(campaignName string) string {
	if owner, ok := p.Parse(campaignName); ok {
		return owner
	}
	return UnknownOwner
}
