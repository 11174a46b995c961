package verify

import (
	"net/url"
	"strings"
)

// SourceTemplate describes one queryable origin. The URL template
// substitutes {query} with the URL-escaped normalized claim.
type SourceTemplate struct {
	// Domain labels the origin in the record.
	Domain string
	// URLTemplate contains a {query} placeholder.
	URLTemplate string
}

// PlannedFetch is one fetch the executor will attempt.
type PlannedFetch struct {
	Source Source
	URL    string
}

// Planner turns a claim into an ordered fetch plan: trusted domains in
// configured order first, general sources after. The order is fixed by
// configuration, never randomized, so runs and their diagnostics are
// reproducible.
type Planner struct {
	trusted []SourceTemplate
	general []SourceTemplate
}

// NewPlanner builds a planner from the two source tiers.
func NewPlanner(trusted, general []SourceTemplate) *Planner {
	return &Planner{trusted: trusted, general: general}
}

// TrustedPlan returns up to max trusted fetches for the claim.
func (p *Planner) TrustedPlan(claim string, max int) []PlannedFetch {
	return expand(p.trusted, claim, max, true)
}

// GeneralPlan returns up to max general fetches for the claim.
func (p *Planner) GeneralPlan(claim string, max int) []PlannedFetch {
	return expand(p.general, claim, max, false)
}

func expand(templates []SourceTemplate, claim string, max int, trusted bool) []PlannedFetch {
	if max <= 0 {
		return nil
	}
	query := url.QueryEscape(NormalizeClaim(claim))
	plan := make([]PlannedFetch, 0, min(max, len(templates)))
	for _, tpl := range templates {
		if len(plan) == max {
			break
		}
		target := strings.ReplaceAll(tpl.URLTemplate, "{query}", query)
		plan = append(plan, PlannedFetch{
			Source: Source{Domain: tpl.Domain, URL: target, Trusted: trusted},
			URL:    target,
		})
	}
	return plan
}
