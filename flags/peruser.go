package flags

import (
	"time"
)

// Definition is one compiled-in per-user flag.
type Definition struct {
	// Name identifies the flag.
	Name string
	// DefaultValue is returned when no targeting rule decides.
	DefaultValue bool
	// RolloutPercentage, when set, enables the flag for users whose
	// bucket falls below it (0 disables, 100 enables everyone).
	RolloutPercentage *int
	// EnabledTiers short-circuits to enabled for listed tiers.
	EnabledTiers []string
	// EnabledAfter enables the flag for accounts created on or after
	// the instant.
	EnabledAfter *time.Time
	// Variants, when non-empty, makes this a variant flag; assignment
	// is variants[StableHash(userId) mod len(variants)].
	Variants []string
}

// User is the evaluation input. Zero fields simply skip the rules that
// need them.
type User struct {
	ID        string
	Tier      string
	CreatedAt time.Time
	// PercentileOverride replaces the hashed bucket when set; used by
	// support tooling to force a user in or out of a rollout.
	PercentileOverride *int
}

// PerUser evaluates compiled-in per-user flag definitions. Evaluation is
// pure: no clock, no store, no mutation — two processes given the same
// inputs always agree.
type PerUser struct {
	defs map[string]Definition
}

// NewPerUser indexes the definitions by name.
func NewPerUser(defs []Definition) *PerUser {
	m := make(map[string]Definition, len(defs))
	for _, def := range defs {
		m[def.Name] = def
	}
	return &PerUser{defs: m}
}

// Enabled evaluates the named flag for the user. Rule order: tier
// allowlist, then creation date, then rollout percentile, then the
// default. Unknown flags are disabled.
func (p *PerUser) Enabled(name string, user User) bool {
	def, ok := p.defs[name]
	if !ok {
		return false
	}

	for _, tier := range def.EnabledTiers {
		if user.Tier == tier {
			return true
		}
	}

	if def.EnabledAfter != nil && !user.CreatedAt.IsZero() && !user.CreatedAt.Before(*def.EnabledAfter) {
		return true
	}

	if def.RolloutPercentage != nil && user.ID != "" {
		bucket := Bucket(user.ID)
		if user.PercentileOverride != nil {
			bucket = *user.PercentileOverride
		}
		return bucket < *def.RolloutPercentage
	}

	return def.DefaultValue
}

// Variant returns the variant assignment for a variant flag, or "" when
// the flag is unknown, has no variants, or the user id is empty.
func (p *PerUser) Variant(name string, user User) string {
	def, ok := p.defs[name]
	if !ok || len(def.Variants) == 0 || user.ID == "" {
		return ""
	}
	return def.Variants[int(StableHash(user.ID))%len(def.Variants)]
}
