// Package domain contains core business types and interfaces.
//
// This file is the single home of the tier, role and country constants. Handlers,
// services and the admin operations all read them from here.
package domain

import "strings"

// Tier is a named quota class bounding daily allocations and country-lock behavior.
type Tier string

const (
	Tier1 Tier = "tier1"
	Tier2 Tier = "tier2"
	Tier3 Tier = "tier3"
)

// DefaultTier is assigned to accounts created lazily.
const DefaultTier = Tier1

// tierQuotas maps each tier to its daily allocation quota.
var tierQuotas = map[Tier]int{
	Tier1: 8,
	Tier2: 20,
	Tier3: 50,
}

// Tiers lists the known tiers in ascending order.
var Tiers = []Tier{Tier1, Tier2, Tier3}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := tierQuotas[t]
	return ok
}

// TierQuota returns the daily quota for a tier. Unknown tiers get zero.
func TierQuota(t Tier) int {
	return tierQuotas[t]
}

// ParseTier validates a raw tier value.
func ParseTier(s string) (Tier, bool) {
	t := Tier(strings.TrimSpace(s))
	return t, t.Valid()
}

// Role is an optional administrative role held on the account record.
type Role string

const (
	RoleNone       Role = ""
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Valid reports whether r is assignable. RoleNone clears the role.
func (r Role) Valid() bool {
	switch r {
	case RoleNone, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Countries is the allow-list of pool countries.
var Countries = []string{"Canada", "USA", "Spain"}

// ParseCountry matches s against the allow-list case-insensitively and returns the
// canonical spelling.
func ParseCountry(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, c := range Countries {
		if strings.EqualFold(c, s) {
			return c, true
		}
	}
	return "", false
}

// PoolKey identifies one (country, tier) slice of the number pool.
type PoolKey struct {
	Country string
	Tier    Tier
}

// PoolKeys enumerates every (country, tier) combination.
func PoolKeys() []PoolKey {
	keys := make([]PoolKey, 0, len(Countries)*len(Tiers))
	for _, c := range Countries {
		for _, t := range Tiers {
			keys = append(keys, PoolKey{Country: c, Tier: t})
		}
	}
	return keys
}
