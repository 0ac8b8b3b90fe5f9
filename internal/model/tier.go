package model

import (
	"fmt"
	"strings"
)

// Tier is a patronage level.  Tiers are totally ordered by their numeric
// value, so comparisons between tiers are plain integer comparisons.
type Tier int

const (
	TierCitizen Tier = iota
	TierKnight
	TierEmissary
	TierDuke
	TierWizard
	TierArchMage
)

var tierNames = [...]string{"Citizen", "Knight", "Emissary", "Duke", "Wizard", "ArchMage"}

// tierThresholds lists the minimum entitled pledge (in cents) for each paid
// tier, highest first.  A boundary value resolves to the higher tier.
var tierThresholds = []struct {
	minCents int64
	tier     Tier
}{
	{25000, TierArchMage},
	{16500, TierWizard},
	{5000, TierDuke},
	{3000, TierEmissary},
	{1000, TierKnight},
}

// ResolveTier maps an entitled pledge amount to a tier.  It is total:
// zero, negative or unknown pledges resolve to Citizen.
func ResolveTier(entitledAmountCents int64) Tier {
	for _, th := range tierThresholds {
		if entitledAmountCents >= th.minCents {
			return th.tier
		}
	}
	return TierCitizen
}

// Rank returns the ordinal position of the tier.
func (t Tier) Rank() int { return int(t) }

// Valid reports whether t is one of the declared tiers.
func (t Tier) Valid() bool { return t >= TierCitizen && t <= TierArchMage }

func (t Tier) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Tier(%d)", int(t))
	}
	return tierNames[t]
}

// AtLeast reports whether t grants access to content gated at min.
func (t Tier) AtLeast(min Tier) bool { return t >= min }

// ParseTier converts a tier name (case-insensitive) back into a Tier.
func ParseTier(s string) (Tier, error) {
	for i, name := range tierNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Tier(i), nil
		}
	}
	return TierCitizen, fmt.Errorf("unknown tier %q", s)
}
