// Package battle implements the combat core of the Card Battle System:
// the vitality formula that turns card attributes into starting HP, and the
// stochastic turn-based simulator that resolves two cards into a battle
// result. Both are pure over validated attributes and have no failure mode.
package battle

import "card-battle-system/pkg/models"

// rarityBonus is the fixed vitality bonus per rarity tier.
var rarityBonus = map[models.Rarity]int{
	models.RarityCommon:    0,
	models.RarityRare:      20,
	models.RarityUltraRare: 40,
	models.RarityLegendary: 60,
}

// ComputeVitality derives a card's starting vitality from its attributes.
//
// vitality = power + defense + rarity bonus + (2000 - serial) / 50
//
// The serial bonus is fractional and truncated after summation, so scarcer
// cards (lower serials) earn a larger bonus. The result is floored at 1:
// every card gets a fighting chance regardless of extraction quality.
func ComputeVitality(attrs models.CardAttributes) int {
	base := attrs.Power + attrs.Defense
	bonus := rarityBonus[attrs.Rarity]
	serialBonus := float64(2000-attrs.Serial) / 50.0

	vitality := int(float64(base+bonus) + serialBonus)
	if vitality < 1 {
		vitality = 1
	}
	return vitality
}
