package battle

import (
	"math/rand"
	"time"

	"card-battle-system/pkg/models"
)

// Damage roll bounds: each attack deals power scaled by a uniform draw from
// [DamageRollMin, DamageRollMax), doubled on a critical hit.
const (
	DamageRollMin = 0.08
	DamageRollMax = 0.18
)

// Options contains the combat rule toggles. The zero value is not useful;
// start from DefaultOptions. Disabling DefenseMitigation or CriticalHits
// reproduces the simpler rule variants.
type Options struct {
	TurnCap           int     // Maximum attacks before the battle is called on remaining vitality
	CritChance        float64 // Probability of a critical hit per attack
	CritMultiplier    float64 // Damage multiplier on a critical hit
	DefenseMitigation bool    // Whether defender's defense reduces incoming damage
	CriticalHits      bool    // Whether critical hits are rolled
}

// DefaultOptions returns the full rule set: 100-turn cap, 10% criticals at
// double damage, defense mitigation on.
func DefaultOptions() Options {
	return Options{
		TurnCap:           100,
		CritChance:        0.10,
		CritMultiplier:    2.0,
		DefenseMitigation: true,
		CriticalHits:      true,
	}
}

// Combatant is one side of a simulated battle.
type Combatant struct {
	Vitality int // Starting HP, from ComputeVitality
	Power    int
	Defense  int
}

// Simulator resolves battles with an injectable random source so that
// outcomes are exactly reproducible under a fixed seed.
type Simulator struct {
	opts Options
	rng  *rand.Rand
}

// NewSimulator creates a simulator with the given options and random source.
// A nil rng gets a time-seeded source.
func NewSimulator(opts Options, rng *rand.Rand) *Simulator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Simulator{opts: opts, rng: rng}
}

// Simulate runs an alternating-turn battle between a and b, a attacking
// first. Each attack deals at least 1 damage, so the fight always makes
// progress; the turn cap bounds the exchange log even for pathological
// inputs. A defender reduced to 0 gets no retaliation turn. The returned
// result carries the full exchange log with running vitality snapshots.
func (s *Simulator) Simulate(a, b Combatant) models.BattleResult {
	vitA, vitB := a.Vitality, b.Vitality

	result := models.BattleResult{
		StartingA: vitA,
		StartingB: vitB,
	}

	attacker := models.SideA
	for turn := 1; turn <= s.opts.TurnCap && vitA > 0 && vitB > 0; turn++ {
		var dmg int
		var crit bool

		switch attacker {
		case models.SideA:
			dmg, crit = s.rollDamage(a.Power, b.Defense)
			vitB -= dmg
			if vitB < 0 {
				vitB = 0
			}
		case models.SideB:
			dmg, crit = s.rollDamage(b.Power, a.Defense)
			vitA -= dmg
			if vitA < 0 {
				vitA = 0
			}
		}

		result.Exchanges = append(result.Exchanges, models.Exchange{
			Turn:      turn,
			Attacker:  attacker,
			Damage:    dmg,
			VitalityA: vitA,
			VitalityB: vitB,
			Critical:  crit,
		})

		if attacker == models.SideA {
			attacker = models.SideB
		} else {
			attacker = models.SideA
		}
	}

	result.FinalA = vitA
	result.FinalB = vitB

	switch {
	case vitA > vitB:
		result.Winner = models.SideA
	case vitB > vitA:
		result.Winner = models.SideB
	default:
		result.Winner = models.SideNone
	}

	return result
}

// rollDamage computes one attack's damage. Defense mitigates after the roll
// but can never reduce a hit below 1.
func (s *Simulator) rollDamage(power, defense int) (int, bool) {
	crit := s.opts.CriticalHits && s.rng.Float64() < s.opts.CritChance

	roll := DamageRollMin + s.rng.Float64()*(DamageRollMax-DamageRollMin)
	mult := 1.0
	if crit {
		mult = s.opts.CritMultiplier
	}

	dmg := int(float64(power) * roll * mult)
	if dmg < 1 {
		dmg = 1
	}

	if s.opts.DefenseMitigation {
		dmg -= defense / 10
		if dmg < 1 {
			dmg = 1
		}
	}

	return dmg, crit
}
