package battle

import (
	"math/rand"
	"testing"

	"card-battle-system/pkg/models"
)

func TestComputeVitality(t *testing.T) {
	tests := []struct {
		name     string
		attrs    models.CardAttributes
		expected int
	}{
		{
			// base=180, rarity=20, serial=(2000-500)/50=30
			name:     "WorkedExample",
			attrs:    models.NewCardAttributes(100, 80, models.RarityRare, 500),
			expected: 230,
		},
		{
			// base=100, rarity=0, serial=(2000-1000)/50=20
			name:     "DefaultRecord",
			attrs:    models.DefaultCardAttributes(),
			expected: 120,
		},
		{
			// base=2, rarity=0, serial=(2000-1999)/50=0.02 truncated
			name:     "MinimumCard",
			attrs:    models.NewCardAttributes(1, 1, models.RarityCommon, 1999),
			expected: 2,
		},
		{
			// base=1998, rarity=60, serial=(2000-1)/50=39.98 truncated with base
			name:     "MaximumCard",
			attrs:    models.NewCardAttributes(999, 999, models.RarityLegendary, 1),
			expected: 2097,
		},
		{
			name:     "FractionalSerialBonusTruncated",
			attrs:    models.NewCardAttributes(50, 50, models.RarityCommon, 1975),
			expected: 100, // serial bonus 0.5 truncates away
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeVitality(tt.attrs)
			if got != tt.expected {
				t.Errorf("expected vitality %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestComputeVitality_Deterministic(t *testing.T) {
	attrs := models.NewCardAttributes(123, 45, models.RarityUltraRare, 678)
	first := ComputeVitality(attrs)
	second := ComputeVitality(attrs)
	if first != second {
		t.Errorf("vitality not deterministic: %d vs %d", first, second)
	}
}

func TestComputeVitality_Monotonicity(t *testing.T) {
	base := models.NewCardAttributes(100, 100, models.RarityRare, 1000)
	baseVit := ComputeVitality(base)

	morePower := base
	morePower.Power = 150
	if ComputeVitality(morePower) < baseVit {
		t.Error("increasing power decreased vitality")
	}

	moreDefense := base
	moreDefense.Defense = 150
	if ComputeVitality(moreDefense) < baseVit {
		t.Error("increasing defense decreased vitality")
	}

	scarcer := base
	scarcer.Serial = 100
	if ComputeVitality(scarcer) < baseVit {
		t.Error("decreasing serial decreased vitality")
	}
}

func TestComputeVitality_RarityOrdering(t *testing.T) {
	rarities := []models.Rarity{
		models.RarityCommon, models.RarityRare, models.RarityUltraRare, models.RarityLegendary,
	}

	prev := -1
	for _, r := range rarities {
		vit := ComputeVitality(models.NewCardAttributes(100, 100, r, 1000))
		if vit <= prev {
			t.Errorf("rarity %s did not increase vitality: %d <= %d", r, vit, prev)
		}
		prev = vit
	}
}

func TestComputeVitality_AlwaysPositive(t *testing.T) {
	attrs := models.NewCardAttributes(1, 1, models.RarityCommon, 1999)
	if vit := ComputeVitality(attrs); vit < 1 {
		t.Errorf("expected vitality >= 1, got %d", vit)
	}
}

func TestSimulate_Terminates(t *testing.T) {
	sim := NewSimulator(DefaultOptions(), rand.New(rand.NewSource(1)))

	a := Combatant{Vitality: 230, Power: 100, Defense: 80}
	b := Combatant{Vitality: 150, Power: 70, Defense: 60}

	result := sim.Simulate(a, b)

	if len(result.Exchanges) == 0 {
		t.Fatal("expected at least one exchange")
	}
	if len(result.Exchanges) > 100 {
		t.Errorf("exchange log exceeds turn cap: %d", len(result.Exchanges))
	}
	if result.FinalA < 0 || result.FinalB < 0 {
		t.Errorf("negative final vitality: %d / %d", result.FinalA, result.FinalB)
	}
	if result.FinalA != 0 && result.FinalB != 0 {
		t.Errorf("expected one side at 0 for such an uneven fight, got %d / %d", result.FinalA, result.FinalB)
	}
}

func TestSimulate_Deterministic(t *testing.T) {
	a := Combatant{Vitality: 230, Power: 100, Defense: 80}
	b := Combatant{Vitality: 150, Power: 70, Defense: 60}

	first := NewSimulator(DefaultOptions(), rand.New(rand.NewSource(42))).Simulate(a, b)
	second := NewSimulator(DefaultOptions(), rand.New(rand.NewSource(42))).Simulate(a, b)

	if first.FinalA != second.FinalA || first.FinalB != second.FinalB {
		t.Errorf("same seed produced different outcomes: %+v vs %+v", first, second)
	}
	if len(first.Exchanges) != len(second.Exchanges) {
		t.Errorf("same seed produced different exchange counts: %d vs %d",
			len(first.Exchanges), len(second.Exchanges))
	}
}

func TestSimulate_Progress(t *testing.T) {
	// High defense relative to power: mitigation would zero the raw roll,
	// but every hit must still land for at least 1.
	sim := NewSimulator(DefaultOptions(), rand.New(rand.NewSource(7)))

	a := Combatant{Vitality: 50, Power: 5, Defense: 999}
	b := Combatant{Vitality: 50, Power: 5, Defense: 999}

	result := sim.Simulate(a, b)

	for _, ex := range result.Exchanges {
		if ex.Damage < 1 {
			t.Fatalf("exchange %d dealt %d damage", ex.Turn, ex.Damage)
		}
	}
}

func TestSimulate_WinnerConsistency(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		sim := NewSimulator(DefaultOptions(), rand.New(rand.NewSource(seed)))

		a := Combatant{Vitality: 120, Power: 90, Defense: 40}
		b := Combatant{Vitality: 120, Power: 90, Defense: 40}
		result := sim.Simulate(a, b)

		switch {
		case result.FinalA > result.FinalB:
			if result.Winner != models.SideA {
				t.Errorf("seed %d: expected winner A, got %s", seed, result.Winner)
			}
		case result.FinalB > result.FinalA:
			if result.Winner != models.SideB {
				t.Errorf("seed %d: expected winner B, got %s", seed, result.Winner)
			}
		default:
			if result.Winner != models.SideNone {
				t.Errorf("seed %d: expected tie, got %s", seed, result.Winner)
			}
		}
	}
}

func TestSimulate_NoRetaliationAfterKnockout(t *testing.T) {
	sim := NewSimulator(DefaultOptions(), rand.New(rand.NewSource(3)))

	// B dies to the first hit and must not get a turn.
	a := Combatant{Vitality: 100, Power: 999, Defense: 1}
	b := Combatant{Vitality: 1, Power: 999, Defense: 1}

	result := sim.Simulate(a, b)

	if len(result.Exchanges) != 1 {
		t.Fatalf("expected exactly 1 exchange, got %d", len(result.Exchanges))
	}
	if result.Exchanges[0].Attacker != models.SideA {
		t.Errorf("expected side A to attack first, got %s", result.Exchanges[0].Attacker)
	}
	if result.FinalA != 100 {
		t.Errorf("expected A untouched at 100, got %d", result.FinalA)
	}
	if result.Winner != models.SideA {
		t.Errorf("expected winner A, got %s", result.Winner)
	}
}

func TestSimulate_TurnCapDeclaresHigherVitality(t *testing.T) {
	opts := DefaultOptions()
	opts.TurnCap = 4

	sim := NewSimulator(opts, rand.New(rand.NewSource(11)))

	a := Combatant{Vitality: 100000, Power: 10, Defense: 10}
	b := Combatant{Vitality: 90000, Power: 10, Defense: 10}

	result := sim.Simulate(a, b)

	if len(result.Exchanges) != 4 {
		t.Fatalf("expected exactly 4 exchanges at the cap, got %d", len(result.Exchanges))
	}
	if result.FinalA <= 0 || result.FinalB <= 0 {
		t.Fatal("expected both sides alive at the cap")
	}
	if result.FinalA > result.FinalB && result.Winner != models.SideA {
		t.Errorf("expected remaining-vitality winner A, got %s", result.Winner)
	}
}

func TestSimulate_CriticalHitsDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.CriticalHits = false

	sim := NewSimulator(opts, rand.New(rand.NewSource(5)))

	a := Combatant{Vitality: 500, Power: 100, Defense: 10}
	b := Combatant{Vitality: 500, Power: 100, Defense: 10}

	result := sim.Simulate(a, b)

	for _, ex := range result.Exchanges {
		if ex.Critical {
			t.Fatalf("exchange %d rolled a critical with criticals disabled", ex.Turn)
		}
	}
}

func TestSimulate_DefenseMitigationReducesDamage(t *testing.T) {
	// Same seed, same power; the armored defender must take no more damage
	// on the opening hit than the unarmored one.
	a := Combatant{Vitality: 1000, Power: 200, Defense: 0}

	unarmored := Combatant{Vitality: 1000, Power: 200, Defense: 0}
	armored := Combatant{Vitality: 1000, Power: 200, Defense: 500}

	first := NewSimulator(DefaultOptions(), rand.New(rand.NewSource(9))).Simulate(a, unarmored)
	second := NewSimulator(DefaultOptions(), rand.New(rand.NewSource(9))).Simulate(a, armored)

	if second.Exchanges[0].Damage >= first.Exchanges[0].Damage {
		t.Errorf("expected mitigation to reduce damage: %d vs %d",
			second.Exchanges[0].Damage, first.Exchanges[0].Damage)
	}
}

func TestSimulate_ExchangeSnapshotsConsistent(t *testing.T) {
	sim := NewSimulator(DefaultOptions(), rand.New(rand.NewSource(13)))

	a := Combatant{Vitality: 200, Power: 80, Defense: 30}
	b := Combatant{Vitality: 180, Power: 75, Defense: 25}

	result := sim.Simulate(a, b)

	vitA, vitB := a.Vitality, b.Vitality
	for _, ex := range result.Exchanges {
		switch ex.Attacker {
		case models.SideA:
			vitB -= ex.Damage
			if vitB < 0 {
				vitB = 0
			}
		case models.SideB:
			vitA -= ex.Damage
			if vitA < 0 {
				vitA = 0
			}
		}
		if ex.VitalityA != vitA || ex.VitalityB != vitB {
			t.Fatalf("turn %d snapshot mismatch: got (%d,%d), want (%d,%d)",
				ex.Turn, ex.VitalityA, ex.VitalityB, vitA, vitB)
		}
	}

	last := result.Exchanges[len(result.Exchanges)-1]
	if last.VitalityA != result.FinalA || last.VitalityB != result.FinalB {
		t.Error("final vitalities disagree with last exchange snapshot")
	}
}
