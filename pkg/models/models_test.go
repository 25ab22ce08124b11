package models

import "testing"

func TestParseRarity(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    Rarity
		expectError bool
	}{
		{name: "Common", input: "common", expected: RarityCommon},
		{name: "Rare", input: "Rare", expected: RarityRare},
		{name: "UltraRare_Hyphen", input: "ultra-rare", expected: RarityUltraRare},
		{name: "UltraRare_Space", input: "Ultra Rare", expected: RarityUltraRare},
		{name: "UltraRare_Joined", input: "ultrarare", expected: RarityUltraRare},
		{name: "Legendary", input: "LEGENDARY", expected: RarityLegendary},
		{name: "Whitespace", input: "  rare  ", expected: RarityRare},
		{name: "Unknown", input: "mythic", expectError: true},
		{name: "Empty", input: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRarity(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for %q, got %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestNewCardAttributesClamping(t *testing.T) {
	tests := []struct {
		name    string
		power   int
		defense int
		serial  int
		want    CardAttributes
	}{
		{
			name:  "InRange",
			power: 100, defense: 80, serial: 500,
			want: CardAttributes{Power: 100, Defense: 80, Rarity: RarityRare, Serial: 500},
		},
		{
			name:  "BelowMinimum",
			power: 0, defense: -5, serial: 0,
			want: CardAttributes{Power: 1, Defense: 1, Rarity: RarityRare, Serial: 1},
		},
		{
			name:  "AboveMaximum",
			power: 5000, defense: 1000, serial: 9999,
			want: CardAttributes{Power: 999, Defense: 999, Rarity: RarityRare, Serial: 1999},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewCardAttributes(tt.power, tt.defense, RarityRare, tt.serial)
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestNewCardAttributesEmptyRarity(t *testing.T) {
	got := NewCardAttributes(10, 10, "", 10)
	if got.Rarity != RarityCommon {
		t.Errorf("expected empty rarity to fall back to Common, got %q", got.Rarity)
	}
}

func TestDefaultCardAttributes(t *testing.T) {
	got := DefaultCardAttributes()
	want := CardAttributes{Power: 50, Defense: 50, Rarity: RarityCommon, Serial: 1000}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}
