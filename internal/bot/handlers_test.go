package bot

import (
	"strings"
	"testing"

	"card-battle-system/internal/session"
	"card-battle-system/pkg/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestParseManualStats(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    models.CardAttributes
		wantErr bool
	}{
		{
			name: "Valid",
			args: []string{"120", "80", "rare", "500"},
			want: models.CardAttributes{Power: 120, Defense: 80, Rarity: models.RarityRare, Serial: 500},
		},
		{
			name: "UltraRareHyphenated",
			args: []string{"50", "50", "ultra-rare", "1000"},
			want: models.CardAttributes{Power: 50, Defense: 50, Rarity: models.RarityUltraRare, Serial: 1000},
		},
		{
			name: "ClampsOutOfRange",
			args: []string{"0", "5000", "common", "9999"},
			want: models.CardAttributes{Power: 1, Defense: 999, Rarity: models.RarityCommon, Serial: 1999},
		},
		{
			name:    "BadPower",
			args:    []string{"abc", "80", "rare", "500"},
			wantErr: true,
		},
		{
			name:    "BadRarity",
			args:    []string{"120", "80", "mythic", "500"},
			wantErr: true,
		},
		{
			name:    "BadSerial",
			args:    []string{"120", "80", "rare", "abc"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseManualStats(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestAnnounceResult(t *testing.T) {
	r := &session.Resolution{
		ChatID:       1,
		ParticipantA: models.Participant{ID: 1, Name: "alice"},
		ParticipantB: models.Participant{ID: 2, Name: "bob"},
		Result: models.BattleResult{
			ID:        "battle-1",
			StartingA: 230,
			StartingB: 120,
			FinalA:    100,
			FinalB:    0,
			Winner:    models.SideA,
			Exchanges: make([]models.Exchange, 7),
		},
		Handle: "http://render/replay/battle-1",
	}

	text := announceResult(r)
	for _, want := range []string{"@alice", "@bob", "230 HP", "120 HP", "Winner: @alice", "7 exchanges", "http://render/replay/battle-1"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected announcement to contain %q, got:\n%s", want, text)
		}
	}
}

func TestAnnounceResultDraw(t *testing.T) {
	r := &session.Resolution{
		ParticipantA: models.Participant{Name: "alice"},
		ParticipantB: models.Participant{Name: "bob"},
		Result:       models.BattleResult{Winner: models.SideNone},
	}

	text := announceResult(r)
	if !strings.Contains(text, "draw") {
		t.Errorf("Expected draw announcement, got:\n%s", text)
	}
	if strings.Contains(text, "Winner") {
		t.Errorf("Expected no winner in draw announcement, got:\n%s", text)
	}
	if strings.Contains(text, "Replay") {
		t.Errorf("Expected no replay link without a handle, got:\n%s", text)
	}
}

func TestDisplayName(t *testing.T) {
	if got := displayName(&tgbotapi.User{UserName: "alice", FirstName: "Alice"}); got != "alice" {
		t.Errorf("Expected username preferred, got %q", got)
	}
	if got := displayName(&tgbotapi.User{FirstName: "Alice"}); got != "Alice" {
		t.Errorf("Expected first name fallback, got %q", got)
	}
}

func TestIsImageDocument(t *testing.T) {
	if isImageDocument(nil) {
		t.Error("Expected nil document not to be an image")
	}
	if !isImageDocument(&tgbotapi.Document{MimeType: "image/png"}) {
		t.Error("Expected PNG document to be an image")
	}
	if isImageDocument(&tgbotapi.Document{MimeType: "application/pdf"}) {
		t.Error("Expected PDF document not to be an image")
	}
}
