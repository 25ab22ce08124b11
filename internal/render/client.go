package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"card-battle-system/pkg/auth"
	"card-battle-system/pkg/config"
	"card-battle-system/pkg/models"

	"github.com/google/uuid"
)

// Client talks to the render service from the bot side. It implements the
// session Presenter contract: hand over a battle result, get back an opaque
// replay handle.
type Client struct {
	baseURL  string
	keyID    string
	hmacAuth *auth.HMACAuth
	client   *http.Client
}

// NewClient creates a render client from the shared configuration.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:  cfg.RenderURL,
		keyID:    cfg.RenderHMACKeyID,
		hmacAuth: auth.NewHMACAuth(cfg.GetRenderSecrets(), cfg.GetClockSkew()),
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Present sends the battle result to the render service and returns the
// replay handle. Safe to retry: the render endpoint is idempotent on battle
// id and a duplicate request returns the original handle.
func (c *Client) Present(ctx context.Context, result models.BattleResult, a, b models.Participant) (string, error) {
	renderReq := models.RenderRequest{
		BattleID:     result.ID,
		Result:       result,
		ParticipantA: a,
		ParticipantB: b,
	}

	body, err := json.Marshal(renderReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal render request: %w", err)
	}

	nonce := uuid.New().String()
	authHeader := c.hmacAuth.CreateAuthHeader("POST", "/render", body, c.keyID, nonce)
	if authHeader == "" {
		return "", fmt.Errorf("failed to create auth header")
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authHeader)
	req.Header.Set("X-Request-ID", uuid.New().String())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send render request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("render service returned status %d", resp.StatusCode)
	}

	var renderResp models.RenderResponse
	if err := json.NewDecoder(resp.Body).Decode(&renderResp); err != nil {
		return "", fmt.Errorf("failed to decode render response: %w", err)
	}

	return c.baseURL + renderResp.Handle, nil
}
