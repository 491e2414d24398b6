package publisher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jgoulah/dormpower/internal/config"
	"github.com/jgoulah/dormpower/pkg/trend"
)

type homeAssistant struct {
	cfg    config.HAConfig
	client *http.Client
}

func newHomeAssistant(cfg config.HAConfig) (*homeAssistant, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("Home Assistant URL is required when enabled")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("Home Assistant token is required when enabled")
	}
	if cfg.EntityID == "" {
		return nil, fmt.Errorf("Home Assistant entity_id is required when enabled")
	}
	return &homeAssistant{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// StatePayload is the body of POST /api/states/<entity_id>
type StatePayload struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func (h *homeAssistant) publish(s Snapshot) error {
	balance := StatePayload{
		State: fmt.Sprintf("%.2f", s.Reading.BalanceKWh),
		Attributes: map[string]any{
			"unit_of_measurement": "kWh",
			"device_class":        "energy",
			"friendly_name":       s.Dorm.Label() + " balance",
			"dorm_id":             s.Dorm.ID,
			"level":               s.Level.String(),
			"queried_at":          s.Reading.Timestamp.Format(time.RFC3339),
		},
	}
	if err := h.setState(h.cfg.EntityID, balance); err != nil {
		return err
	}

	if h.cfg.DaysEntityID == "" {
		return nil
	}

	days := StatePayload{
		State: s.Prediction.Kind.String(),
		Attributes: map[string]any{
			"friendly_name": s.Dorm.Label() + " days remaining",
			"dorm_id":       s.Dorm.ID,
		},
	}
	switch s.Prediction.Kind {
	case trend.Predict:
		days.State = fmt.Sprintf("%.1f", s.Prediction.Days)
		days.Attributes["unit_of_measurement"] = "d"
		days.Attributes["daily_rate_kwh"] = s.Prediction.DailyRate
	case trend.InsufficientData:
		days.Attributes["reason"] = s.Prediction.Reason
	}
	return h.setState(h.cfg.DaysEntityID, days)
}

func (h *homeAssistant) setState(entityID string, payload StatePayload) error {
	apiURL := fmt.Sprintf("%s/api/states/%s", strings.TrimRight(h.cfg.URL, "/"), entityID)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	// 200 updates an existing entity, 201 creates it
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("HTTP error: status %d, response: %s", resp.StatusCode, string(respBody))
	}

	if got := gjson.GetBytes(respBody, "entity_id"); got.Exists() && got.String() != entityID {
		return fmt.Errorf("unexpected entity in response: %s", got.String())
	}
	if got := gjson.GetBytes(respBody, "state"); got.Exists() && got.String() != payload.State {
		return fmt.Errorf("state not applied for %s: sent %s, got %s", entityID, payload.State, got.String())
	}

	return nil
}
