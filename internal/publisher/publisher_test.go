package publisher

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jgoulah/dormpower/internal/config"
	"github.com/jgoulah/dormpower/pkg/models"
	"github.com/jgoulah/dormpower/pkg/trend"
)

func testSnapshot() Snapshot {
	dorm := models.Dorm{ID: "20414", Type: "2", Name: "12-305"}
	return Snapshot{
		Dorm: dorm,
		Reading: models.Reading{
			DormID:     dorm.ID,
			Timestamp:  time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
			BalanceKWh: 42.5,
		},
		Prediction: trend.Prediction{Kind: trend.Predict, Days: 8.5, DailyRate: 5},
		Level:      trend.Normal,
	}
}

// fakeHA records state writes and echoes them back like Home Assistant does
type fakeHA struct {
	mu     sync.Mutex
	states map[string]StatePayload
	auth   string
}

func (f *fakeHA) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	entity := strings.TrimPrefix(r.URL.Path, "/api/states/")
	body, _ := io.ReadAll(r.Body)

	var p StatePayload
	if err := json.Unmarshal(body, &p); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.states[entity] = p
	f.auth = r.Header.Get("Authorization")
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"entity_id":  entity,
		"state":      p.State,
		"attributes": p.Attributes,
	})
}

func TestPublishHomeAssistant(t *testing.T) {
	ha := &fakeHA{states: map[string]StatePayload{}}
	srv := httptest.NewServer(ha)
	defer srv.Close()

	p, err := New(config.MQTTConfig{}, config.HAConfig{
		Enabled:      true,
		URL:          srv.URL + "/",
		Token:        "secret",
		EntityID:     "sensor.dorm_balance",
		DaysEntityID: "sensor.dorm_days_remaining",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Close()

	if err := p.Publish(testSnapshot()); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if ha.auth != "Bearer secret" {
		t.Errorf("Authorization = %q", ha.auth)
	}
	balance, ok := ha.states["sensor.dorm_balance"]
	if !ok || balance.State != "42.50" {
		t.Fatalf("balance state = %+v", balance)
	}
	if balance.Attributes["unit_of_measurement"] != "kWh" {
		t.Errorf("unit = %v", balance.Attributes["unit_of_measurement"])
	}
	days, ok := ha.states["sensor.dorm_days_remaining"]
	if !ok || days.State != "8.5" {
		t.Fatalf("days state = %+v", days)
	}
}

func TestPublishHomeAssistantError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := New(config.MQTTConfig{}, config.HAConfig{Enabled: true, URL: srv.URL, Token: "bad", EntityID: "sensor.x"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	err = p.Publish(testSnapshot())
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("Publish() error = %v, want 401", err)
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		mqtt config.MQTTConfig
		ha   config.HAConfig
	}{
		{"nothing enabled", config.MQTTConfig{}, config.HAConfig{}},
		{"ha without url", config.MQTTConfig{}, config.HAConfig{Enabled: true, Token: "t", EntityID: "sensor.x"}},
		{"ha without token", config.MQTTConfig{}, config.HAConfig{Enabled: true, URL: "http://ha", EntityID: "sensor.x"}},
		{"ha without entity", config.MQTTConfig{}, config.HAConfig{Enabled: true, URL: "http://ha", Token: "t"}},
		{"mqtt without broker", config.MQTTConfig{Enabled: true}, config.HAConfig{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.mqtt, tt.ha); err == nil {
				t.Fatal("New() should fail")
			}
		})
	}
}

func TestMQTTMessages(t *testing.T) {
	s := testSnapshot()
	got := mqttMessages("dormpower", s)
	want := map[string]string{
		"dormpower/20414/balance":        "42.50",
		"dormpower/20414/days_remaining": "8.5",
		"dormpower/20414/status":         "normal",
	}
	if len(got) != len(want) {
		t.Fatalf("mqttMessages() = %+v", got)
	}
	for _, m := range got {
		if want[m.topic] != m.payload {
			t.Errorf("%s = %q, want %q", m.topic, m.payload, want[m.topic])
		}
	}

	s.Prediction = trend.Prediction{Kind: trend.Sufficient}
	s.Level = trend.Low
	for _, m := range mqttMessages("dp", s) {
		switch m.topic {
		case "dp/20414/days_remaining":
			if m.payload != "sufficient" {
				t.Errorf("days_remaining = %q", m.payload)
			}
		case "dp/20414/status":
			if m.payload != "low" {
				t.Errorf("status = %q", m.payload)
			}
		}
	}
}

func TestNewUnreachableBrokerFails(t *testing.T) {
	done := make(chan error, 1)
	go func() {
		p, err := New(config.MQTTConfig{Enabled: true, Broker: "127.0.0.1:1"}, config.HAConfig{})
		if p != nil {
			p.Close()
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("New() with unreachable broker should fail")
		}
	case <-time.After(connectTimeout + 10*time.Second):
		t.Fatal("New() did not return with an unreachable broker")
	}
}
