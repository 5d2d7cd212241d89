package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDefaultPoolConfig(t *testing.T) {
	pc := DefaultPoolConfig()

	if pc.MaxOpenConns != 25 {
		t.Errorf("MaxOpenConns = %d, want 25", pc.MaxOpenConns)
	}
	if pc.MaxIdleConns != 5 {
		t.Errorf("MaxIdleConns = %d, want 5", pc.MaxIdleConns)
	}
	if pc.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("ConnMaxLifetime = %v, want %v", pc.ConnMaxLifetime, 5*time.Minute)
	}
	if pc.ConnMaxIdleTime != 1*time.Minute {
		t.Errorf("ConnMaxIdleTime = %v, want %v", pc.ConnMaxIdleTime, 1*time.Minute)
	}
}

func TestUserPasswordHashNotInJSON(t *testing.T) {
	user := User{
		ID:           "0190b7a2-0000-7000-8000-000000000001",
		Email:        "admin@example.com",
		PasswordHash: "$2a$10$somebcrypthash",
		Role:         RoleAdmin,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	b, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if _, ok := m["password_hash"]; ok {
		t.Error("password_hash should NOT appear in JSON output")
	}
	if m["role"] != "admin" {
		t.Errorf("role = %v, want admin", m["role"])
	}
	if !user.IsAdmin() {
		t.Error("expected IsAdmin true for admin role")
	}
}

func TestAPIKeySecretMaterialNotInJSON(t *testing.T) {
	apiKey := APIKey{
		ID:        "0190b7a2-0000-7000-8000-000000000002",
		KeyHash:   "$2a$10$bcrypthashvalue",
		KeyPrefix: KeyPrefix,
		KeySuffix: "3f9a",
		Label:     "Mobile App",
		IsActive:  true,
		CreatedAt: time.Now(),
	}

	b, err := json.Marshal(apiKey)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	for _, field := range []string{"key_hash", "key_suffix"} {
		if _, ok := m[field]; ok {
			t.Errorf("%s should NOT appear in JSON output", field)
		}
	}
	if _, ok := m["last_used_at"]; ok {
		t.Error("last_used_at should be omitted when nil")
	}
	if _, ok := m["label"]; !ok {
		t.Error("label should be present in JSON output")
	}
}

func TestMaskedKey(t *testing.T) {
	k := APIKey{KeyPrefix: "mv_", KeySuffix: "beef"}
	if got := k.MaskedKey(); got != "mv_…beef" {
		t.Errorf("MaskedKey() = %q, want %q", got, "mv_…beef")
	}
}

func TestNewPagination(t *testing.T) {
	tests := []struct {
		total     int64
		limit     int
		wantPages int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{100, 7, 15},
		{5, 0, 0},
	}
	for _, tt := range tests {
		p := NewPagination(tt.total, 1, tt.limit)
		if p.TotalPages != tt.wantPages {
			t.Errorf("NewPagination(%d, 1, %d).TotalPages = %d, want %d",
				tt.total, tt.limit, p.TotalPages, tt.wantPages)
		}
	}
}

func TestResponseOmitsEmptyFields(t *testing.T) {
	b, err := json.Marshal(Response{Success: false, Message: "API key missing"})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	want := `{"success":false,"message":"API key missing"}`
	if string(b) != want {
		t.Errorf("got %s, want %s", b, want)
	}
}
