package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in     string
		want   Role
		wantOK bool
	}{
		{"admin", RoleAdmin, true},
		{"customer", RoleCustomer, true},
		{"Admin", "", false},
		{"superuser", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseRole(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestRole_Home(t *testing.T) {
	if RoleAdmin.Home() != "/admin" {
		t.Errorf("admin home = %s", RoleAdmin.Home())
	}
	if RoleCustomer.Home() != "/account" {
		t.Errorf("customer home = %s", RoleCustomer.Home())
	}
}

func TestUser_PasswordHashNotSerialized(t *testing.T) {
	u := NewUser("a@b.co", "$2a$10$secret", RoleCustomer)
	data, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := m["passwordHash"]; ok {
		t.Error("password hash leaked into JSON")
	}
}

func TestCents_String(t *testing.T) {
	tests := []struct {
		in   Cents
		want string
	}{
		{6000, "$60.00"},
		{0, "$0.00"},
		{5, "$0.05"},
		{123456, "$1234.56"},
		{-250, "-$2.50"},
	}

	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("Cents(%d).String() = %s, want %s", int64(tt.in), got, tt.want)
		}
	}
}

func TestParseDollars(t *testing.T) {
	tests := []struct {
		in      string
		want    Cents
		wantErr bool
	}{
		{"60", 6000, false},
		{"60.5", 6050, false},
		{"$1,200.00", 120000, false},
		{"0.01", 1, false},
		{"1.005", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDollars(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDollars(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDollars(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLease_PaymentSchedule(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	lease := NewLease(uuid.New(), uuid.New(), "Uber Ready", 35000, start)

	schedule := lease.PaymentSchedule(4)

	if len(schedule) != 4 {
		t.Fatalf("len(schedule) = %d, want 4", len(schedule))
	}
	for i, p := range schedule {
		want := time.Date(2024, 3, 4+7*i, 0, 0, 0, 0, time.UTC)
		if !p.DueDate.Equal(want) {
			t.Errorf("schedule[%d].DueDate = %s, want %s", i, p.DueDate, want)
		}
		if p.Status != PaymentPending || p.Amount != 35000 || p.LeaseID != lease.ID {
			t.Errorf("schedule[%d] = %+v", i, p)
		}
	}

	if got := len(lease.PaymentSchedule(0)); got != DefaultTermWeeks {
		t.Errorf("default schedule length = %d, want %d", got, DefaultTermWeeks)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct{ in, want string }{
		{"2019 Toyota Camry-1ABC234", "2019-toyota-camry-1abc234"},
		{"  Hyundai  i30 (Hatch) ", "hyundai-i30-hatch"},
		{"--MG ZS--", "mg-zs"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewCustomerEvent(t *testing.T) {
	id := uuid.New()
	ev := NewCustomerEvent(id, EventSmsSent, map[string]string{"provider": "clicksend"})
	if ev.CustomerID != id || ev.Type != EventSmsSent {
		t.Errorf("unexpected event %+v", ev)
	}
	if string(ev.Payload) != `{"provider":"clicksend"}` {
		t.Errorf("Payload = %s", ev.Payload)
	}
}
