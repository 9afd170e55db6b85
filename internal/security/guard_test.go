package security

import (
	"sync"
	"testing"
	"time"

	"github.com/Samehadar/telegram-bot/internal/config"
)

func testCfg() config.SecurityConfig {
	return config.SecurityConfig{
		Mode: "allowlist",
		Roles: map[string][]string{
			"admin":  {"1234567890"},
			"member": {"987654321", "@Alice"},
		},
		DenyMessage:      "denied",
		RateLimit:        3,
		RateWindow:       60,
		SessionIsolation: true,
		DefaultRole:      "member",
	}
}

func TestAllowlistAllow(t *testing.T) {
	g := New(testCfg())
	if v := g.Check(1234567890, ""); v != Allow {
		t.Fatalf("expected Allow, got %s", v)
	}
}

func TestAllowlistDeny(t *testing.T) {
	g := New(testCfg())
	if v := g.Check(5555, "mallory"); v != Deny {
		t.Fatalf("expected Deny, got %s", v)
	}
}

func TestAllowlistByUsername(t *testing.T) {
	g := New(testCfg())
	if v := g.Check(42, "alice"); v != Allow {
		t.Fatalf("expected Allow for listed username, got %s", v)
	}
	if r := g.Role(42, "ALICE"); r != "member" {
		t.Fatalf("expected member, got %s", r)
	}
}

func TestOpenModeAllowsAnyone(t *testing.T) {
	cfg := testCfg()
	cfg.Mode = "open"
	g := New(cfg)
	if v := g.Check(5555, ""); v != Allow {
		t.Fatalf("expected Allow in open mode, got %s", v)
	}
}

func TestRoleResolution(t *testing.T) {
	g := New(testCfg())

	if r := g.Role(1234567890, ""); r != "admin" {
		t.Fatalf("expected admin, got %s", r)
	}
	if r := g.Role(987654321, ""); r != "member" {
		t.Fatalf("expected member, got %s", r)
	}
}

func TestRoleDefaultInOpenMode(t *testing.T) {
	cfg := testCfg()
	cfg.Mode = "open"
	cfg.DefaultRole = "guest"
	g := New(cfg)

	if r := g.Role(5555, ""); r != "guest" {
		t.Fatalf("expected default role guest, got %s", r)
	}
}

func TestRateLimiting(t *testing.T) {
	cfg := testCfg()
	cfg.RateLimit = 2
	g := New(cfg)
	now := time.Now()
	g.now = func() time.Time { return now }

	if v := g.Check(1234567890, ""); v != Allow {
		t.Fatalf("first check: expected Allow, got %s", v)
	}
	if v := g.Check(1234567890, ""); v != Allow {
		t.Fatalf("second check: expected Allow, got %s", v)
	}
	if v := g.Check(1234567890, ""); v != RateLimited {
		t.Fatalf("third check: expected RateLimited, got %s", v)
	}
	// Other senders have their own budget.
	if v := g.Check(987654321, ""); v != Allow {
		t.Fatalf("other sender: expected Allow, got %s", v)
	}
}

func TestRateLimitWindowReset(t *testing.T) {
	cfg := testCfg()
	cfg.RateLimit = 1
	cfg.RateWindow = 60
	g := New(cfg)

	now := time.Now()
	g.now = func() time.Time { return now }

	if v := g.Check(1234567890, ""); v != Allow {
		t.Fatalf("expected Allow, got %s", v)
	}
	if v := g.Check(1234567890, ""); v != RateLimited {
		t.Fatalf("expected RateLimited, got %s", v)
	}

	g.now = func() time.Time { return now.Add(61 * time.Second) }
	if v := g.Check(1234567890, ""); v != Allow {
		t.Fatalf("expected Allow after window reset, got %s", v)
	}
}

func TestConcurrentChecks(t *testing.T) {
	cfg := testCfg()
	cfg.RateLimit = 50
	g := New(cfg)
	now := time.Now()
	g.now = func() time.Time { return now }

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Check(1234567890, "") == Allow {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 50 {
		t.Fatalf("expected exactly 50 allowed, got %d", allowed)
	}
}

func TestSessionKeyIsolation(t *testing.T) {
	g := New(testCfg())
	key := g.SessionKey("main", 1234567890)
	if key != "main-tg-1234567890" {
		t.Fatalf("expected main-tg-1234567890, got %s", key)
	}
}

func TestSessionKeyNoIsolation(t *testing.T) {
	cfg := testCfg()
	cfg.SessionIsolation = false
	g := New(cfg)
	key := g.SessionKey("main", 1234567890)
	if key != "main" {
		t.Fatalf("expected main, got %s", key)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"1234567890", "1234567890"},
		{" 42 ", "42"},
		{"@Alice", "@alice"},
		{"bob", "@bob"},
		{"@", ""},
		{"", ""},
	}
	for _, tt := range tests {
		got := normalize(tt.input)
		if got != tt.want {
			t.Errorf("normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDenyMessage(t *testing.T) {
	g := New(testCfg())
	if g.DenyMessage() != "denied" {
		t.Fatalf("expected denied, got %q", g.DenyMessage())
	}
}
