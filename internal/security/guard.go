package security

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Samehadar/telegram-bot/internal/config"
)

// Verdict represents the outcome of a guard check.
type Verdict int

const (
	Allow Verdict = iota
	Deny
	RateLimited
)

func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case RateLimited:
		return "rate_limited"
	default:
		return "verdict(" + strconv.Itoa(int(v)) + ")"
	}
}

// Guard enforces sender allowlist, rate limiting, role resolution, and session isolation.
//
// Senders are identified by their numeric Telegram user id; the roles map may
// also list @usernames, which are matched case-insensitively.
type Guard struct {
	mode        string
	senderTo    map[string]string // normalized id or username → role
	defaultRole string
	denyMessage string
	limit       rate.Limit
	burst       int
	isolate     bool
	now         func() time.Time
	mu          sync.Mutex
	limiters    map[int64]*rate.Limiter
}

// New creates a Guard from the security config. It inverts the
// role→[]senders map into a sender→role lookup.
func New(cfg config.SecurityConfig) *Guard {
	senderTo := make(map[string]string)
	for role, senders := range cfg.Roles {
		for _, s := range senders {
			n := normalize(s)
			if n == "" {
				continue
			}
			if _, exists := senderTo[n]; !exists {
				senderTo[n] = role
			}
		}
	}

	window := time.Duration(cfg.RateWindow) * time.Second
	limit := rate.Inf
	if cfg.RateLimit > 0 && window > 0 {
		limit = rate.Limit(float64(cfg.RateLimit) / window.Seconds())
	}

	return &Guard{
		mode:        cfg.Mode,
		senderTo:    senderTo,
		defaultRole: cfg.DefaultRole,
		denyMessage: cfg.DenyMessage,
		limit:       limit,
		burst:       cfg.RateLimit,
		isolate:     cfg.SessionIsolation,
		now:         time.Now,
		limiters:    make(map[int64]*rate.Limiter),
	}
}

// Check returns Allow, Deny, or RateLimited for the given sender.
func (g *Guard) Check(userID int64, username string) Verdict {
	if g.mode == "allowlist" {
		if _, ok := g.lookup(userID, username); !ok {
			return Deny
		}
	}

	g.mu.Lock()
	lim, ok := g.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(g.limit, g.burst)
		g.limiters[userID] = lim
	}
	now := g.now()
	g.mu.Unlock()

	if !lim.AllowN(now, 1) {
		return RateLimited
	}
	return Allow
}

// Role returns the sender's mapped role, or the default role if the sender
// is not listed.
func (g *Guard) Role(userID int64, username string) string {
	if role, ok := g.lookup(userID, username); ok {
		return role
	}
	return g.defaultRole
}

// DenyMessage returns the configured denial message.
func (g *Guard) DenyMessage() string {
	return g.denyMessage
}

// SessionKey returns a per-sender session key if isolation is enabled,
// otherwise returns the base key unchanged.
func (g *Guard) SessionKey(baseKey string, userID int64) string {
	if !g.isolate {
		return baseKey
	}
	return baseKey + "-tg-" + strconv.FormatInt(userID, 10)
}

func (g *Guard) lookup(userID int64, username string) (string, bool) {
	if role, ok := g.senderTo[strconv.FormatInt(userID, 10)]; ok {
		return role, true
	}
	if n := normalize(username); n != "" {
		role, ok := g.senderTo["@"+strings.TrimPrefix(n, "@")]
		return role, ok
	}
	return "", false
}

// normalize canonicalizes a roles entry: numeric ids stay as digits,
// anything else is treated as a username and becomes "@lowercase".
func normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return s
	}
	name := strings.ToLower(strings.TrimPrefix(s, "@"))
	if name == "" {
		return ""
	}
	return "@" + name
}
