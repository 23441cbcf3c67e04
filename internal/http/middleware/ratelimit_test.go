package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestKeyByClientOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")
	c.Request = req

	if key := KeyByClientOrIP()(c); key != "ip:203.0.113.9" {
		t.Fatalf("expected ip-based key; got %q", key)
	}
	c.Set(clientIDKey, "acme")
	if key := KeyByClientOrIP()(c); key != "client:acme" {
		t.Fatalf("expected client-based key; got %q", key)
	}
}

func TestNewRateLimiter_BurstCoercion_AndReuse(t *testing.T) {
	rl := NewRateLimiter(2.0, 0, KeyByClientOrIP())
	if rl.burst != 1 {
		t.Fatalf("burst coercion failed, got %d", rl.burst)
	}
	lim := rl.getVisitor("k1")
	if got := rl.getVisitor("k1"); got != lim {
		t.Fatalf("expected same limiter instance to be reused")
	}
}

func TestRateLimiter_getVisitor_EvictsIdle(t *testing.T) {
	rl := NewRateLimiter(1.0, 1, KeyByClientOrIP())
	rl.ttl = time.Nanosecond

	rl.mu.Lock()
	rl.visitors["old"] = &visitor{limiter: rate.NewLimiter(1, 1), lastSeen: time.Now().Add(-time.Hour)}
	rl.cleanupN = 4999
	rl.mu.Unlock()

	_ = rl.getVisitor("new")

	rl.mu.Lock()
	_, existsOld := rl.visitors["old"]
	_, existsNew := rl.visitors["new"]
	rl.mu.Unlock()
	if existsOld || !existsNew {
		t.Fatalf("expected old evicted and new created; old=%v new=%v", existsOld, existsNew)
	}
}

func TestIsRateBypass(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if IsRateBypass(c) {
		t.Fatalf("expected false by default")
	}
	c.Set(ctxKeyRateBypass, true)
	if !IsRateBypass(c) {
		t.Fatalf("expected true when set")
	}
	c.Set(ctxKeyRateBypass, "yes")
	if IsRateBypass(c) {
		t.Fatalf("non-bool should read as false")
	}
}

func TestRateLimiter_Handler_Allow_Deny_Bypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(1.0, 1, KeyByClientOrIP())

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Header("X-Request-ID", "rid-1"); c.Next() })
	r.Use(rl.Handler())
	r.POST("/questions", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w1 := httptest.NewRecorder()
	r.ServeHTTP(w1, httptest.NewRequest(http.MethodPost, "/questions", nil))
	if w1.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", w1.Code)
	}

	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest(http.MethodPost, "/questions", nil))
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be limited, got %d", w2.Code)
	}
	if got := w2.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After=1, got %q", got)
	}
	var body map[string]any
	if err := json.Unmarshal(w2.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["code"] != "too_many_requests" || body["request_id"] != "rid-1" {
		t.Fatalf("unexpected body: %v", body)
	}

	rBypass := gin.New()
	rBypass.Use(func(c *gin.Context) { c.Set(ctxKeyRateBypass, true); c.Next() })
	rBypass.Use(rl.Handler())
	rBypass.POST("/questions", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	w3 := httptest.NewRecorder()
	rBypass.ServeHTTP(w3, httptest.NewRequest(http.MethodPost, "/questions", nil))
	if w3.Code != http.StatusOK {
		t.Fatalf("replay should bypass limiting, got %d", w3.Code)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	cases := map[time.Duration]int{
		0:                       1,
		300 * time.Millisecond:  1,
		2500 * time.Millisecond: 3,
		10 * time.Minute:        60,
	}
	for d, want := range cases {
		if got := retryAfterSeconds(d); got != want {
			t.Fatalf("retryAfterSeconds(%v) = %d; want %d", d, got, want)
		}
	}
}
