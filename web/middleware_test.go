package web

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestGetLimiter(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(10), 20)

	limiter1 := rl.getLimiter("192.168.1.1")
	if limiter1 == nil {
		t.Fatal("getLimiter returned nil")
	}
	if limiter2 := rl.getLimiter("192.168.1.1"); limiter1 != limiter2 {
		t.Error("getLimiter should return the same limiter for the same IP")
	}
	if limiter3 := rl.getLimiter("192.168.1.2"); limiter1 == limiter3 {
		t.Error("getLimiter should return different limiters for different IPs")
	}
}

func TestForgetIdle(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(10), 20)
	rl.getLimiter("10.0.0.1")
	rl.getLimiter("10.0.0.2")

	rl.mu.Lock()
	rl.visitors["10.0.0.1"].lastSeen = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	if removed := rl.forgetIdle(time.Now().Add(-time.Minute)); removed != 1 {
		t.Errorf("Expected 1 idle limiter removed, got %d", removed)
	}

	rl.mu.Lock()
	_, kept := rl.visitors["10.0.0.2"]
	_, dropped := rl.visitors["10.0.0.1"]
	rl.mu.Unlock()
	if !kept || dropped {
		t.Errorf("Expected only the idle client to be forgotten, kept=%v dropped=%v", kept, dropped)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		requestCount   int
		rateLimit      rate.Limit
		burst          int
		expectedStatus int
	}{
		{
			name:           "under limit",
			requestCount:   5,
			rateLimit:      rate.Limit(10),
			burst:          10,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "at burst limit",
			requestCount:   10,
			rateLimit:      rate.Limit(1),
			burst:          10,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "over limit",
			requestCount:   15,
			rateLimit:      rate.Limit(1),
			burst:          10,
			expectedStatus: http.StatusTooManyRequests,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(RateLimitMiddleware(NewRateLimiter(tt.rateLimit, tt.burst)))
			router.POST("/inbox", func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			var last *httptest.ResponseRecorder
			for i := 0; i < tt.requestCount; i++ {
				last = httptest.NewRecorder()
				req, _ := http.NewRequest("POST", "/inbox", nil)
				req.RemoteAddr = "192.168.1.100:12345"
				router.ServeHTTP(last, req)
			}

			if last.Code != tt.expectedStatus {
				t.Errorf("Expected final status %d, got %d", tt.expectedStatus, last.Code)
			}
			if last.Code == http.StatusTooManyRequests {
				if last.Header().Get("Retry-After") == "" {
					t.Error("Expected Retry-After header")
				}
				if !strings.Contains(last.Body.String(), "Rate limit exceeded") {
					t.Errorf("Expected rate limit error message, got: %s", last.Body.String())
				}
			}
		})
	}
}

func TestRateLimitMiddlewareDifferentIPs(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RateLimitMiddleware(NewRateLimiter(rate.Limit(1), 1)))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for _, ip := range []string{"192.168.1.1:12345", "192.168.1.2:12345"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		req.RemoteAddr = ip
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("First request from %s should succeed, got status %d", ip, w.Code)
		}
	}
}

func TestMaxBytesMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		maxBytes       int64
		bodySize       int
		chunked        bool
		expectedStatus int
	}{
		{
			name:           "under limit",
			maxBytes:       1024,
			bodySize:       512,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "at limit",
			maxBytes:       1024,
			bodySize:       1024,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "over limit by content-length",
			maxBytes:       1024,
			bodySize:       2048,
			expectedStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name:           "over limit without content-length",
			maxBytes:       1024,
			bodySize:       2048,
			chunked:        true,
			expectedStatus: http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(MaxBytesMiddleware(tt.maxBytes))
			router.POST("/test", func(c *gin.Context) {
				if _, err := io.ReadAll(c.Request.Body); err != nil {
					c.Status(http.StatusRequestEntityTooLarge)
					return
				}
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/test", strings.NewReader(strings.Repeat("x", tt.bodySize)))
			if tt.chunked {
				req.ContentLength = -1
			}
			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}
