package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/deemkeen/inboxd/activitypub"
	"github.com/deemkeen/inboxd/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Store is what the HTTP surface reads besides the inbox pipeline.
type Store interface {
	FeedStore
	Ping(ctx context.Context) error
}

// Server bundles the dependencies of the HTTP handlers.
type Server struct {
	Conf         *util.AppConfig
	Store        Store
	Inbox        Inbox
	PublicKeyPem string

	limiters []*RateLimiter
}

// Handler builds the gin engine serving the inboxes, the instance actor,
// community feeds and the operational endpoints.
func (s *Server) Handler() *gin.Engine {
	conf := s.Conf
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := s.newLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	g.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.Store.Ping(ctx); err != nil {
			log.Printf("Health check failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": util.GetVersion()})
	})

	g.GET("/metrics", gin.WrapH(promhttp.Handler()))

	g.GET("/feeds/c/:file", func(c *gin.Context) {
		name, ok := strings.CutSuffix(c.Param("file"), ".xml")
		if !ok || name == "" {
			c.Status(http.StatusNotFound)
			return
		}

		c.Header("Content-Type", "application/rss+xml; charset=utf-8")
		rss, err := GetCommunityRSS(c.Request.Context(), s.Store, conf, name)
		if err != nil {
			c.Render(http.StatusNotFound, render.String{Format: ""})
		} else {
			c.Render(http.StatusOK, render.String{Format: rss})
		}
	})

	if !conf.Federation.Enabled {
		log.Println("Federation disabled, inbox endpoints not registered")
		return g
	}

	g.GET("/actor", func(c *gin.Context) {
		actor, err := GetInstanceActor(conf, s.PublicKeyPem)
		if err != nil {
			log.Printf("Failed to render instance actor: %v", err)
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Data(http.StatusOK, activitypub.ContentType+"; charset=utf-8", actor)
	})

	// Stricter rate limit for inbox deliveries: 5 req/sec per IP
	apLimiter := s.newLimiter(rate.Limit(5), 10)
	maxBody := conf.Federation.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	maxBodySize := MaxBytesMiddleware(maxBody)

	inbox := g.Group("/", RateLimitMiddleware(apLimiter), maxBodySize)
	inbox.POST("/inbox", handleInbox(s.Inbox, nil))
	inbox.POST("/c/:name/inbox", handleInbox(s.Inbox, func(c *gin.Context) error {
		_, err := s.Store.ReadLocalCommunityByName(c.Request.Context(), c.Param("name"))
		return err
	}))
	inbox.POST("/u/:name/inbox", handleInbox(s.Inbox, nil))

	return g
}

func (s *Server) newLimiter(r rate.Limit, b int) *RateLimiter {
	rl := NewRateLimiter(r, b)
	s.limiters = append(s.limiters, rl)
	return rl
}

// Router serves the HTTP surface until ctx is cancelled, then shuts down
// gracefully.
func Router(ctx context.Context, s *Server) error {
	addr := fmt.Sprintf(":%d", s.Conf.Conf.HttpPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	for _, rl := range s.limiters {
		go rl.RunCleanup(ctx, 5*time.Minute)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on %s for %s", addr, s.Conf.BaseURL())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
