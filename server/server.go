// Package server exposes the scrape cycle over HTTP for schedulers that
// trigger work with a request.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fourpisky-feeds/eventstore"
	"fourpisky-feeds/poll"
)

const maxRecent = 500

// Cycle runs one pass over every enabled feed.
type Cycle func(ctx context.Context) ([]poll.Report, error)

// PacketLister lists stored packets.
type PacketLister interface {
	RecentPackets(ctx context.Context, f eventstore.Filter) ([]eventstore.Packet, error)
}

// Config holds server configuration.
type Config struct {
	Cycle   Cycle
	Packets PacketLister // optional
	Logger  *slog.Logger
	Version string
}

// Server handles HTTP requests.
type Server struct {
	cycle   Cycle
	packets PacketLister
	logger  *slog.Logger
	version string

	// Held for the whole of a cycle so two triggers never overlap.
	mu sync.Mutex
}

// New creates a new HTTP server handler.
func New(cfg Config) *Server {
	return &Server{
		cycle:   cfg.Cycle,
		packets: cfg.Packets,
		logger:  cfg.Logger,
		version: cfg.Version,
	}
}

// Handler returns the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.logRequests)

	r.GET("/health", s.handleHealth)
	r.POST("/pollz", s.handlePoll)
	r.GET("/recent", s.handleRecent)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Minute, // a full cycle runs inside /pollz
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "addr", addr, "version", s.version)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("HTTP request served",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration_ms", time.Since(start).Milliseconds())
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": s.version})
}

type reportJSON struct {
	Feed      string `json:"feed"`
	State     string `json:"state"`
	New       int    `json:"new"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
}

func (s *Server) handlePoll(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Poll endpoint triggered")

	reports, err := s.cycle(c.Request.Context())
	out := make([]reportJSON, 0, len(reports))
	for _, r := range reports {
		out = append(out, reportJSON{
			Feed:      r.Feed,
			State:     r.State.String(),
			New:       len(r.New),
			Delivered: r.Delivered,
			Failed:    len(r.Failed),
			Skipped:   r.Skipped,
		})
	}

	if err != nil {
		s.logger.Error("Poll cycle failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "failed", "error": err.Error(), "feeds": out})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed", "feeds": out})
}

type packetJSON struct {
	IVORN          string    `json:"ivorn"`
	Stream         string    `json:"stream"`
	Role           string    `json:"role"`
	AuthorDatetime time.Time `json:"author_datetime"`
}

// handleRecent lists stored packets, filtered by the stream, contains, role
// and since (RFC 3339) query parameters.
func (s *Server) handleRecent(c *gin.Context) {
	if s.packets == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event store not configured"})
		return
	}

	f := eventstore.Filter{
		Stream:        c.Query("stream"),
		IVORNContains: c.Query("contains"),
		Role:          c.Query("role"),
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid since parameter"})
			return
		}
		f.Since = t
	}
	limit := 100
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 || n > maxRecent {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		limit = n
	}

	f.Limit = limit

	packets, err := s.packets.RecentPackets(c.Request.Context(), f)
	if err != nil {
		s.logger.Error("Failed to list packets", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	// Oldest first; a lister may ignore Filter.Limit.
	if len(packets) > limit {
		packets = packets[len(packets)-limit:]
	}

	out := make([]packetJSON, 0, len(packets))
	for _, p := range packets {
		out = append(out, packetJSON{
			IVORN:          p.IVORN,
			Stream:         p.Stream,
			Role:           p.Role,
			AuthorDatetime: p.AuthorDatetime,
		})
	}
	c.JSON(http.StatusOK, gin.H{"count": len(out), "packets": out})
}
