// Package stream serves the live MJPEG relay and the websocket status feed.
// Frames arrive from the capture device via POST /upload and are re-served
// as a multipart stream on /video_feed, so any browser can preview the feed
// the classifier is watching.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"posture/internal/config"
	"posture/internal/logging"
)

const frameBoundary = "frame"

// Server is the relay. It holds only the most recent frame; clients that
// cannot keep up simply miss frames.
type Server struct {
	bind          string
	frameInterval time.Duration
	hub           *Hub
	log           *slog.Logger

	mu       sync.RWMutex
	latest   []byte
	frames   uint64
	started  time.Time
	upgrader websocket.Upgrader

	httpServer *http.Server
}

// NewServer builds a relay from the stream config section.
func NewServer(cfg config.Stream, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	if hub == nil {
		hub = NewHub()
	}
	return &Server{
		bind:          cfg.Bind,
		frameInterval: time.Duration(cfg.FrameIntervalMillis) * time.Millisecond,
		hub:           hub,
		log:           logger.With(logging.String(logging.FieldComponent, "stream")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Hub returns the status hub the server broadcasts from.
func (s *Server) Hub() *Hub { return s.hub }

// Run serves until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/video_feed", s.handleVideoFeed)
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWS)

	s.mu.Lock()
	s.started = time.Now()
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:              s.bind,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()
	s.log.Info("stream relay listening", logging.String("bind", s.bind))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("stream relay: %w", err)
	}
}

// SetFrame stores a new JPEG frame for distribution.
func (s *Server) SetFrame(jpeg []byte) {
	s.mu.Lock()
	s.latest = jpeg
	s.mu.Unlock()
}

func (s *Server) frame() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

func (s *Server) handleVideoFeed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+frameBoundary)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	interval := s.frameInterval
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		frame := s.frame()
		if frame == nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", frameBoundary, len(frame)); err != nil {
			return
		}
		if _, err := w.Write(frame); err != nil {
			return
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return
		}
		flusher.Flush()

		s.mu.Lock()
		s.frames++
		s.mu.Unlock()
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var (
		data []byte
		err  error
	)
	if file, _, formErr := r.FormFile("frame"); formErr == nil {
		data, err = io.ReadAll(io.LimitReader(file, 8<<20))
		_ = file.Close()
	} else {
		data, err = io.ReadAll(io.LimitReader(r.Body, 8<<20))
	}
	if err != nil || len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "no frame provided"})
		return
	}

	// A JPEG stream starts with the SOI marker.
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid image"})
		return
	}

	s.SetFrame(data)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	frames := s.frames
	started := s.started
	s.mu.RUnlock()

	uptime := time.Since(started).Seconds()
	fps := 0.0
	if uptime > 0 {
		fps = float64(frames) / uptime
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"frames":         frames,
		"status":         "active",
		"uptime_seconds": round2(uptime),
		"avg_fps":        round2(fps),
		"mode":           "upload",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	frames := s.frames
	hasFrame := s.latest != nil
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"mode":          "upload",
		"frame_pending": hasFrame,
		"frames_served": frames,
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	events, cancel := s.hub.Subscribe()
	defer cancel()

	// Drain client messages so pings and closes are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, event); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					s.log.Warn("websocket write failed", logging.Error(err))
				}
				return
			}
		}
	}
}

func round2(v float64) float64 {
	return float64(int(v*100)) / 100
}
