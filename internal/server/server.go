// Package server streams scroll playback to a browser: the page reports its
// scroll position and viewport over a websocket and gets rendered frames
// back as JPEG.
package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"image/jpeg"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ivlev/scrollframes/internal/config"
	"github.com/ivlev/scrollframes/internal/input"
	"github.com/ivlev/scrollframes/internal/layout"
	"github.com/ivlev/scrollframes/internal/loader"
	"github.com/ivlev/scrollframes/internal/playback"
	"github.com/ivlev/scrollframes/internal/renderer"
	"github.com/ivlev/scrollframes/internal/source"
)

//go:embed static/*
var staticFiles embed.FS

const writeTimeout = 5 * time.Second

// ClientMessage is sent by the page.
type ClientMessage struct {
	Type string `json:"type"`
	// progress
	Value float64 `json:"value,omitempty"`
	// scroll
	Top       float64 `json:"top,omitempty"`
	Container float64 `json:"container,omitempty"`
	// resize, also the viewport height for scroll
	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`
	DPR    float64 `json:"dpr,omitempty"`
}

// ServerMessage is a JSON status update. Frames go out as binary messages.
type ServerMessage struct {
	Type    string `json:"type"`
	Percent int    `json:"percent,omitempty"`
	Total   int    `json:"total,omitempty"`
	Failed  []int  `json:"failed,omitempty"`
}

type Server struct {
	cfg      *config.Config
	src      source.Source
	paths    config.PathFunc
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func New(cfg *config.Config, src source.Source, paths config.PathFunc) *Server {
	if paths == nil {
		paths = cfg.Paths()
	}
	return &Server{
		cfg:   cfg,
		src:   src,
		paths: paths,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	static, _ := fs.Sub(staticFiles, "static")
	mux.Handle("/", http.FileServer(http.FS(static)))
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/qr.png", s.handleQR)
	return mux
}

// ListenAndServe serves until ctx is done, then shuts down and drops open
// sessions.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.ListenAddr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Printf("[*] Preview on http://%s", s.cfg.ListenAddr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeSessions()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	png, err := EncodeQR("http://" + r.Host + "/")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// session is one page: its own loader, renderer and controller.
type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex // gorilla/websocket allows one concurrent writer

	progress *input.Progress
	viewport *input.Viewport
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[!] Upgrade error: %v", err)
		return
	}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	if err := s.serveSession(r.Context(), conn); err != nil {
		log.Printf("[!] Session %s: %v", conn.RemoteAddr(), err)
	}
}

func (s *Server) serveSession(ctx context.Context, conn *websocket.Conn) error {
	mode, err := layout.ParseMode(s.cfg.FitMode)
	if err != nil {
		return err
	}
	interp, err := renderer.ParseInterpolator(s.cfg.Interpolator)
	if err != nil {
		return err
	}

	sess := &session{
		conn:     conn,
		progress: input.NewProgress(0),
		viewport: input.NewViewport(s.cfg.Width, s.cfg.Height, s.cfg.DPR),
	}

	sched := renderer.NewTickerScheduler(s.cfg.RefreshRate)
	sched.Start(ctx)
	defer sched.Stop()

	r := renderer.New(renderer.Options{Mode: mode, Interpolator: interp, Scheduler: sched})
	var buf bytes.Buffer
	r.OnDraw(func(d renderer.Draw) {
		buf.Reset()
		if err := jpeg.Encode(&buf, d.Canvas, &jpeg.Options{Quality: 85}); err != nil {
			log.Printf("[!] Encode frame %d: %v", d.Index, err)
			return
		}
		sess.write(websocket.BinaryMessage, buf.Bytes())
	})

	ctrl := playback.New(loader.New(s.src, s.cfg.Workers), r, sess.progress, sess.viewport, playback.Options{
		RedrawOnResize: s.cfg.RedrawOnResize,
		OnLoading: func(percent int) {
			sess.writeJSON(ServerMessage{Type: "loading", Percent: percent})
		},
		OnReady: func(state loader.LoadState) {
			sess.writeJSON(ServerMessage{Type: "ready", Total: state.Total, Failed: state.Failed})
		},
	})
	defer ctrl.Close()

	if err := ctrl.Load(ctx, s.cfg.FrameCount, s.paths); err != nil {
		return err
	}

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		sess.handle(msg)
	}
}

func (sess *session) handle(msg ClientMessage) {
	switch msg.Type {
	case "progress":
		sess.progress.Set(msg.Value)
	case "scroll":
		sess.progress.Set(input.ScrollProgress(msg.Top, msg.Container, float64(msg.Height)))
	case "resize":
		sess.viewport.Set(input.ViewportSize{Width: msg.Width, Height: msg.Height, DPR: msg.DPR})
	default:
		log.Printf("[!] Unknown message type %q", msg.Type)
	}
}

func (sess *session) write(kind int, data []byte) {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	sess.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := sess.conn.WriteMessage(kind, data); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		log.Printf("[!] Write failed: %v", err)
	}
}

func (sess *session) writeJSON(msg ServerMessage) {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	sess.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := sess.conn.WriteJSON(msg); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		log.Printf("[!] Write failed: %v", err)
	}
}
