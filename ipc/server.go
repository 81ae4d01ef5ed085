// ABOUTME: Loopback WebSocket server in front of the Bridge
// ABOUTME: Requires the session token on upgrade; each request is answered with one envelope
package ipc

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MaxMessageBytes bounds a single request or response.
const MaxMessageBytes = 64 << 20

func (b *Bridge) authorized(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || b.token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(b.token)) == 1
}

// Handler upgrades authorised requests to a WebSocket session.
func (b *Bridge) Handler(ctx context.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}
		conn.SetReadLimit(MaxMessageBytes)
		b.serveConn(ctx, conn)
	})
}

func (b *Bridge) serveConn(ctx context.Context, conn *websocket.Conn) {
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			b.reply(ctx, conn, Envelope{Error: fmt.Sprintf("invalid request: %v", err)})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			b.reply(ctx, conn, b.Handle(ctx, req))
		}()
	}
}

func (b *Bridge) reply(ctx context.Context, conn *websocket.Conn, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("Failed to encode envelope: %v", err)
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		log.Printf("Failed to send to client: %v", err)
	}
}

// Serve accepts connections on ln until ctx is cancelled.
func (b *Bridge) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           b.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	}
}

// ListenAndServe binds addr, which must be a loopback address such as "127.0.0.1:7733".
func (b *Bridge) ListenAndServe(ctx context.Context, addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %s: %w", addr, err)
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return fmt.Errorf("refusing to listen on non-loopback address %s", addr)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	log.Printf("IPC bridge listening on ws://%s", ln.Addr())
	return b.Serve(ctx, ln)
}
