package transport

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	applog "micscope/internal/log"

	"github.com/gorilla/websocket"
)

// frameMessage is the JSON shape broadcast to clients. Waveform is sent as
// numbers rather than the base64 encoding json gives []byte.
type frameMessage struct {
	Type      string    `json:"type"`
	Seq       uint64    `json:"seq"`
	Timestamp int64     `json:"timestamp"` // Unix milliseconds
	Waveform  []int     `json:"waveform"`
	Spectrum  []float64 `json:"spectrum"`
}

// WebSocketTransport broadcasts frames to every client connected on /ws.
// Sends are rate limited and never block: when the broadcast queue is full
// the frame is dropped.
type WebSocketTransport struct {
	addr            string
	listener        net.Listener
	upgrader        websocket.Upgrader
	clients         map[*websocket.Conn]bool
	clientsMu       sync.Mutex
	broadcast       chan frameMessage
	server          *http.Server
	lastSend        time.Time     // Only touched by Send's caller
	minSendInterval time.Duration // Minimum time between broadcasts
	closeOnce       sync.Once
	done            chan struct{}
}

// NewWebSocketTransport listens on addr and serves /ws on mux. Passing a mux
// lets other handlers (metrics) share the server; nil creates a new one. A
// zero minInterval broadcasts every frame.
func NewWebSocketTransport(addr string, mux *http.ServeMux, minInterval time.Duration) (*WebSocketTransport, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if mux == nil {
		mux = http.NewServeMux()
	}

	wst := &WebSocketTransport{
		addr:     ln.Addr().String(),
		listener: ln,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Local visualisers are served from other origins
			},
		},
		clients:         make(map[*websocket.Conn]bool),
		broadcast:       make(chan frameMessage, 8),
		minSendInterval: minInterval,
		done:            make(chan struct{}),
	}

	mux.HandleFunc("/ws", wst.handleWebSocket)
	wst.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	wst.start()
	return wst, nil
}

// Addr returns the address the server is listening on.
func (wst *WebSocketTransport) Addr() string {
	return wst.addr
}

func (wst *WebSocketTransport) start() {
	go func() {
		applog.Infof("WebSocketTransport: Starting WebSocket server on %s", wst.addr)
		if err := wst.server.Serve(wst.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Errorf("WebSocketTransport: Server error: %v", err)
		}
	}()

	go wst.handleBroadcasts()
}

// handleWebSocket upgrades HTTP connections and registers the client until
// its read side fails.
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("WebSocketTransport: Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	applog.Infof("WebSocketTransport: Client connected, total: %d", total)

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.removeClient(conn)
				return
			}
		}
	}()
}

func (wst *WebSocketTransport) removeClient(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	conn.Close()
	if ok {
		applog.Infof("WebSocketTransport: Client disconnected, total: %d", total)
	}
}

// ClientCount returns the number of connected clients.
func (wst *WebSocketTransport) ClientCount() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

func (wst *WebSocketTransport) handleBroadcasts() {
	for {
		select {
		case msg := <-wst.broadcast:
			wst.clientsMu.Lock()
			for client := range wst.clients {
				client.SetWriteDeadline(time.Now().Add(time.Second))
				if err := client.WriteJSON(msg); err != nil {
					applog.Warnf("WebSocketTransport: Error sending to client: %v", err)
					client.Close()
					delete(wst.clients, client)
				}
			}
			wst.clientsMu.Unlock()
		case <-wst.done:
			return
		}
	}
}

// Send queues frame for broadcast. Frames arriving faster than the minimum
// interval, or while nobody is connected, are skipped.
func (wst *WebSocketTransport) Send(frame *Frame) error {
	now := frame.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	if now.Sub(wst.lastSend) < wst.minSendInterval {
		return nil
	}
	if wst.ClientCount() == 0 {
		return nil
	}
	wst.lastSend = now

	msg := frameMessage{
		Type:      "frame",
		Seq:       frame.Seq,
		Timestamp: now.UnixMilli(),
		Waveform:  make([]int, len(frame.Waveform)),
		Spectrum:  make([]float64, len(frame.Spectrum)),
	}
	for i, v := range frame.Waveform {
		msg.Waveform[i] = int(v)
	}
	copy(msg.Spectrum, frame.Spectrum)

	select {
	case wst.broadcast <- msg:
	default:
		// Queue full, drop frame
	}
	return nil
}

// Close disconnects all clients and shuts the server down.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		applog.Infof("WebSocketTransport: Closing server")
		close(wst.done)

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.Close()
		}
		wst.clients = make(map[*websocket.Conn]bool)
		wst.clientsMu.Unlock()

		err = wst.server.Close()
	})
	return err
}

var _ Transport = (*WebSocketTransport)(nil)
