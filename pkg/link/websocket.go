package link

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const dialTimeout = 5 * time.Second

// Websocket reads the telemetry stream from an acqsim websocket hub.
type Websocket struct {
	url string

	conn      *websocket.Conn
	samples   chan Sample
	decoder   *Decoder
	mu        sync.RWMutex
	cancel    context.CancelFunc
	connected bool
	closed    bool
	done      chan struct{}
}

// NewWebsocket creates a source for a hub url such as ws://host:60001/telemetry.
func NewWebsocket(url string, bufSize int) *Websocket {
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}
	samples := make(chan Sample, bufSize)
	return &Websocket{
		url:     url,
		samples: samples,
		decoder: NewDecoder(samples),
	}
}

func (w *Websocket) Connect() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.connected {
		return fmt.Errorf("already connected")
	}
	if w.closed {
		return fmt.Errorf("source closed")
	}

	dialCtx, cancelDial := context.WithTimeout(context.Background(), dialTimeout)
	defer cancelDial()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, w.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", w.url, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.conn = conn
	w.cancel = cancel
	w.connected = true
	w.done = make(chan struct{})

	go w.read(ctx, conn, w.done)

	return nil
}

func (w *Websocket) Close() error {
	w.mu.Lock()
	if !w.connected {
		w.mu.Unlock()
		return nil
	}
	w.cancel()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	if err := w.conn.Close(); err != nil {
		log.Printf("Error closing websocket: %v", err)
	}
	w.conn = nil
	w.connected = false
	w.closed = true
	done := w.done
	w.mu.Unlock()

	<-done
	close(w.samples)
	return nil
}

func (w *Websocket) Samples() <-chan Sample {
	return w.samples
}

func (w *Websocket) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

// Dropped returns the number of values lost to a slow consumer.
func (w *Websocket) Dropped() uint64 {
	return w.decoder.Dropped()
}

// read decodes every binary message; a message may carry several values.
func (w *Websocket) read(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Error reading telemetry websocket: %v", err)
			}
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		if err := w.decoder.Decode(ctx, bytes.NewReader(msg)); err != nil {
			log.Printf("Bad telemetry message: %v", err)
		}
	}
}
