// Package wsbroadcast fans unified-plane state out to WebSocket subscribers
// using gorilla/websocket, coalescing rapid updates into a single
// batch-update frame per subscriber and dropping the oldest queued frame
// (never the newest) when a slow subscriber falls behind. One writer
// goroutine per subscriber mirrors the per-connection-goroutine shape the
// teacher gives its tracker's announce handling, just for a persistent
// connection instead of a request/response cycle.
package wsbroadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/dlbridge/dlbridge/internal/model"
)

// queueDepth is the per-subscriber bounded channel capacity; beyond this,
// the oldest pending frame is dropped to make room for the newest.
const queueDepth = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ActionHandler dispatches an inbound action frame and returns the
// corresponding batch-*-complete response payload.
type ActionHandler func(ctx context.Context, action string, payload json.RawMessage) (interface{}, error)

// Frame is the outbound envelope for every pushed message.
type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type inboundAction struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

type subscriber struct {
	id   string
	conn *websocket.Conn

	mu    sync.Mutex
	queue []Frame
	wake  chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

func newSubscriber(conn *websocket.Conn) *subscriber {
	return &subscriber{
		id:   uuid.NewString(),
		conn: conn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// enqueue appends a frame, dropping the oldest queued frame if at capacity.
func (s *subscriber) enqueue(f Frame) {
	s.mu.Lock()
	if len(s.queue) >= queueDepth {
		s.queue = s.queue[1:]
	}
	s.queue = append(s.queue, f)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// drain empties and returns the queue, coalescing consecutive batch-update
// frames into one (the last one wins — only the latest stats matter).
func (s *subscriber) drain() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	out := make([]Frame, 0, len(s.queue))
	for _, f := range s.queue {
		if f.Type == "batch-update" && len(out) > 0 && out[len(out)-1].Type == "batch-update" {
			out[len(out)-1] = f
			continue
		}
		out = append(out, f)
	}
	s.queue = s.queue[:0]
	return out
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// Broadcaster maintains the subscriber set and action dispatch table.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[string]*subscriber
	handler ActionHandler
}

// New builds a Broadcaster; handler may be nil if inbound actions are not
// yet wired (ServeHTTP still accepts connections and pushes frames).
func New(handler ActionHandler) *Broadcaster {
	return &Broadcaster{subs: make(map[string]*subscriber), handler: handler}
}

// ServeHTTP upgrades the connection and runs it until the client
// disconnects or the broadcaster is closed.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("wsbroadcast: upgrade failed")
		return
	}
	sub := newSubscriber(conn)

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()

	go b.writeLoop(sub)
	b.readLoop(r.Context(), sub)

	b.mu.Lock()
	delete(b.subs, sub.id)
	b.mu.Unlock()
	sub.close()
}

func (b *Broadcaster) writeLoop(sub *subscriber) {
	for {
		select {
		case <-sub.done:
			return
		case <-sub.wake:
			frames := sub.drain()
			for _, f := range frames {
				sub.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := sub.conn.WriteJSON(f); err != nil {
					sub.close()
					return
				}
			}
		}
	}
}

func (b *Broadcaster) readLoop(ctx context.Context, sub *subscriber) {
	for {
		var in inboundAction
		if err := sub.conn.ReadJSON(&in); err != nil {
			return
		}
		if b.handler == nil {
			continue
		}
		result, err := b.handler(ctx, in.Action, in.Payload)
		frameType := in.Action + "-complete"
		if err != nil {
			sub.enqueue(Frame{Type: frameType, Data: map[string]string{"error": err.Error()}})
			continue
		}
		sub.enqueue(Frame{Type: frameType, Data: result})
	}
}

// BroadcastSnapshot pushes a coalesced batch-update frame carrying the
// current unified item set to every subscriber.
func (b *Broadcaster) BroadcastSnapshot(items []*model.Item) {
	b.broadcast(Frame{Type: "batch-update", Data: items})
}

// BroadcastEvent pushes a one-off named event frame (e.g. category change)
// to every subscriber.
func (b *Broadcaster) BroadcastEvent(eventType string, data interface{}) {
	b.broadcast(Frame{Type: eventType, Data: data})
}

func (b *Broadcaster) broadcast(f Frame) {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()
	for _, s := range subs {
		s.enqueue(f)
	}
}

// SubscriberCount reports the current number of live subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
