package www

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"bomdesk/engine"
	"bomdesk/logging"
)

// SSEEvent is one server-sent event. Project is empty for events that are not
// tied to a project (key changes, messaging status, keepalives).
type SSEEvent struct {
	Event   string
	Data    string
	Project string
}

// EventHub streams engine events to browser clients. A client may watch a
// single project; it then only sees that project's events plus the global ones.
type EventHub struct {
	mu       sync.RWMutex
	watchers map[chan SSEEvent]string
	queue    chan SSEEvent
	done     chan struct{}
	stopOnce sync.Once
	log      *zap.Logger
}

func NewEventHub(log *zap.Logger) *EventHub {
	return &EventHub{
		watchers: make(map[chan SSEEvent]string),
		queue:    make(chan SSEEvent, 256),
		done:     make(chan struct{}),
		log:      logging.OrNop(log).Named("sse"),
	}
}

func (h *EventHub) Start() { go h.loop() }

func (h *EventHub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *EventHub) loop() {
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-h.done:
			return
		case evt := <-h.queue:
			h.deliver(evt)
		case <-ping.C:
			h.deliver(SSEEvent{Event: "keepalive", Data: "ping"})
		}
	}
}

// deliver hands evt to every interested watcher. Slow watchers lose events
// rather than stall the hub.
func (h *EventHub) deliver(evt SSEEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch, project := range h.watchers {
		if project != "" && evt.Project != "" && project != evt.Project {
			continue
		}
		select {
		case ch <- evt:
		default:
		}
	}
}

// Publish queues an event; it is dropped when the queue is full.
func (h *EventHub) Publish(evt SSEEvent) {
	select {
	case h.queue <- evt:
	default:
		h.log.Debug("event queue full", zap.String("event", evt.Event))
	}
}

// Watch registers a client. An empty project watches everything.
func (h *EventHub) Watch(project string) chan SSEEvent {
	ch := make(chan SSEEvent, 64)
	h.mu.Lock()
	h.watchers[ch] = project
	h.mu.Unlock()
	return ch
}

func (h *EventHub) Unwatch(ch chan SSEEvent) {
	h.mu.Lock()
	delete(h.watchers, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *EventHub) Watchers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers)
}

// SetupEngineListeners forwards every engine event, named by its type with the
// JSON payload as data.
func (h *EventHub) SetupEngineListeners(eng *engine.Engine) {
	eng.Events.Subscribe(func(evt engine.Event) {
		data, err := json.Marshal(evt.Payload)
		if err != nil {
			h.log.Warn("marshal event", zap.String("event", evt.Type.String()), zap.Error(err))
			return
		}
		project, _ := engine.ProjectOf(evt)
		h.Publish(SSEEvent{Event: evt.Type.String(), Data: string(data), Project: project})
	})
}

// handleEvents serves GET /events[?project=...].
func (h *EventHub) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	flusher.Flush()

	ch := h.Watch(r.URL.Query().Get("project"))
	defer h.Unwatch(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data); err != nil {
				h.log.Debug("client gone", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}
