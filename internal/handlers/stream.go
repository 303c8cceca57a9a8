package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/benvon/logstream/internal/converter"
	"github.com/benvon/logstream/internal/logger"
	"github.com/benvon/logstream/internal/sse"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// DefaultHeartbeat is the interval between ": ping" comments on idle streams.
const DefaultHeartbeat = 30 * time.Second

// StreamHandler serves the SSE stream endpoints and the publish endpoint.
type StreamHandler struct {
	broker     *sse.Broker
	sc         *converter.StringConverter
	converters *converter.Converters
	heartbeat  time.Duration
	logger     *zap.Logger
}

// NewStreamHandler creates a stream handler. Event frames are written through sc,
// publish requests and responses go through converters.
func NewStreamHandler(broker *sse.Broker, sc *converter.StringConverter, converters *converter.Converters, heartbeat time.Duration, logger *zap.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &StreamHandler{
		broker:     broker,
		sc:         sc,
		converters: converters,
		heartbeat:  heartbeat,
		logger:     logger,
	}
}

// RegisterRoutes registers stream routes
func (h *StreamHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/kafka", h.ListStreams).Methods("GET")
	r.HandleFunc("/kafka/{stream}", h.Subscribe).Methods("GET")
	r.HandleFunc("/kafka/{stream}", h.Publish).Methods("POST")
}

// StreamInfo describes one stream in the listing.
type StreamInfo struct {
	Name        string `json:"name"`
	Event       string `json:"event"`
	Subscribers int    `json:"subscribers"`
}

// PublishResponse is returned after an event was accepted.
type PublishResponse struct {
	ID          string `json:"id"`
	Stream      string `json:"stream"`
	Subscribers int    `json:"subscribers"`
}

// ListStreams returns every stream with its current subscriber count.
func (h *StreamHandler) ListStreams(w http.ResponseWriter, r *http.Request) {
	streams := make([]StreamInfo, 0, len(sse.Streams))
	for _, s := range sse.Streams {
		streams = append(streams, StreamInfo{
			Name:        s.Name,
			Event:       s.Event,
			Subscribers: h.broker.SubscriberCount(s.Name),
		})
	}
	respondJSON(w, http.StatusOK, streams)
}

// Subscribe streams events of one stream as text/event-stream until the client goes
// away or the broker shuts down.
func (h *StreamHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	stream, ok := h.lookup(w, r)
	if !ok {
		return
	}

	sub := h.broker.Subscribe(stream.Name)
	defer sub.Close()

	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	rc := http.NewResponseController(w)
	if err := h.sc.Write(w, http.StatusOK, sse.Comment("connected"), converter.TextEventStream); err != nil {
		h.logger.Debug("sse_write_failed", zap.String("stream", stream.Name), zap.Error(err))
		return
	}
	if err := rc.Flush(); err != nil {
		h.logger.Error("sse_flush_unsupported", zap.String("stream", stream.Name), zap.Error(err))
		return
	}

	h.logger.Debug("sse_client_connected",
		zap.String("stream", stream.Name),
		zap.Int("subscribers", h.broker.SubscriberCount(stream.Name)),
	)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		var chunk string
		select {
		case <-ctx.Done():
			h.logger.Debug("sse_client_disconnected", zap.String("stream", stream.Name))
			return
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			chunk = ev.Frame()
		case <-ticker.C:
			chunk = sse.Comment("ping")
		}

		if _, err := w.Write(h.sc.Encode(chunk)); err != nil {
			h.logger.Debug("sse_write_failed", zap.String("stream", stream.Name), zap.Error(err))
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// Publish reads the request body as a string and publishes it to the stream.
func (h *StreamHandler) Publish(w http.ResponseWriter, r *http.Request) {
	stream, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var payload string
	if err := h.converters.Read(r, &payload); err != nil {
		h.respondReadError(w, err)
		return
	}
	if payload == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Event payload must not be empty")
		return
	}

	ev := h.broker.Publish(stream.Name, payload)
	h.logger.Debug("stream_event_published",
		zap.String("stream", stream.Name),
		zap.String("event_id", ev.ID),
		zap.String("payload", logger.SanitizePayload(payload)),
	)

	resp := PublishResponse{
		ID:          ev.ID,
		Stream:      stream.Name,
		Subscribers: h.broker.SubscriberCount(stream.Name),
	}
	if err := h.converters.Write(w, r, http.StatusAccepted, resp); err != nil {
		if errors.Is(err, converter.ErrNotAcceptable) {
			respondJSONError(w, http.StatusNotAcceptable, "Not Acceptable", "No acceptable representation for the response")
			return
		}
		h.logger.Error("publish_response_failed", zap.Error(err))
	}
}

func (h *StreamHandler) lookup(w http.ResponseWriter, r *http.Request) (sse.Stream, bool) {
	name := mux.Vars(r)["stream"]
	stream, err := sse.LookupStream(name)
	if err != nil {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Unknown stream: "+name)
		return sse.Stream{}, false
	}
	return stream, true
}

func (h *StreamHandler) respondReadError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", "Request body too large")
	case errors.Is(err, converter.ErrUnsupportedMediaType):
		respondJSONError(w, http.StatusUnsupportedMediaType, "Unsupported Media Type", err.Error())
	default:
		h.logger.Debug("publish_read_failed", zap.Error(err))
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Failed to read request body")
	}
}
