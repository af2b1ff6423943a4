package events

import (
	"encoding/json"
	"log/slog"

	"github.com/volunhub/api/internal/domain"
	"github.com/volunhub/api/internal/ws"
)

// Service fans application lifecycle events out to the organizers'
// live streams. Delivery is best-effort: a full buffer drops the
// event rather than blocking a write path.
type Service struct {
	hub    *ws.Hub
	logger *slog.Logger
	queue  chan domain.ApplicationEvent
}

func New(hub *ws.Hub, logger *slog.Logger, buffer int) *Service {
	if buffer <= 0 {
		buffer = 256
	}
	s := &Service{
		hub:    hub,
		logger: logger,
		queue:  make(chan domain.ApplicationEvent, buffer),
	}
	go s.dispatch()
	return s
}

// Publish enqueues an event for delivery.
func (s *Service) Publish(event domain.ApplicationEvent) {
	select {
	case s.queue <- event:
	default:
		s.logger.Warn("event queue full, dropping event",
			"type", event.Type, "application_id", event.ApplicationID)
	}
}

// Subscribe attaches a stream client for the organizer.
func (s *Service) Subscribe(organizerID string, client ws.Subscriber) {
	s.hub.Register(organizerID, client)
}

// Unsubscribe detaches a stream client.
func (s *Service) Unsubscribe(organizerID string, client ws.Subscriber) {
	s.hub.Unregister(organizerID, client)
}

func (s *Service) dispatch() {
	for event := range s.queue {
		payload, err := json.Marshal(event)
		if err != nil {
			s.logger.Error("marshal event", "error", err)
			continue
		}
		s.hub.Broadcast(event.OrganizerID, payload)
	}
}
