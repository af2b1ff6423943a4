package ws

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub manages stream subscriptions keyed by organizer ID. The clients map
// is owned by the run goroutine; all access goes through the channels.
type Hub struct {
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
}

// message couples payload with the organizer it targets.
type message struct {
	organizerID string
	payload     []byte
}

// subscription defines register/unregister requests.
type subscription struct {
	organizerID string
	client      Subscriber
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			if _, ok := h.clients[sub.organizerID]; !ok {
				h.clients[sub.organizerID] = make(map[Subscriber]struct{})
			}
			h.clients[sub.organizerID][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.clients[sub.organizerID]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.organizerID)
				}
			}
		case msg := <-h.broadcast:
			if clients, ok := h.clients[msg.organizerID]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.organizerID)
				}
			}
		}
	}
}

// Register adds a client to an organizer's stream.
func (h *Hub) Register(organizerID string, client Subscriber) {
	h.register <- subscription{organizerID: organizerID, client: client}
}

// Unregister removes a client.
func (h *Hub) Unregister(organizerID string, client Subscriber) {
	h.unreg <- subscription{organizerID: organizerID, client: client}
}

// Broadcast sends payload to all of the organizer's clients.
func (h *Hub) Broadcast(organizerID string, payload []byte) {
	h.broadcast <- message{organizerID: organizerID, payload: payload}
}
