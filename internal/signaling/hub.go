package signaling

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/pion/webrtc/v4"
)

type delivery struct {
	roomID   string
	clientID string
	msg      *Message
}

// Hub is the single goroutine that owns all rooms and clients. Everything
// reaches it through channels: the pumps, the websocket handler, and the
// recognition pipeline pushing results back.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan *Message

	deliver chan delivery
	done    chan struct{}

	rooms   map[string]*Room
	clients map[string]*Client

	webrtcConfig webrtc.Configuration
	frames       FrameHandler
}

// NewHub creates a hub. frames receives every data channel message from
// every connected peer.
func NewHub(webrtcConfig webrtc.Configuration, frames FrameHandler) *Hub {
	return &Hub{
		Register:     make(chan *Client),
		Unregister:   make(chan *Client),
		Broadcast:    make(chan *Message),
		deliver:      make(chan delivery, 256),
		done:         make(chan struct{}),
		rooms:        make(map[string]*Room),
		clients:      make(map[string]*Client),
		webrtcConfig: webrtcConfig,
		frames:       frames,
	}
}

// DeliverToClient queues a message for one client. Safe to call from any
// goroutine; drops the message when the hub is shutting down.
func (h *Hub) DeliverToClient(clientID string, msg *Message) {
	select {
	case h.deliver <- delivery{clientID: clientID, msg: msg}:
	case <-h.done:
	}
}

// BroadcastToRoom queues a message for every client in a room.
func (h *Hub) BroadcastToRoom(roomID string, msg *Message) {
	select {
	case h.deliver <- delivery{roomID: roomID, msg: msg}:
	case <-h.done:
	}
}

// PublishResult pushes a recognition result to the client that sent the
// frame.
func (h *Hub) PublishResult(clientID string, result RecognitionResultPayload) {
	payload, err := json.Marshal(result)
	if err != nil {
		log.Printf("could not marshal recognition result: %v", err)
		return
	}
	h.DeliverToClient(clientID, &Message{Type: TypeRecognitionResult, Payload: payload})
}

// Stop shuts the hub down. Run drains and disconnects everyone.
func (h *Hub) Stop() {
	close(h.done)
}

// Run processes hub events until Stop is called. All room and client state
// is touched only from this goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.clients[client.ID] = client
			log.Printf("client %s connected", client.ID)

		case client := <-h.Unregister:
			h.dropClient(client)

		case message := <-h.Broadcast:
			h.route(message)

		case d := <-h.deliver:
			if d.clientID != "" {
				if client, ok := h.clients[d.clientID]; ok {
					client.trySend(d.msg)
				}
				continue
			}
			if room, ok := h.rooms[d.roomID]; ok {
				room.broadcast(d.msg, "")
			}

		case <-h.done:
			for _, client := range h.clients {
				h.dropClient(client)
			}
			return
		}
	}
}

func (h *Hub) route(message *Message) {
	client := message.client
	if client == nil {
		return
	}

	switch message.Type {
	case TypeJoinRoom:
		h.joinRoom(client, message.RoomID)

	case TypeLeaveRoom:
		h.leaveRoom(client, true)

	case TypeOffer:
		if message.Target != "" {
			h.relay(client, message)
			return
		}
		h.handleOffer(client, message)

	case TypeAnswer:
		if message.Target == "" {
			client.trySend(ErrorMessage("answer requires a target peer"))
			return
		}
		h.relay(client, message)

	case TypeICECandidate:
		if message.Target != "" {
			h.relay(client, message)
			return
		}
		h.handleCandidate(client, message)

	case TypeData:
		// Websocket fallback for clients without an open data channel.
		// Decoding happens downstream, keep it off the hub goroutine.
		if h.frames != nil {
			go h.frames(client.ID, message.Payload)
		}

	default:
		log.Printf("client %s sent unknown message type %q", client.ID, message.Type)
		client.trySend(ErrorMessage(fmt.Sprintf("unknown message type %q", message.Type)))
	}
}

func (h *Hub) joinRoom(client *Client, roomID string) {
	if roomID == "" {
		client.trySend(ErrorMessage("room id is required"))
		return
	}
	if client.RoomID == roomID {
		return
	}
	if client.RoomID != "" {
		h.leaveRoom(client, true)
	}

	room, ok := h.rooms[roomID]
	if !ok {
		room = newRoom(roomID)
		h.rooms[roomID] = room
		log.Printf("room %s created", roomID)
	}
	room.add(client)
	client.RoomID = roomID

	payload, _ := json.Marshal(RoomStatePayload{
		ClientID: client.ID,
		Peers:    room.peerIDs(client.ID),
	})
	client.trySend(&Message{Type: TypeJoinedRoom, RoomID: roomID, Payload: payload})
	room.broadcast(presenceMessage(TypeUserJoined, client.ID), client.ID)
	log.Printf("client %s joined room %s (%d clients)", client.ID, roomID, len(room.clients))
}

func (h *Hub) leaveRoom(client *Client, notify bool) {
	if client.RoomID == "" {
		return
	}
	room, ok := h.rooms[client.RoomID]
	client.RoomID = ""
	if !ok {
		return
	}
	room.remove(client)
	if room.empty() {
		delete(h.rooms, room.ID)
		log.Printf("room %s deleted", room.ID)
		return
	}
	if notify {
		room.broadcast(presenceMessage(TypeUserLeft, client.ID), "")
	}
}

// relay forwards a signaling message to another client in the same room.
// Used for browser-to-browser negotiation; the server never inspects the
// payload.
func (h *Hub) relay(client *Client, message *Message) {
	room, ok := h.rooms[client.RoomID]
	if !ok {
		client.trySend(ErrorMessage("join a room first"))
		return
	}
	target, ok := room.clients[message.Target]
	if !ok {
		client.trySend(ErrorMessage(fmt.Sprintf("peer %s is not in the room", message.Target)))
		return
	}
	target.trySend(message)
}

// handleOffer answers a browser's offer with the server's own peer
// connection. ICE gathering blocks, so the answer is produced off the hub
// goroutine.
func (h *Hub) handleOffer(client *Client, message *Message) {
	if message.SDP == "" {
		client.trySend(ErrorMessage("offer is missing sdp"))
		return
	}

	if client.peer != nil {
		// Renegotiation: replace the old connection.
		client.peer.Close()
		client.peer = nil
	}
	peer, err := NewPeerNegotiator(h.webrtcConfig, client.ID, h.frames)
	if err != nil {
		log.Printf("client %s: %v", client.ID, err)
		client.trySend(ErrorMessage("could not create peer connection"))
		return
	}
	client.peer = peer

	offer := message.SDP
	go func() {
		answer, err := peer.HandleOffer(offer)
		if err != nil {
			log.Printf("client %s offer failed: %v", client.ID, err)
			h.DeliverToClient(client.ID, ErrorMessage("could not negotiate connection"))
			return
		}
		h.DeliverToClient(client.ID, &Message{Type: TypeAnswer, SDP: answer})
	}()
}

// handleCandidate routes an untargeted candidate. With a server peer it
// feeds negotiation directly; before any offer it is broadcast to the room,
// since candidates carry no ordering dependency on the offer.
func (h *Hub) handleCandidate(client *Client, message *Message) {
	if client.peer == nil {
		if room, ok := h.rooms[client.RoomID]; ok {
			room.broadcast(message, client.ID)
		}
		return
	}
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(message.Candidate, &candidate); err != nil {
		client.trySend(ErrorMessage("candidate is not valid"))
		return
	}
	if err := client.peer.AddICECandidate(candidate); err != nil {
		log.Printf("client %s: %v", client.ID, err)
	}
}

func (h *Hub) dropClient(client *Client) {
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	h.leaveRoom(client, true)
	if client.peer != nil {
		client.peer.Close()
		client.peer = nil
	}
	delete(h.clients, client.ID)
	close(client.Send)
	log.Printf("client %s disconnected", client.ID)
}
