package signaling

import "sort"

// Room groups the clients of one attendance session. All mutation happens
// on the hub goroutine, so the struct needs no lock of its own.
type Room struct {
	ID      string
	clients map[string]*Client
}

func newRoom(id string) *Room {
	return &Room{
		ID:      id,
		clients: make(map[string]*Client),
	}
}

func (r *Room) add(client *Client) {
	r.clients[client.ID] = client
}

func (r *Room) remove(client *Client) {
	delete(r.clients, client.ID)
}

func (r *Room) empty() bool {
	return len(r.clients) == 0
}

// peerIDs lists the ids of everyone in the room except the given client,
// sorted for stable output.
func (r *Room) peerIDs(except string) []string {
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		if id != except {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// broadcast queues a message for every client in the room except the one
// named by except (empty means everyone). Clients with a full send buffer
// are skipped rather than blocking the hub.
func (r *Room) broadcast(msg *Message, except string) {
	for id, client := range r.clients {
		if id == except {
			continue
		}
		client.trySend(msg)
	}
}
