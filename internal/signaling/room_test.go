package signaling

import (
	"reflect"
	"testing"
)

func roomClient(id string, buffer int) *Client {
	return &Client{ID: id, Send: make(chan *Message, buffer)}
}

func TestRoom_Membership(t *testing.T) {
	room := newRoom("session-1")
	if !room.empty() {
		t.Error("new room not empty")
	}

	a := roomClient("a", 1)
	b := roomClient("b", 1)
	room.add(a)
	room.add(b)

	if got := room.peerIDs("a"); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("peers of a: %v, want [b]", got)
	}
	if got := room.peerIDs(""); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("all peers: %v, want [a b]", got)
	}

	room.remove(a)
	room.remove(b)
	if !room.empty() {
		t.Error("room not empty after removals")
	}
}

func TestRoom_BroadcastSkipsSender(t *testing.T) {
	room := newRoom("session-1")
	a := roomClient("a", 4)
	b := roomClient("b", 4)
	room.add(a)
	room.add(b)

	room.broadcast(&Message{Type: TypeUserJoined}, "a")

	select {
	case msg := <-b.Send:
		if msg.Type != TypeUserJoined {
			t.Errorf("b received %q", msg.Type)
		}
	default:
		t.Error("b received nothing")
	}
	select {
	case msg := <-a.Send:
		t.Errorf("sender received its own broadcast: %q", msg.Type)
	default:
	}
}

func TestRoom_BroadcastDropsWhenFull(t *testing.T) {
	room := newRoom("session-1")
	full := roomClient("full", 1)
	full.Send <- &Message{Type: TypeError}
	room.add(full)

	// Must not block.
	room.broadcast(&Message{Type: TypeUserJoined}, "")

	if len(full.Send) != 1 {
		t.Errorf("buffer length %d, want 1 (drop, not queue)", len(full.Send))
	}
}
