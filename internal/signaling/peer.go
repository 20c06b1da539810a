package signaling

import (
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v4"
)

// DefaultICEServers is used when no ICE configuration is provided.
var DefaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

// FrameHandler receives raw data channel messages from a client.
type FrameHandler func(clientID string, data []byte)

// PeerNegotiator is the server side of one client's WebRTC connection. The
// browser is always the offerer; the server answers, waits for ICE
// gathering to complete, and accepts the frame data channel the browser
// opens.
type PeerNegotiator struct {
	clientID string
	pc       *webrtc.PeerConnection
	onFrame  FrameHandler

	closeOnce sync.Once
	closeErr  error
}

// NewPeerNegotiator creates a peer connection for a client. onFrame is
// called from pion's goroutines for every data channel message.
func NewPeerNegotiator(config webrtc.Configuration, clientID string, onFrame FrameHandler) (*PeerNegotiator, error) {
	if len(config.ICEServers) == 0 {
		config.ICEServers = DefaultICEServers
	}

	pc, err := webrtc.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("could not create peer connection: %w", err)
	}

	p := &PeerNegotiator{
		clientID: clientID,
		pc:       pc,
		onFrame:  onFrame,
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		log.Printf("client %s opened data channel %q", clientID, dc.Label())
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			if p.onFrame != nil {
				p.onFrame(clientID, msg.Data)
			}
		})
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Printf("client %s ICE state: %s", clientID, state)
	})

	return p, nil
}

// HandleOffer applies the browser's offer and returns a complete answer.
// It blocks until ICE gathering finishes, so the answer carries all
// candidates and no trickle is needed on the return path.
func (p *PeerNegotiator) HandleOffer(sdp string) (string, error) {
	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("could not apply offer: %w", err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("could not create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("could not set local description: %w", err)
	}
	<-gatherComplete

	local := p.pc.LocalDescription()
	if local == nil {
		return "", fmt.Errorf("no local description after gathering")
	}
	return local.SDP, nil
}

// AddICECandidate applies a trickled candidate from the browser.
func (p *PeerNegotiator) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	if err := p.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("could not add ICE candidate: %w", err)
	}
	return nil
}

// Close tears down the peer connection. Safe to call more than once.
func (p *PeerNegotiator) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.pc.Close()
	})
	return p.closeErr
}
