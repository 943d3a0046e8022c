package peers

import (
	"context"
	"sync"
)

// StaticProvider announces a fixed peer list once and then idles until the
// context is done. It backs config-declared neighborhoods and tests.
type StaticProvider struct {
	peers []Peer
}

// NewStaticProvider creates a provider announcing the given peers.
func NewStaticProvider(peers ...Peer) *StaticProvider {
	return &StaticProvider{peers: peers}
}

// Start emits one add event per configured peer.
func (p *StaticProvider) Start(ctx context.Context) (<-chan Event, error) {
	updates := make(chan Event, len(p.peers))
	for _, peer := range p.peers {
		updates <- Event{Kind: EventAdd, Peer: peer}
	}
	go func() {
		<-ctx.Done()
		close(updates)
	}()
	return updates, nil
}

// ChannelProvider forwards caller-injected updates. Bridges translating an
// external discovery feed (mDNS, gossip) push into it; tests drive it
// directly.
type ChannelProvider struct {
	updates chan Event

	mu     sync.Mutex
	closed bool
}

// NewChannelProvider creates a provider with the given buffer size.
func NewChannelProvider(buffer int) *ChannelProvider {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelProvider{updates: make(chan Event, buffer)}
}

// Start hands the update stream to the registry. The stream closes when the
// context is done or Close is called.
func (p *ChannelProvider) Start(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-p.updates:
				if !ok {
					return
				}
				select {
				case out <- update:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Announce queues an add event for the peer.
func (p *ChannelProvider) Announce(peer Peer) {
	p.send(Event{Kind: EventAdd, Peer: peer})
}

// Withdraw queues a remove event for the peer id.
func (p *ChannelProvider) Withdraw(peerID string) {
	p.send(Event{Kind: EventRemove, Peer: Peer{ID: peerID}})
}

// Close ends the update stream. Further announcements are dropped.
func (p *ChannelProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.updates)
}

func (p *ChannelProvider) send(update Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.updates <- update
}
