// Package peers tracks the local-network nodes this seed node can see.
// Discovery itself happens outside the core; providers feed add/remove
// updates into a Registry, which keeps the current peer set and republishes
// the changes on the event bus. Peers are visibility only and never become
// agents.
package peers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gaborkukucska/hai-net-seed-sub000/internal/common/logger"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events"
	"github.com/gaborkukucska/hai-net-seed-sub000/internal/events/bus"
)

// Trust is the level of trust extended to a peer.
type Trust string

const (
	// TrustFull marks peers running the same constitutional version.
	TrustFull Trust = "full"
	// TrustReduced marks peers whose constitutional version is unknown or
	// differs from ours.
	TrustReduced Trust = "reduced"
)

// Peer is one discovered neighbor node.
type Peer struct {
	ID                    string    `json:"id"`
	Address               string    `json:"address"`
	Port                  int       `json:"port"`
	Role                  string    `json:"role"`
	Capabilities          []string  `json:"capabilities"`
	ConstitutionalVersion string    `json:"constitutional_version"`
	Trust                 Trust     `json:"trust"`
	FirstSeen             time.Time `json:"first_seen"`
	LastSeen              time.Time `json:"last_seen"`
}

// EventKind distinguishes provider updates.
type EventKind string

const (
	// EventAdd announces a peer appearing or refreshing its record.
	EventAdd EventKind = "add"
	// EventRemove announces a peer leaving the network.
	EventRemove EventKind = "remove"
)

// Event is one discovery update from a provider.
type Event struct {
	Kind EventKind
	Peer Peer
}

// Provider emits discovery updates. The returned channel must be closed
// when ctx is done or the provider has nothing more to report.
type Provider interface {
	Start(ctx context.Context) (<-chan Event, error)
}

// Registry consumes a provider's updates and maintains the node's view of
// its neighborhood. Trust is assigned on every add: peers announcing our
// constitutional version get full trust, everything else reduced.
type Registry struct {
	version  string
	eventBus bus.EventBus
	logger   *logger.Logger

	mu    sync.RWMutex
	peers map[string]*Peer

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewRegistry creates a registry for a node running the given constitutional
// version. The event bus may be nil; updates are then tracked silently.
func NewRegistry(constitutionalVersion string, eventBus bus.EventBus, log *logger.Logger) *Registry {
	return &Registry{
		version:  constitutionalVersion,
		eventBus: eventBus,
		logger:   log.WithFields(zap.String("component", "peers")),
		peers:    make(map[string]*Peer),
	}
}

// Start begins consuming the provider. It may be called once per registry.
func (r *Registry) Start(provider Provider) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("peer registry already started")
	}
	r.running = true
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.mu.Unlock()

	updates, err := provider.Start(ctx)
	if err != nil {
		cancel()
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return fmt.Errorf("failed to start peer provider: %w", err)
	}

	r.wg.Add(1)
	go r.consume(updates)
	r.logger.Info("Peer registry started",
		zap.String("constitutional_version", r.version))
	return nil
}

// Stop cancels the provider and waits for the consume loop to drain.
func (r *Registry) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	r.logger.Info("Peer registry stopped")
}

func (r *Registry) consume(updates <-chan Event) {
	defer r.wg.Done()
	for update := range updates {
		switch update.Kind {
		case EventAdd:
			r.add(update.Peer)
		case EventRemove:
			r.remove(update.Peer.ID)
		default:
			r.logger.Warn("Ignoring unknown peer update",
				zap.String("kind", string(update.Kind)))
		}
	}
}

func (r *Registry) add(peer Peer) {
	if peer.ID == "" {
		r.logger.Warn("Ignoring peer announcement without id")
		return
	}
	peer.Trust = r.trustFor(peer.ConstitutionalVersion)
	now := time.Now().UTC()

	r.mu.Lock()
	known, seen := r.peers[peer.ID]
	if seen {
		peer.FirstSeen = known.FirstSeen
	} else {
		peer.FirstSeen = now
	}
	peer.LastSeen = now
	r.peers[peer.ID] = &peer
	r.mu.Unlock()

	if seen {
		// A refresh is not a discovery; keep the bus quiet.
		return
	}
	if peer.Trust == TrustReduced {
		r.logger.Warn("Peer discovered with unknown constitutional version",
			zap.String("peer_id", peer.ID),
			zap.String("version", peer.ConstitutionalVersion))
	} else {
		r.logger.Info("Peer discovered",
			zap.String("peer_id", peer.ID),
			zap.String("address", peer.Address))
	}
	r.publish(events.PeerDiscovered, peer.ID, map[string]interface{}{
		"id":                     peer.ID,
		"address":                peer.Address,
		"port":                   peer.Port,
		"role":                   peer.Role,
		"capabilities":           peer.Capabilities,
		"constitutional_version": peer.ConstitutionalVersion,
		"trust":                  string(peer.Trust),
	})
}

func (r *Registry) remove(peerID string) {
	if peerID == "" {
		return
	}
	r.mu.Lock()
	_, seen := r.peers[peerID]
	delete(r.peers, peerID)
	r.mu.Unlock()

	if !seen {
		return
	}
	r.logger.Info("Peer lost", zap.String("peer_id", peerID))
	r.publish(events.PeerLost, peerID, map[string]interface{}{
		"id": peerID,
	})
}

func (r *Registry) trustFor(version string) Trust {
	if version != "" && version == r.version {
		return TrustFull
	}
	return TrustReduced
}

// Get returns a copy of the peer with the given id.
func (r *Registry) Get(peerID string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peer, ok := r.peers[peerID]
	if !ok {
		return Peer{}, false
	}
	return *peer, true
}

// List returns copies of all known peers sorted by id.
func (r *Registry) List() []Peer {
	r.mu.RLock()
	list := make([]Peer, 0, len(r.peers))
	for _, peer := range r.peers {
		list = append(list, *peer)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// Count returns the number of known peers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

func (r *Registry) publish(eventType, peerID string, data map[string]interface{}) {
	if r.eventBus == nil {
		return
	}
	subject := eventType + "." + peerID
	event := bus.NewEvent(eventType, "peers", data)
	if err := r.eventBus.Publish(context.Background(), subject, event); err != nil {
		r.logger.Warn("Failed to publish peer event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}
