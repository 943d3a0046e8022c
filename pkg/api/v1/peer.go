package v1

import "time"

// Peer is the wire view of one discovered local-network node.
type Peer struct {
	ID                    string    `json:"id"`
	Address               string    `json:"address"`
	Port                  int       `json:"port"`
	Role                  string    `json:"role"`
	Capabilities          []string  `json:"capabilities,omitempty"`
	ConstitutionalVersion string    `json:"constitutional_version"`
	Trust                 string    `json:"trust"`
	FirstSeen             time.Time `json:"first_seen"`
	LastSeen              time.Time `json:"last_seen"`
}

// PeerListResponse wraps GET /peers.
type PeerListResponse struct {
	Peers []Peer `json:"peers"`
	Count int    `json:"count"`
}
