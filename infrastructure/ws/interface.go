package ws

// Peer is the hub's non-owning handle to a live push connection. The hub never
// closes a peer; Send on a peer that has already gone away returns false.
type Peer interface {
	ID() string
	Send(message []byte) bool
}

type Hub interface {
	Join(peer Peer)
	Leave(peer Peer)
	Broadcast(message []byte) int
	SendTo(peerID string, message []byte) bool
	Count() int
}
