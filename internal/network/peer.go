package network

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// Peer is a host that answered a broadcast.
type Peer struct {
	Name    string
	Address string
}

func (p Peer) String() string {
	return p.Name + "@" + p.Address
}

// File is a received transfer, decoded and ready to save.
type File struct {
	Name string
	Data []byte
	From Peer
}

// Registry remembers peers already surfaced during one broadcast session.
type Registry struct {
	peers *xsync.MapOf[Peer, struct{}]
}

func NewRegistry() *Registry {
	return &Registry{peers: xsync.NewMapOf[Peer, struct{}]()}
}

// Add records p and reports whether it was new.
func (r *Registry) Add(p Peer) bool {
	_, loaded := r.peers.LoadOrStore(p, struct{}{})
	return !loaded
}

func (r *Registry) Len() int {
	return r.peers.Size()
}

func (r *Registry) Reset() {
	r.peers.Clear()
}

// Peers lists known peers ordered by name, then address.
func (r *Registry) Peers() []Peer {
	var out []Peer
	r.peers.Range(func(p Peer, _ struct{}) bool {
		out = append(out, p)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Address < out[j].Address
	})
	return out
}
