package network

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ruxir-ig/clawrrency/consensus"
)

// MessageHandler is called for each received message.
type MessageHandler func(peer *Peer, msg Message)

// DefaultMaxPeers is the default limit on simultaneous peer connections.
const DefaultMaxPeers = 50

// Node listens for incoming validator peers and manages outgoing
// connections, relaying PBFT protocol messages between this validator's
// consensus.Engine and the rest of the fixed validator set. It implements
// consensus.Broadcaster.
type Node struct {
	nodeID     string
	listenAddr string
	engine     *consensus.Engine
	tlsConfig  *tls.Config // nil → plain TCP
	maxPeers   int
	log        *logrus.Logger

	mu       sync.RWMutex
	peers    map[string]*Peer
	handlers map[MsgType]MessageHandler

	listener net.Listener
	stopCh   chan struct{}
}

// NewNode creates a Node that will listen on listenAddr and deliver
// consensus protocol messages to engine. If tlsCfg is non-nil the listener
// and outgoing connections use TLS. A nil logger falls back to logrus's
// standard logger.
func NewNode(nodeID, listenAddr string, engine *consensus.Engine, tlsCfg *tls.Config, log *logrus.Logger) *Node {
	if log == nil {
		log = logrus.StandardLogger()
	}
	n := &Node{
		nodeID:     nodeID,
		listenAddr: listenAddr,
		engine:     engine,
		tlsConfig:  tlsCfg,
		maxPeers:   DefaultMaxPeers,
		log:        log,
		peers:      make(map[string]*Peer),
		handlers:   make(map[MsgType]MessageHandler),
		stopCh:     make(chan struct{}),
	}
	n.Handle(MsgConsensus, n.handleConsensus)
	return n
}

// Handle registers a handler for msg type.
func (n *Node) Handle(typ MsgType, h MessageHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[typ] = h
}

// Start begins accepting connections.
func (n *Node) Start() error {
	var ln net.Listener
	var err error
	if n.tlsConfig != nil {
		ln, err = tls.Listen("tcp", n.listenAddr, n.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", n.listenAddr)
	}
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.listenAddr, err)
	}
	n.listener = ln
	go n.acceptLoop()
	return nil
}

// Stop shuts down the node.
func (n *Node) Stop() {
	close(n.stopCh)
	if n.listener != nil {
		n.listener.Close()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.peers {
		p.Close()
	}
}

// AddPeer dials addr and registers the peer.
func (n *Node) AddPeer(id, addr string) error {
	peer, err := Connect(id, addr, n.tlsConfig)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.peers[id] = peer
	n.mu.Unlock()
	go n.readLoop(peer)

	hello, err := json.Marshal(map[string]string{"node_id": n.nodeID})
	if err != nil {
		n.log.WithError(err).Warn("marshal hello")
		return nil
	}
	if err := peer.Send(Message{Type: MsgHello, Payload: hello}); err != nil {
		n.log.WithError(err).WithField("peer", id).Warn("send hello")
	}
	return nil
}

// Peer returns the connected peer with the given id, or nil if not found.
func (n *Node) Peer(id string) *Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.peers[id]
}

// broadcastRaw sends msg to all connected peers.
func (n *Node) broadcastRaw(msg Message) {
	n.mu.RLock()
	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.RUnlock()
	for _, p := range peers {
		if err := p.Send(msg); err != nil {
			n.log.WithError(err).WithField("peer", p.ID).Warn("broadcast send")
		}
	}
}

// Broadcast implements consensus.Broadcaster: it serializes a signed PBFT
// message and sends it to every connected validator peer.
func (n *Node) Broadcast(msg consensus.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		n.log.WithError(err).Warn("marshal consensus message")
		return
	}
	n.broadcastRaw(Message{Type: MsgConsensus, Payload: data})
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				n.log.WithError(err).Warn("accept error")
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}
		n.mu.RLock()
		peerCount := len(n.peers)
		n.mu.RUnlock()
		if peerCount >= n.maxPeers {
			n.log.WithField("max_peers", n.maxPeers).Warn("rejecting peer: max peers reached")
			conn.Close()
			continue
		}
		peer := NewPeer(conn.RemoteAddr().String(), conn.RemoteAddr().String(), conn)
		n.mu.Lock()
		n.peers[peer.ID] = peer
		n.mu.Unlock()
		go n.readLoop(peer)
	}
}

func (n *Node) readLoop(peer *Peer) {
	defer func() {
		if r := recover(); r != nil {
			n.log.WithField("peer", peer.ID).Errorf("readLoop panic: %v", r)
		}
		peer.Close()
		n.mu.Lock()
		delete(n.peers, peer.ID)
		n.mu.Unlock()
	}()
	for {
		msg, err := peer.Receive()
		if err != nil {
			return
		}
		n.mu.RLock()
		h, ok := n.handlers[msg.Type]
		n.mu.RUnlock()
		if ok {
			h(peer, msg)
		}
	}
}

func (n *Node) handleConsensus(_ *Peer, msg Message) {
	var cmsg consensus.Message
	if err := json.Unmarshal(msg.Payload, &cmsg); err != nil {
		n.log.WithError(err).Debug("unmarshal consensus message")
		return
	}
	if err := n.engine.ReceiveMessage(cmsg); err != nil {
		n.log.WithError(err).Debug("reject consensus message")
	}
}
