// ABOUTME: UdpBroadcast announces this node's presence on the LAN and listens for peer announcements.
// ABOUTME: Periodic broadcast + listener.1; discovered peers are handed to a callback for dialing.
package mesh

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"time"
)

// DiscoveryInterval is the default period between broadcast announcements.
const DiscoveryInterval = 5 * time.Second

// Announcement is the payload broadcast over UDP.
type Announcement struct {
	NodeID  string `json:"node_id"`
	P2PPort int    `json:"p2p_port"`
}

// DiscoveryCallback is invoked for every announcement from a node other than
// self; a peer that keeps announcing invokes it again each time.
type DiscoveryCallback func(host string, port int, nodeID string)

// UdpBroadcast handles LAN peer discovery.
type UdpBroadcast struct {
	selfNodeID    string
	p2pPort       int
	discoveryPort int
	onDiscover    DiscoveryCallback
}

// NewUdpBroadcast creates a discovery announcer/listener for this node.
func NewUdpBroadcast(selfNodeID string, p2pPort, discoveryPort int, onDiscover DiscoveryCallback) *UdpBroadcast {
	return &UdpBroadcast{
		selfNodeID:    selfNodeID,
		p2pPort:       p2pPort,
		discoveryPort: discoveryPort,
		onDiscover:    onDiscover,
	}
}

// Run starts both the announce loop and the listen loop, blocking until ctx
// is cancelled.
func (u *UdpBroadcast) Run(ctx context.Context) {
	go u.announceLoop(ctx)
	u.listenLoop(ctx)
}

func (u *UdpBroadcast) announceLoop(ctx context.Context) {
	addr := fmt.Sprintf("255.255.255.255:%d", u.discoveryPort)
	raddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		log.Printf("component=udp action=resolve err=%q", err)
		return
	}

	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		log.Printf("component=udp action=dial err=%q", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ticker := time.NewTicker(DiscoveryInterval)
	defer ticker.Stop()

	payload, _ := json.Marshal(Announcement{NodeID: u.selfNodeID, P2PPort: u.p2pPort})

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := conn.Write(payload); err != nil {
				log.Printf("component=udp action=announce err=%q", err)
			}
		}
	}
}

func (u *UdpBroadcast) listenLoop(ctx context.Context) {
	addr := fmt.Sprintf(":%d", u.discoveryPort)
	laddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		log.Printf("component=udp action=resolve_listen err=%q", err)
		return
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		log.Printf("component=udp action=listen err=%q", err)
		return
	}
	defer func() { _ = conn.Close() }()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	buf := make([]byte, 2048)
	for {
		n, raddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}

		var ann Announcement
		if err := json.Unmarshal(buf[:n], &ann); err != nil {
			continue
		}
		if ann.NodeID == "" || ann.NodeID == u.selfNodeID {
			continue
		}
		u.onDiscover(raddr.IP.String(), ann.P2PPort, ann.NodeID)
	}
}
