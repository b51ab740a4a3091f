package quic

import (
	"testing"
	"time"

	"github.com/QYUbit/Replica/pkg/transport"
)

func await(t *testing.T, h *Host, want transport.EventType) transport.Event {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ev, err := h.Service(50 * time.Millisecond)
		if err != nil {
			t.Fatalf("service: %v", err)
		}
		if ev.Type == want {
			return ev
		}
	}
	t.Fatalf("no %s event before deadline", want)
	return transport.Event{}
}

func loopback(t *testing.T) (*Host, *Host, transport.PeerID) {
	t.Helper()
	tlsConf, err := SelfSignedTLS()
	if err != nil {
		t.Fatalf("tls: %v", err)
	}

	server := NewHost(tlsConf, nil)
	if err := server.Listen("127.0.0.1:0", 8, 3); err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { server.Close() })

	client := NewHost(tlsConf, nil)
	t.Cleanup(func() { client.Close() })

	peer, err := client.Connect(server.Addr().String(), 3)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	await(t, server, transport.EventConnect)
	await(t, client, transport.EventConnect)
	return server, client, peer
}

// TestReliableRoundTrip tests that reliable packets arrive with channel and payload.
func TestReliableRoundTrip(t *testing.T) {
	server, client, peer := loopback(t)

	if err := client.Send(peer, 1, transport.NewPacket([]byte("hello"), transport.FlagReliable)); err != nil {
		t.Fatalf("send: %v", err)
	}

	ev := await(t, server, transport.EventReceive)
	if ev.Channel != 1 || string(ev.Packet.Data()) != "hello" || !ev.Packet.Reliable() {
		t.Errorf("event = %+v", ev)
	}

	ids := server.Peers()
	if len(ids) != 1 {
		t.Fatalf("server peers = %v", ids)
	}
	if err := server.Send(ids[0], 0, transport.NewPacket([]byte{42}, transport.FlagReliable)); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if ev := await(t, client, transport.EventReceive); ev.Packet.Data()[0] != 42 {
		t.Errorf("reply = %v", ev.Packet.Data())
	}
}

// TestDatagram tests that unreliable packets arrive on loopback.
func TestDatagram(t *testing.T) {
	server, client, peer := loopback(t)

	if err := client.Send(peer, 2, transport.NewPacket([]byte{1, 2, 3}, transport.FlagNone)); err != nil {
		t.Fatalf("send: %v", err)
	}
	ev := await(t, server, transport.EventReceive)
	if ev.Channel != 2 || ev.Packet.Reliable() || ev.Packet.Len() != 3 {
		t.Errorf("event = %+v", ev)
	}
}

// TestDisconnectData tests that the disconnect value reaches the remote end.
func TestDisconnectData(t *testing.T) {
	server, client, peer := loopback(t)

	if err := client.Disconnect(peer, 7); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	await(t, client, transport.EventDisconnect)

	ev := await(t, server, transport.EventDisconnect)
	if ev.Data != 7 {
		t.Errorf("data = %d, want 7", ev.Data)
	}
	if len(server.Peers()) != 0 {
		t.Error("server still lists the peer")
	}
}

// TestSendUnknownPeer tests that sends to unknown peers fail.
func TestSendUnknownPeer(t *testing.T) {
	h := NewHost(nil, nil)
	err := h.Send(9, 0, transport.NewPacket([]byte{1}, 0))
	if _, ok := err.(transport.ErrPeerNotFound); !ok {
		t.Errorf("err = %v", err)
	}
}
