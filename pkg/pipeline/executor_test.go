package pipeline

import (
	"errors"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/QYUbit/Replica/pkg/transport"
	"github.com/QYUbit/Replica/pkg/transport/mock"
)

func TestServerBroadcastOthersSkipsSource(t *testing.T) {
	ctrl := gomock.NewController(t)
	host := mock.NewMockHost(ctrl)

	packet := transport.NewPacket([]byte{7}, transport.FlagReliable)
	host.EXPECT().Peers().Return([]transport.PeerID{1, 2, 3})
	host.EXPECT().Send(transport.PeerID(1), uint8(1), packet).Return(nil)
	host.EXPECT().Send(transport.PeerID(3), uint8(1), packet).Return(nil)

	cmd := &Command{Type: CommandBroadcastOthers, Source: 2, Channel: 1, Packet: packet}
	if err := execute(ServerExecutor{}, host, cmd); err != nil {
		t.Fatal(err)
	}
}

func TestServerStopHostDisconnectsEveryPeer(t *testing.T) {
	ctrl := gomock.NewController(t)
	host := mock.NewMockHost(ctrl)

	host.EXPECT().Peers().Return([]transport.PeerID{4, 5})
	host.EXPECT().Disconnect(transport.PeerID(4), uint32(0)).Return(nil)
	host.EXPECT().Disconnect(transport.PeerID(5), uint32(0)).Return(transport.ErrPeerNotFound{Peer: 5})
	host.EXPECT().Flush().Return(nil)

	err := execute(ServerExecutor{}, host, &Command{Type: CommandStopHost})
	var notFound transport.ErrPeerNotFound
	if !errors.As(err, &notFound) || notFound.Peer != 5 {
		t.Fatalf("expected joined ErrPeerNotFound, got %v", err)
	}
}

func TestServerBroadcastGroupSkipsEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	host := mock.NewMockHost(ctrl)

	if err := execute(ServerExecutor{}, host, &Command{Type: CommandBroadcastGroup}); err != nil {
		t.Fatal(err)
	}

	group := []transport.PeerID{8, 9}
	host.EXPECT().BroadcastGroup(group, uint8(2), gomock.Any()).Return(nil)
	if err := execute(ServerExecutor{}, host, &Command{Type: CommandBroadcastGroup, TargetGroup: group, Channel: 2}); err != nil {
		t.Fatal(err)
	}
}

// TestClientExecutorRoutesToServer tests that a client only ever talks to its server peer.
func TestClientExecutorRoutesToServer(t *testing.T) {
	ctrl := gomock.NewController(t)
	host := mock.NewMockHost(ctrl)
	ex := &ClientExecutor{}

	if err := execute(ex, host, &Command{Type: CommandSend}); !errors.Is(err, ErrHostNotRunning) {
		t.Fatalf("send before connect: %v", err)
	}

	host.EXPECT().Connect("server:7777", 3).Return(transport.PeerID(12), nil)
	if err := execute(ex, host, &Command{Type: CommandStartHost, Address: "server:7777", ChannelCount: 3}); err != nil {
		t.Fatal(err)
	}

	host.EXPECT().Send(transport.PeerID(12), uint8(0), gomock.Any()).Return(nil)
	if err := execute(ex, host, &Command{Type: CommandSend, Target: 99}); err != nil {
		t.Fatal(err)
	}

	for _, typ := range []CommandType{CommandBroadcastAll, CommandBroadcastOthers, CommandBroadcastGroup} {
		if err := execute(ex, host, &Command{Type: typ}); err != nil {
			t.Fatalf("%v should be a no-op: %v", typ, err)
		}
	}

	host.EXPECT().Disconnect(transport.PeerID(12), uint32(0)).Return(nil)
	host.EXPECT().Flush().Return(nil)
	if err := execute(ex, host, &Command{Type: CommandStopHost}); err != nil {
		t.Fatal(err)
	}
	if err := execute(ex, host, &Command{Type: CommandStopHost}); err != nil {
		t.Fatal("second stop should be a no-op")
	}
}

func TestUnknownCommand(t *testing.T) {
	if err := execute(ServerExecutor{}, nil, &Command{Type: CommandNone}); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}
