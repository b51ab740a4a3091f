package proximity

import (
	"slices"
	"testing"
	"time"

	"github.com/QYUbit/Replica/pkg/transport"
)

// TestObserverLifecycle tests the empty and non-empty transitions.
func TestObserverLifecycle(t *testing.T) {
	o := NewObservers()

	if !o.Enter(7, 3, BandE) {
		t.Fatal("first enter should report a new observer")
	}
	if o.Enter(7, 3, BandD) {
		t.Fatal("second band must not report a new observer")
	}
	if o.Bands(7) != BandD|BandE {
		t.Fatalf("unexpected bands %v", o.Bands(7))
	}
	if o.Exit(7, BandD) {
		t.Fatal("leaving one of two bands must not report an exit")
	}
	if !o.Exit(7, BandE) {
		t.Fatal("leaving the last band should report an exit")
	}
	if o.Len() != 0 {
		t.Fatal("observer should be removed")
	}
	if o.Exit(7, BandE) {
		t.Fatal("exit of an unknown watcher is a no-op")
	}
}

func TestObserverForget(t *testing.T) {
	o := NewObservers()
	o.Enter(1, 1, BandA)
	if !o.Forget(1) || o.Len() != 0 {
		t.Fatal("Forget should remove the watcher")
	}
	if o.Forget(1) {
		t.Fatal("second Forget should report false")
	}
}

// TestPeersByEligibleBand tests band filtered peer collection.
func TestPeersByEligibleBand(t *testing.T) {
	near := NewSensor(BandA, 4)
	far := NewSensor(BandE, 32)
	sensors := []*Sensor{near, far}

	o := NewObservers()
	o.Enter(10, 100, BandA)
	o.Enter(10, 100, BandE)
	o.Enter(20, 200, BandE)

	now := time.Now()
	near.SetUpdateFlag(now)
	far.SetUpdateFlag(now)

	got := o.Peers(sensors, nil)
	if !slices.Equal(got, []transport.PeerID{100, 200}) {
		t.Fatalf("both eligible: got %v", got)
	}

	// only the near sensor is off cooldown 100ms later
	near.SetUpdateFlag(now.Add(100 * time.Millisecond))
	far.SetUpdateFlag(now.Add(100 * time.Millisecond))

	got = o.Peers(sensors, nil)
	if !slices.Equal(got, []transport.PeerID{100}) {
		t.Fatalf("near only: got %v", got)
	}

	if all := o.AllPeers(nil); !slices.Equal(all, []transport.PeerID{100, 200}) {
		t.Fatalf("all peers: got %v", all)
	}
}
