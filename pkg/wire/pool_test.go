package wire

import "testing"

func TestBytePoolSizeClasses(t *testing.T) {
	p := NewBytePool()

	cases := []struct {
		size int
		cap  int
	}{
		{1, 64},
		{64, 64},
		{65, 128},
		{1000, 1024},
		{MaxPacketSize + 4, 1 << 17},
	}
	for _, c := range cases {
		buf := p.Get(c.size)
		if len(*buf) < c.size {
			t.Errorf("Get(%d) returned %d bytes", c.size, len(*buf))
		}
		if cap(*buf) != c.cap {
			t.Errorf("Get(%d) capacity %d, want %d", c.size, cap(*buf), c.cap)
		}
		p.Put(buf)
	}
}

func TestBytePoolOversized(t *testing.T) {
	p := NewBytePool()
	buf := p.Get(1 << 20)
	if len(*buf) != 1<<20 {
		t.Fatalf("expected exact allocation, got %d", len(*buf))
	}
	// must not panic or pollute a class
	p.Put(buf)
}
