// Package proximity decides which peers observe which entities, and how
// often, from the distance between them.
package proximity

import (
	"math/bits"
	"strings"
	"time"
)

// Band is a bitmask of distance bands. A is the nearest and refreshes fastest.
type Band uint8

const (
	BandA Band = 1 << iota
	BandB
	BandC
	BandD
	BandE

	AllBands = BandA | BandB | BandC | BandD | BandE
)

var bandIntervals = map[Band]time.Duration{
	BandA: 100 * time.Millisecond,
	BandB: 200 * time.Millisecond,
	BandC: 500 * time.Millisecond,
	BandD: time.Second,
	BandE: 2 * time.Second,
}

// Interval is the refresh period of a single band, zero for anything else.
func (b Band) Interval() time.Duration {
	return bandIntervals[b]
}

func (b Band) Single() bool {
	return b != 0 && b&AllBands == b && bits.OnesCount8(uint8(b)) == 1
}

// Each calls fn for every band set in b, nearest first.
func (b Band) Each(fn func(Band)) {
	for single := BandA; single <= BandE; single <<= 1 {
		if b&single != 0 {
			fn(single)
		}
	}
}

func (b Band) String() string {
	if b == 0 {
		return "none"
	}
	var sb strings.Builder
	b.Each(func(single Band) {
		sb.WriteByte('A' + byte(bits.TrailingZeros8(uint8(single))))
	})
	return sb.String()
}
