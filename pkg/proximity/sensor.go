package proximity

import (
	"time"

	"golang.org/x/time/rate"
)

// Sensor is one detection volume around an entity. Its cooldown limits how
// often observers in its band receive position updates.
type Sensor struct {
	band      Band
	radius    float32
	limiter   *rate.Limiter
	canUpdate bool
}

func NewSensor(band Band, radius float32) *Sensor {
	if !band.Single() {
		panic("proximity: sensor needs exactly one band")
	}
	return &Sensor{
		band:    band,
		radius:  radius,
		limiter: rate.NewLimiter(rate.Every(band.Interval()), 1),
	}
}

func (s *Sensor) Band() Band      { return s.band }
func (s *Sensor) Radius() float32 { return s.radius }

// SetUpdateFlag consumes the cooldown if it has elapsed at now.
func (s *Sensor) SetUpdateFlag(now time.Time) bool {
	s.canUpdate = s.limiter.AllowN(now, 1)
	return s.canUpdate
}

// CanUpdate reports the result of the last SetUpdateFlag.
func (s *Sensor) CanUpdate() bool { return s.canUpdate }

// DefaultSensors returns nested volumes, one per band.
func DefaultSensors() []*Sensor {
	return []*Sensor{
		NewSensor(BandA, 4),
		NewSensor(BandB, 8),
		NewSensor(BandC, 12),
		NewSensor(BandD, 20),
		NewSensor(BandE, 32),
	}
}

// OuterRadius is the largest radius in sensors.
func OuterRadius(sensors []*Sensor) float32 {
	var r float32
	for _, s := range sensors {
		if s.radius > r {
			r = s.radius
		}
	}
	return r
}
