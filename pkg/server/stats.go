package server

import (
	"time"

	"github.com/dustin/go-humanize"
)

func (s *Server) logStats(now time.Time) {
	if s.cfg.StatsInterval <= 0 || now.Before(s.nextStats) {
		return
	}
	s.nextStats = now.Add(s.cfg.StatsInterval)

	st := s.pipeline.Stats()
	s.logger.Info("Network stats",
		"peers", st.Host.Peers,
		"entities", s.registry.Len(),
		"sent", humanize.IBytes(st.Host.BytesSent),
		"received", humanize.IBytes(st.Host.BytesReceived),
		"packets_sent", st.Host.PacketsSent,
		"packets_received", st.Host.PacketsReceived,
		"commands_dropped", st.CommandsDropped,
		"in_flight", st.CommandsInFlight,
	)
}
