package keymerge

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
)

func logPipelineStats(p *Pipeline) {
	st := p.State()
	statsLogger.Info().
		Int64("uptime_ms", st.UptimeMs).
		Int("position_active", len(st.Positions.Active)).
		Uint64("position_forwarded", st.Positions.Stats.Forwarded).
		Uint64("position_suppressed", st.Positions.Stats.Suppressed).
		Int("keycode_active", len(st.Keycodes.Active)).
		Uint64("keycode_forwarded", st.Keycodes.Stats.Forwarded).
		Uint64("keycode_suppressed", st.Keycodes.Stats.Suppressed).
		Uint64("scan_dropped", st.Scan.Dropped).
		Uint64("scan_unmapped", st.Scan.Unmapped).
		Uint64("bus_published", st.Bus.Published).
		Msg("pipeline stats")

	for id, s := range st.Bus.Subscribers {
		if s.Dropped > 0 {
			statsLogger.Warn().Str("subscriber", id).Uint64("dropped", s.Dropped).Msg("subscriber is dropping events")
		}
	}
}

// startStatsJob logs pipeline statistics every interval. The caller shuts
// the scheduler down.
func startStatsJob(p *Pipeline, interval time.Duration) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(logPipelineStats, p),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("pipeline-stats"),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to schedule stats job: %w", err)
	}

	s.Start()
	return s, nil
}
