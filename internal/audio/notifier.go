package audio

import (
	"context"
	"math"
	"time"
)

// currentTimeInterval is the tick of the playback position notifier.
const currentTimeInterval = 100 * time.Millisecond

// Notifier receives engine events. The coordinator implements it by
// publishing onto the host event bus; implementations must not call back
// into engine methods synchronously while holding their own locks.
type Notifier interface {
	// Complete fires once per finished or stopped playback cycle.
	Complete(assetID string)
	// CurrentTime reports the playback position in seconds, rounded to
	// the nearest 0.1s, roughly ten times per second while playing.
	CurrentTime(assetID string, seconds float64)
}

// startCurrentTimeUpdates runs a ticker that reports the channel position
// until the channel stops playing or ctx is cancelled. It runs off the
// serialization domain; the channel's own locking keeps reads consistent.
func startCurrentTimeUpdates(ctx context.Context, assetID string, ch Channel, n Notifier) {
	go func() {
		ticker := time.NewTicker(currentTimeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if !ch.IsPlaying() {
				return
			}
			secs := ch.CurrentTime().Seconds()
			n.CurrentTime(assetID, math.Round(secs*10)/10)
		}
	}()
}
