package audio

import (
	"context"
	"math"
	"time"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// FadeStepInterval is the spacing between discrete volume adjustments.
const FadeStepInterval = 80 * time.Millisecond

// fadeTarget is the minimal surface a ramp needs from a channel.
type fadeTarget interface {
	SetVolume(v float64)
	Volume() float64
	IsPlaying() bool
}

// FadeIn ramps the target's volume linearly from zero to targetVolume over
// duration. The ramp aborts silently when ctx is cancelled or the target
// stops playing.
func FadeIn(ctx context.Context, t fadeTarget, duration time.Duration, targetVolume float64) {
	if duration < FadeStepInterval {
		t.SetVolume(targetVolume)
		return
	}
	t.SetVolume(0)
	tw := gween.New(0, float32(targetVolume), float32(duration.Seconds()), ease.Linear)
	runLinearRamp(ctx, t, tw, nil)
}

// FadeOut ramps the target's volume linearly from its current value to
// zero. When the ramp runs to completion (not cancelled, not interrupted
// by the target stopping), then is invoked; the engine uses it to pause or
// to fully stop and dispatch completion.
func FadeOut(ctx context.Context, t fadeTarget, duration time.Duration, then func()) {
	if duration < FadeStepInterval {
		t.SetVolume(0)
		if then != nil {
			then()
		}
		return
	}
	tw := gween.New(float32(t.Volume()), 0, float32(duration.Seconds()), ease.Linear)
	runLinearRamp(ctx, t, tw, then)
}

func runLinearRamp(ctx context.Context, t fadeTarget, tw *gween.Tween, then func()) {
	ticker := time.NewTicker(FadeStepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil || !t.IsPlaying() {
			return
		}
		v, done := tw.Update(float32(FadeStepInterval.Seconds()))
		t.SetVolume(float64(v))
		if done {
			if then != nil {
				then()
			}
			return
		}
	}
}

// FadeTo ramps the volume geometrically from the current value to
// targetVolume, so perceived loudness changes evenly. Both endpoints are
// floored at silentThreshold before computing the per-step ratio.
func FadeTo(ctx context.Context, t fadeTarget, duration time.Duration, targetVolume float64) {
	steps := int(duration / FadeStepInterval)
	if steps <= 0 {
		t.SetVolume(targetVolume)
		return
	}

	current := math.Max(t.Volume(), silentThreshold)
	target := math.Max(targetVolume, silentThreshold)
	ratio := math.Pow(target/current, 1/float64(steps))

	ticker := time.NewTicker(FadeStepInterval)
	defer ticker.Stop()
	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil || !t.IsPlaying() {
			return
		}
		current *= ratio
		t.SetVolume(math.Min(math.Max(current, silentThreshold), 1))
	}
	t.SetVolume(targetVolume)
}
