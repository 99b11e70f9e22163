package audio

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeTarget records every volume the ramp applies.
type fakeTarget struct {
	mu      sync.Mutex
	volume  float64
	playing bool
	history []float64
}

func newFakeTarget(volume float64) *fakeTarget {
	return &fakeTarget{volume: volume, playing: true}
}

func (f *fakeTarget) SetVolume(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = v
	f.history = append(f.history, v)
}

func (f *fakeTarget) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

func (f *fakeTarget) IsPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *fakeTarget) setPlaying(p bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = p
}

func (f *fakeTarget) volumes() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]float64, len(f.history))
	copy(out, f.history)
	return out
}

func TestFadeInMonotonic(t *testing.T) {
	ft := newFakeTarget(0)
	FadeIn(context.Background(), ft, 4*FadeStepInterval, 0.8)

	vols := ft.volumes()
	if len(vols) < 2 {
		t.Fatalf("expected multiple steps, got %d", len(vols))
	}
	for i := 1; i < len(vols); i++ {
		if vols[i] < vols[i-1]-1e-9 {
			t.Errorf("volume decreased during fade in: %v", vols)
			break
		}
	}
	if got := vols[len(vols)-1]; got < 0.79 || got > 0.81 {
		t.Errorf("expected final volume near 0.8, got %f", got)
	}
}

func TestFadeInShortDurationJumpsToTarget(t *testing.T) {
	ft := newFakeTarget(0)
	FadeIn(context.Background(), ft, FadeStepInterval/2, 0.6)
	if ft.Volume() != 0.6 {
		t.Errorf("expected immediate jump to 0.6, got %f", ft.Volume())
	}
}

func TestFadeOutReachesZeroAndRunsHook(t *testing.T) {
	ft := newFakeTarget(1.0)
	ran := false
	FadeOut(context.Background(), ft, 4*FadeStepInterval, func() { ran = true })

	if !ran {
		t.Error("expected completion hook to run")
	}
	if got := ft.Volume(); got > 0.01 {
		t.Errorf("expected final volume near zero, got %f", got)
	}
}

func TestFadeOutCancelledSkipsHook(t *testing.T) {
	ft := newFakeTarget(1.0)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(FadeStepInterval, cancel)

	ran := false
	FadeOut(ctx, ft, 20*FadeStepInterval, func() { ran = true })

	if ran {
		t.Error("cancelled fade must not run its hook")
	}
	if ft.Volume() <= 0.01 {
		t.Error("cancelled fade should leave volume above zero")
	}
}

func TestFadeOutStopsWhenPlaybackStops(t *testing.T) {
	ft := newFakeTarget(1.0)
	time.AfterFunc(FadeStepInterval, func() { ft.setPlaying(false) })

	ran := false
	FadeOut(context.Background(), ft, 20*FadeStepInterval, func() { ran = true })
	if ran {
		t.Error("fade interrupted by stop must not run its hook")
	}
}

func TestFadeToApproachesTarget(t *testing.T) {
	ft := newFakeTarget(0.2)
	FadeTo(context.Background(), ft, 5*FadeStepInterval, 0.9)
	if got := ft.Volume(); got != 0.9 {
		t.Errorf("expected exact target 0.9, got %f", got)
	}

	vols := ft.volumes()
	for i := 1; i < len(vols); i++ {
		if vols[i] < vols[i-1]-1e-9 {
			t.Errorf("rising geometric fade decreased: %v", vols)
			break
		}
	}
}

func TestFadeToFromZeroUsesSilentFloor(t *testing.T) {
	ft := newFakeTarget(0)
	FadeTo(context.Background(), ft, 3*FadeStepInterval, 0.5)
	if got := ft.Volume(); got != 0.5 {
		t.Errorf("expected target 0.5 despite zero start, got %f", got)
	}
}

func TestFadeToZeroSteps(t *testing.T) {
	ft := newFakeTarget(1.0)
	FadeTo(context.Background(), ft, 0, 0.3)
	if ft.Volume() != 0.3 {
		t.Errorf("expected immediate set to 0.3, got %f", ft.Volume())
	}
}
