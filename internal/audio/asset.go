package audio

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/soundctl/audiobridge/api"
	bridgeerrors "github.com/soundctl/audiobridge/pkg/errors"
)

// Engine is the capability surface every asset implementation exposes to
// the coordinator. Local pools and streaming pools both satisfy it.
type Engine interface {
	Play(at time.Duration, delay time.Duration)
	PlayWithFade(at time.Duration, fadeDuration time.Duration)
	Pause()
	PauseWithFade(fadeDuration time.Duration)
	Resume()
	ResumeWithFade(fadeDuration time.Duration)
	Stop()
	StopWithFade(fadeDuration time.Duration)
	Loop()
	Unload()
	SetVolume(v float64, fadeDuration time.Duration)
	SetRate(r float64)
	Seek(t time.Duration)
	CurrentTime() time.Duration
	Duration() time.Duration
	IsPlaying() bool
	SetOnComplete(fn func())
}

// Asset manages the channel pool for one local sound. Its mutex serializes
// every mutation for its asset id; the registry mutex orders cross-asset
// operations. Event dispatch always happens with the mutex released.
type Asset struct {
	mu sync.Mutex

	id       string
	channels []Channel
	// playIndex round-robins overlapping one-shot playback across the pool.
	playIndex     int
	initialVolume float64
	fadeDuration  time.Duration
	rate          float64

	// lastPlayed is the channel whose completion ends the current cycle.
	lastPlayed Channel
	// dispatchedComplete guards the complete event: at most once per cycle.
	dispatchedComplete bool

	fadeCancel context.CancelFunc
	tickCancel context.CancelFunc
	// playGen invalidates delayed starts that lost a race with stop/unload.
	playGen uint64

	notify     Notifier
	onComplete func()
	released   bool
}

// NewAsset builds a local asset engine from an audio file. channelCount is
// clamped to [1, MaxChannels]; each channel decodes its own copy of the
// file so overlapping retriggers never share position.
func NewAsset(id, path string, channelCount int, volume float64, fadeDuration time.Duration, session SessionRequester, notify Notifier) (*Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, bridgeerrors.NewBridgeError("load", id, err)
	}

	if channelCount < 1 {
		channelCount = 1
	} else if channelCount > api.MaxChannels {
		channelCount = api.MaxChannels
	}
	volume = api.ClampVolume(volume)

	a := &Asset{
		id:            id,
		initialVolume: volume,
		fadeDuration:  fadeDuration,
		rate:          api.DefaultRate,
		notify:        notify,
	}
	for i := 0; i < channelCount; i++ {
		ch, err := NewBufferedChannel(data, path, volume, session)
		if err != nil {
			for _, c := range a.channels {
				c.Close()
			}
			return nil, bridgeerrors.NewBridgeError("decode", id, err)
		}
		a.channels = append(a.channels, ch)
	}
	for _, ch := range a.channels {
		ch := ch
		ch.SetOnComplete(func() { a.channelFinished(ch) })
	}
	return a, nil
}

// newAssetWithChannels wires a pre-built pool; used by tests and by the
// remote engine once its download is ready.
func newAssetWithChannels(id string, channels []Channel, volume float64, fadeDuration time.Duration, notify Notifier) *Asset {
	a := &Asset{
		id:            id,
		channels:      channels,
		initialVolume: api.ClampVolume(volume),
		fadeDuration:  fadeDuration,
		rate:          api.DefaultRate,
		notify:        notify,
	}
	for _, ch := range channels {
		ch := ch
		ch.SetOnComplete(func() { a.channelFinished(ch) })
	}
	return a
}

// ID returns the asset identifier.
func (a *Asset) ID() string { return a.id }

// ChannelCount returns the pool size.
func (a *Asset) ChannelCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.channels)
}

// SetOnComplete registers a hook invoked after each dispatched completion,
// used by the play-once lifecycle.
func (a *Asset) SetOnComplete(fn func()) {
	a.mu.Lock()
	a.onComplete = fn
	a.mu.Unlock()
}

func (a *Asset) activeChannelLocked() Channel {
	if len(a.channels) == 0 {
		return nil
	}
	if a.playIndex >= len(a.channels) {
		a.playIndex = 0
	}
	return a.channels[a.playIndex]
}

// Play starts the active channel at the given position and advances the
// round-robin cursor. A positive delay reserves the channel now and
// schedules the start without blocking, so a later immediate play lands
// on the next pool channel and both voices overlap. Only a stop or unload
// cancels a pending delayed start.
func (a *Asset) Play(at, delay time.Duration) {
	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		return
	}
	a.cancelFadeLocked()
	gen := a.playGen

	if delay > 0 {
		ch := a.activeChannelLocked()
		if ch == nil {
			a.mu.Unlock()
			return
		}
		a.playIndex = (a.playIndex + 1) % len(a.channels)
		a.mu.Unlock()
		time.AfterFunc(delay, func() {
			a.mu.Lock()
			if a.released || gen != a.playGen {
				a.mu.Unlock()
				return
			}
			a.startChannelLocked(ch, at, a.initialVolume)
			a.mu.Unlock()
		})
		return
	}
	a.startLocked(at, a.initialVolume)
	a.mu.Unlock()
}

// startLocked plays the cursor channel and advances the cursor.
func (a *Asset) startLocked(at time.Duration, volume float64) {
	ch := a.activeChannelLocked()
	if ch == nil {
		return
	}
	a.playIndex = (a.playIndex + 1) % len(a.channels)
	a.startChannelLocked(ch, at, volume)
}

// startChannelLocked performs the common play sequence on ch: seek,
// volume, start, restart notifier, reset the completion guard.
func (a *Asset) startChannelLocked(ch Channel, at time.Duration, volume float64) {
	ch.SetLoop(false)
	ch.SetVolume(volume)
	ch.Play(at)
	a.lastPlayed = ch
	a.dispatchedComplete = false
	a.restartTickerLocked(ch)
}

// PlayWithFade starts playback at volume zero and ramps up to the initial
// volume, so the sound becomes audible only as the ramp rises.
func (a *Asset) PlayWithFade(at time.Duration, fadeDuration time.Duration) {
	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		return
	}
	a.cancelFadeLocked()
	a.startLocked(at, 0)
	ch := a.lastPlayed
	target := a.initialVolume
	ctx := a.newFadeContextLocked()
	a.mu.Unlock()

	if ch != nil {
		go FadeIn(ctx, ch, a.fadeOrDefault(fadeDuration), target)
	}
}

func (a *Asset) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return
	}
	a.cancelFadeLocked()
	a.stopTickerLocked()
	if ch := a.lastPlayedOrActiveLocked(); ch != nil {
		ch.Pause()
	}
}

// PauseWithFade fades the playing channel to silence and then pauses it.
func (a *Asset) PauseWithFade(fadeDuration time.Duration) {
	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		return
	}
	a.cancelFadeLocked()
	ch := a.lastPlayedOrActiveLocked()
	if ch == nil || !ch.IsPlaying() {
		a.stopTickerLocked()
		if ch != nil {
			ch.Pause()
		}
		a.mu.Unlock()
		return
	}
	restore := ch.Volume()
	ctx := a.newFadeContextLocked()
	a.mu.Unlock()

	go FadeOut(ctx, ch, a.fadeOrDefault(fadeDuration), func() {
		ch.Pause()
		ch.SetVolume(restore)
		a.mu.Lock()
		a.stopTickerLocked()
		a.mu.Unlock()
	})
}

func (a *Asset) Resume() {
	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		return
	}
	ch := a.lastPlayedOrActiveLocked()
	if ch == nil {
		a.mu.Unlock()
		return
	}
	a.dispatchedComplete = false
	ch.Resume()
	a.restartTickerLocked(ch)
	a.mu.Unlock()
}

// ResumeWithFade resumes the active channel and ramps its volume from
// wherever it currently sits up to the configured initial volume.
func (a *Asset) ResumeWithFade(fadeDuration time.Duration) {
	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		return
	}
	a.cancelFadeLocked()
	ch := a.lastPlayedOrActiveLocked()
	if ch == nil {
		a.mu.Unlock()
		return
	}
	a.dispatchedComplete = false
	ch.Resume()
	a.restartTickerLocked(ch)
	target := a.initialVolume
	ctx := a.newFadeContextLocked()
	a.mu.Unlock()

	go FadeTo(ctx, ch, a.fadeOrDefault(fadeDuration), target)
}

// Stop silences every channel in the pool, resets positions and the
// round-robin cursor, and dispatches the complete event exactly once for
// the cycle.
func (a *Asset) Stop() {
	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		return
	}
	a.stopAllLocked()
	fire := a.markCompleteLocked()
	a.mu.Unlock()

	a.dispatch(fire)
}

// stopAllLocked stops the whole pool, not just the active channel, so
// overlapping one-shot voices all go silent together.
func (a *Asset) stopAllLocked() {
	a.cancelFadeLocked()
	a.stopTickerLocked()
	a.playGen++
	for _, ch := range a.channels {
		ch.SetLoop(false)
		ch.Stop()
	}
	a.playIndex = 0
	a.lastPlayed = nil
}

// StopWithFade ramps the active channel to silence and then performs a
// full stop. When nothing is playing it falls back to Stop so completion
// is still signaled.
func (a *Asset) StopWithFade(fadeDuration time.Duration) {
	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		return
	}
	ch := a.lastPlayedOrActiveLocked()
	if ch == nil || !ch.IsPlaying() {
		a.stopAllLocked()
		fire := a.markCompleteLocked()
		a.mu.Unlock()
		a.dispatch(fire)
		return
	}
	a.cancelFadeLocked()
	ctx := a.newFadeContextLocked()
	a.mu.Unlock()

	go FadeOut(ctx, ch, a.fadeOrDefault(fadeDuration), func() {
		a.mu.Lock()
		if a.released {
			a.mu.Unlock()
			return
		}
		a.stopAllLocked()
		ch.SetVolume(a.initialVolume)
		fire := a.markCompleteLocked()
		a.mu.Unlock()
		a.dispatch(fire)
	})
}

// Loop restarts the active channel with looping enabled. Looping playback
// never completes on its own; only an explicit stop ends the cycle.
func (a *Asset) Loop() {
	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		return
	}
	a.stopAllLocked()
	ch := a.activeChannelLocked()
	if ch == nil {
		a.mu.Unlock()
		return
	}
	ch.SetLoop(true)
	ch.SetVolume(a.initialVolume)
	ch.Play(0)
	a.lastPlayed = ch
	a.playIndex = (a.playIndex + 1) % len(a.channels)
	a.dispatchedComplete = false
	a.restartTickerLocked(ch)
	a.mu.Unlock()
}

// Unload stops and releases every channel. The engine is unusable
// afterward; no completion event is dispatched.
func (a *Asset) Unload() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return
	}
	a.cancelFadeLocked()
	a.stopTickerLocked()
	a.playGen++
	for _, ch := range a.channels {
		ch.Close()
	}
	a.channels = nil
	a.lastPlayed = nil
	a.released = true
}

// SetVolume applies v immediately, or as a geometric ramp when
// fadeDuration is positive and the asset is playing. An immediate set
// cancels any in-flight ramp.
func (a *Asset) SetVolume(v float64, fadeDuration time.Duration) {
	v = api.ClampVolume(v)
	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		return
	}
	a.cancelFadeLocked()
	a.initialVolume = v
	ch := a.lastPlayedOrActiveLocked()
	if fadeDuration > 0 && ch != nil && ch.IsPlaying() {
		ctx := a.newFadeContextLocked()
		a.mu.Unlock()
		go FadeTo(ctx, ch, fadeDuration, v)
		return
	}
	for _, c := range a.channels {
		c.SetVolume(v)
	}
	a.mu.Unlock()
}

// SetRate applies the clamped playback rate to all channels so the pool
// stays consistent even though only one plays at a time.
func (a *Asset) SetRate(r float64) {
	r = api.ClampRate(r)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return
	}
	a.rate = r
	for _, ch := range a.channels {
		ch.SetRate(r)
	}
}

func (a *Asset) Seek(t time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return
	}
	if ch := a.lastPlayedOrActiveLocked(); ch != nil {
		ch.Seek(t)
	}
}

func (a *Asset) CurrentTime() time.Duration {
	a.mu.Lock()
	ch := a.lastPlayedOrActiveLocked()
	a.mu.Unlock()
	if ch == nil {
		return 0
	}
	return ch.CurrentTime()
}

func (a *Asset) Duration() time.Duration {
	a.mu.Lock()
	ch := a.lastPlayedOrActiveLocked()
	a.mu.Unlock()
	if ch == nil {
		return 0
	}
	return ch.Duration()
}

func (a *Asset) IsPlaying() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return false
	}
	for _, ch := range a.channels {
		if ch.IsPlaying() {
			return true
		}
	}
	return false
}

// lastPlayedOrActiveLocked prefers the channel of the current cycle; before
// the first play it falls back to the cursor position.
func (a *Asset) lastPlayedOrActiveLocked() Channel {
	if a.lastPlayed != nil {
		return a.lastPlayed
	}
	return a.activeChannelLocked()
}

// channelFinished handles natural end-of-playback from a channel. Only the
// channel that was last played ends the cycle; older overlapping voices
// finishing must not dispatch completion.
func (a *Asset) channelFinished(ch Channel) {
	a.mu.Lock()
	if a.released || ch != a.lastPlayed {
		a.mu.Unlock()
		return
	}
	a.stopTickerLocked()
	fire := a.markCompleteLocked()
	a.mu.Unlock()

	a.dispatch(fire)
}

// markCompleteLocked flips the dispatch guard and reports whether the
// caller should emit the complete event.
func (a *Asset) markCompleteLocked() bool {
	if a.dispatchedComplete {
		return false
	}
	a.dispatchedComplete = true
	return true
}

// dispatch emits completion with no asset lock held, so notifier
// implementations may re-enter engine methods freely.
func (a *Asset) dispatch(fire bool) {
	if !fire {
		return
	}
	if a.notify != nil {
		a.notify.Complete(a.id)
	}
	a.mu.Lock()
	hook := a.onComplete
	a.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (a *Asset) newFadeContextLocked() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	a.fadeCancel = cancel
	return ctx
}

func (a *Asset) cancelFadeLocked() {
	if a.fadeCancel != nil {
		a.fadeCancel()
		a.fadeCancel = nil
	}
}

func (a *Asset) fadeOrDefault(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	if a.fadeDuration > 0 {
		return a.fadeDuration
	}
	return time.Second
}

func (a *Asset) restartTickerLocked(ch Channel) {
	a.stopTickerLocked()
	if a.notify == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.tickCancel = cancel
	startCurrentTimeUpdates(ctx, a.id, ch, a.notify)
}

func (a *Asset) stopTickerLocked() {
	if a.tickCancel != nil {
		a.tickCancel()
		a.tickCancel = nil
	}
}
