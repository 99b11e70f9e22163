package audio

import (
	"sync"
	"testing"
	"time"
)

// fakeChannel implements Channel in memory for engine tests.
type fakeChannel struct {
	mu sync.Mutex

	playing    bool
	paused     bool
	loop       bool
	volume     float64
	rate       float64
	position   time.Duration
	length     time.Duration
	playCalls  int
	stopCalls  int
	onComplete func()
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{volume: 1.0, rate: 1.0, length: 3 * time.Second}
}

func (f *fakeChannel) Play(at time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = true
	f.paused = false
	f.position = at
	f.playCalls++
}

func (f *fakeChannel) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playing {
		f.paused = true
	}
}

func (f *fakeChannel) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = false
	f.playing = true
}

func (f *fakeChannel) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
	f.paused = false
	f.position = 0
	f.stopCalls++
}

func (f *fakeChannel) Seek(t time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = t
}

func (f *fakeChannel) SetVolume(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = v
}

func (f *fakeChannel) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

func (f *fakeChannel) SetRate(r float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rate = r
}

func (f *fakeChannel) SetLoop(loop bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loop = loop
}

func (f *fakeChannel) IsPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing && !f.paused
}

func (f *fakeChannel) CurrentTime() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

func (f *fakeChannel) Duration() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.length
}

func (f *fakeChannel) SetOnComplete(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onComplete = fn
}

func (f *fakeChannel) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
}

// finish simulates the native end-of-file callback.
func (f *fakeChannel) finish() {
	f.mu.Lock()
	f.playing = false
	fn := f.onComplete
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (f *fakeChannel) plays() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playCalls
}

// completionRecorder counts complete events per asset.
type completionRecorder struct {
	mu        sync.Mutex
	completes map[string]int
	times     map[string][]float64
}

func newCompletionRecorder() *completionRecorder {
	return &completionRecorder{
		completes: make(map[string]int),
		times:     make(map[string][]float64),
	}
}

func (r *completionRecorder) Complete(assetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completes[assetID]++
}

func (r *completionRecorder) CurrentTime(assetID string, seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times[assetID] = append(r.times[assetID], seconds)
}

func (r *completionRecorder) count(assetID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completes[assetID]
}

func poolOf(n int) []Channel {
	chs := make([]Channel, n)
	for i := range chs {
		chs[i] = newFakeChannel()
	}
	return chs
}

func fakeAt(chs []Channel, i int) *fakeChannel {
	return chs[i].(*fakeChannel)
}

func TestPlayRoundRobinsAcrossPool(t *testing.T) {
	chs := poolOf(3)
	a := newAssetWithChannels("fx", chs, 1.0, 0, nil)

	for i := 0; i < 4; i++ {
		a.Play(0, 0)
	}

	if got := fakeAt(chs, 0).plays(); got != 2 {
		t.Errorf("channel 0: expected 2 plays after wrap, got %d", got)
	}
	if got := fakeAt(chs, 1).plays(); got != 1 {
		t.Errorf("channel 1: expected 1 play, got %d", got)
	}
	if got := fakeAt(chs, 2).plays(); got != 1 {
		t.Errorf("channel 2: expected 1 play, got %d", got)
	}
}

func TestStopResetsCursorAndStopsAll(t *testing.T) {
	chs := poolOf(2)
	rec := newCompletionRecorder()
	a := newAssetWithChannels("fx", chs, 1.0, 0, rec)

	a.Play(0, 0)
	a.Play(0, 0)
	a.Stop()

	for i, ch := range chs {
		if ch.IsPlaying() {
			t.Errorf("channel %d still playing after stop", i)
		}
	}

	// Next play starts from channel 0 again.
	a.Play(0, 0)
	if got := fakeAt(chs, 0).plays(); got != 2 {
		t.Errorf("expected play after stop to hit channel 0, got %d plays", got)
	}
}

func TestStopDispatchesCompleteOnce(t *testing.T) {
	chs := poolOf(1)
	rec := newCompletionRecorder()
	a := newAssetWithChannels("fx", chs, 1.0, 0, rec)

	a.Play(0, 0)
	a.Stop()
	a.Stop()
	a.Stop()

	if got := rec.count("fx"); got != 1 {
		t.Errorf("expected exactly one complete per cycle, got %d", got)
	}

	// A fresh cycle re-arms the event.
	a.Play(0, 0)
	a.Stop()
	if got := rec.count("fx"); got != 2 {
		t.Errorf("expected second cycle to complete, got %d", got)
	}
}

func TestNaturalCompletionOnlyFromLastPlayed(t *testing.T) {
	chs := poolOf(2)
	rec := newCompletionRecorder()
	a := newAssetWithChannels("fx", chs, 1.0, 0, rec)

	a.Play(0, 0)
	a.Play(0, 0)

	// The first, older voice ending must not end the cycle.
	fakeAt(chs, 0).finish()
	if got := rec.count("fx"); got != 0 {
		t.Errorf("stale channel completion dispatched: %d", got)
	}

	fakeAt(chs, 1).finish()
	if got := rec.count("fx"); got != 1 {
		t.Errorf("expected completion from last played channel, got %d", got)
	}
}

func TestDelayedPlayLosesRaceWithStop(t *testing.T) {
	chs := poolOf(1)
	a := newAssetWithChannels("fx", chs, 1.0, 0, nil)

	a.Play(0, 30*time.Millisecond)
	a.Stop()

	time.Sleep(80 * time.Millisecond)
	if chs[0].IsPlaying() {
		t.Error("delayed play should have been invalidated by stop")
	}
	if got := fakeAt(chs, 0).plays(); got != 0 {
		t.Errorf("expected no play after losing race, got %d", got)
	}
}

func TestDelayedPlayOverlapsImmediatePlay(t *testing.T) {
	chs := poolOf(2)
	a := newAssetWithChannels("fx", chs, 1.0, 0, nil)

	// The delayed start reserves channel 0; the immediate play must land
	// on channel 1 and leave the pending voice alone.
	a.Play(0, 30*time.Millisecond)
	a.Play(0, 0)

	if got := fakeAt(chs, 1).plays(); got != 1 {
		t.Fatalf("expected immediate play on channel 1, got %d plays", got)
	}

	time.Sleep(100 * time.Millisecond)
	if got := fakeAt(chs, 0).plays(); got != 1 {
		t.Errorf("expected delayed play on channel 0, got %d plays", got)
	}
	for i := range chs {
		if !chs[i].IsPlaying() {
			t.Errorf("channel %d not playing, voices must overlap", i)
		}
	}
}

func TestDelayedPlayFires(t *testing.T) {
	chs := poolOf(1)
	a := newAssetWithChannels("fx", chs, 1.0, 0, nil)

	a.Play(0, 20*time.Millisecond)
	if chs[0].IsPlaying() {
		t.Error("playback started before the delay elapsed")
	}

	time.Sleep(80 * time.Millisecond)
	if !chs[0].IsPlaying() {
		t.Error("delayed play never fired")
	}
}

func TestLoopMarksChannelLooping(t *testing.T) {
	chs := poolOf(2)
	a := newAssetWithChannels("fx", chs, 1.0, 0, nil)

	a.Loop()
	if !fakeAt(chs, 0).loop {
		t.Error("expected loop flag on active channel")
	}
	if !chs[0].IsPlaying() {
		t.Error("expected looped channel to play")
	}
}

func TestSetVolumeClampsAndAppliesToPool(t *testing.T) {
	chs := poolOf(2)
	a := newAssetWithChannels("fx", chs, 1.0, 0, nil)

	a.SetVolume(1.7, 0)
	for i, ch := range chs {
		if got := ch.Volume(); got != 1.0 {
			t.Errorf("channel %d: expected clamp to 1.0, got %f", i, got)
		}
	}

	a.SetVolume(-0.4, 0)
	for i, ch := range chs {
		if got := ch.Volume(); got != 0.0 {
			t.Errorf("channel %d: expected clamp to 0.0, got %f", i, got)
		}
	}
}

func TestSetRateClampsAndAppliesToPool(t *testing.T) {
	chs := poolOf(2)
	a := newAssetWithChannels("fx", chs, 1.0, 0, nil)

	a.SetRate(9.0)
	for i := range chs {
		if got := fakeAt(chs, i).rate; got != 4.0 {
			t.Errorf("channel %d: expected rate clamp to 4.0, got %f", i, got)
		}
	}

	a.SetRate(0.01)
	if got := fakeAt(chs, 0).rate; got != 0.25 {
		t.Errorf("expected rate clamp to 0.25, got %f", got)
	}
}

func TestUnloadReleasesEngine(t *testing.T) {
	chs := poolOf(1)
	rec := newCompletionRecorder()
	a := newAssetWithChannels("fx", chs, 1.0, 0, rec)

	a.Play(0, 0)
	a.Unload()

	if a.IsPlaying() {
		t.Error("unloaded engine reports playing")
	}
	a.Play(0, 0)
	if got := rec.count("fx"); got != 0 {
		t.Errorf("unload must not dispatch completion, got %d", got)
	}
	if got := fakeAt(chs, 0).plays(); got != 1 {
		t.Errorf("play after unload must be ignored, got %d plays", got)
	}
}

func TestOnCompleteHookRunsAfterNotifier(t *testing.T) {
	chs := poolOf(1)
	rec := newCompletionRecorder()
	a := newAssetWithChannels("once", chs, 1.0, 0, rec)

	var hookRuns int
	var mu sync.Mutex
	a.SetOnComplete(func() {
		mu.Lock()
		hookRuns++
		mu.Unlock()
	})

	a.Play(0, 0)
	fakeAt(chs, 0).finish()

	mu.Lock()
	defer mu.Unlock()
	if hookRuns != 1 {
		t.Errorf("expected one hook run, got %d", hookRuns)
	}
	if rec.count("once") != 1 {
		t.Errorf("expected one complete event, got %d", rec.count("once"))
	}
}

func TestSetVolumeSecondRampCancelsFirst(t *testing.T) {
	chs := poolOf(1)
	a := newAssetWithChannels("fx", chs, 1.0, 0, nil)
	a.Play(0, 0)

	// A long downward ramp immediately superseded by a short upward one:
	// only the second may finish.
	a.SetVolume(0.1, 20*FadeStepInterval)
	a.SetVolume(0.9, 3*FadeStepInterval)

	time.Sleep(5 * FadeStepInterval)
	if got := chs[0].Volume(); got != 0.9 {
		t.Fatalf("expected second ramp to finish at 0.9, got %f", got)
	}

	// Had the first ramp survived it would still be pulling toward 0.1.
	time.Sleep(4 * FadeStepInterval)
	if got := chs[0].Volume(); got != 0.9 {
		t.Errorf("first ramp kept running after being superseded, volume %f", got)
	}
}

func TestPlayWithFadeRampsToInitialVolume(t *testing.T) {
	chs := poolOf(1)
	a := newAssetWithChannels("fx", chs, 1.0, 0, nil)

	a.PlayWithFade(0, 3*FadeStepInterval)
	if got := chs[0].Volume(); got != 0 {
		t.Errorf("fading play must start silent, got %f", got)
	}

	time.Sleep(6 * FadeStepInterval)
	if got := chs[0].Volume(); got != 1.0 {
		t.Errorf("expected ramp to reach 1.0, got %f", got)
	}
}

func TestPauseWithFadeRestoresVolume(t *testing.T) {
	chs := poolOf(1)
	a := newAssetWithChannels("fx", chs, 1.0, 0, nil)
	a.SetVolume(0.8, 0)
	a.Play(0, 0)

	a.PauseWithFade(3 * FadeStepInterval)

	time.Sleep(6 * FadeStepInterval)
	if chs[0].IsPlaying() {
		t.Error("expected channel paused after fade out")
	}
	if got := chs[0].Volume(); got != 0.8 {
		t.Errorf("expected volume restored to 0.8 for the next resume, got %f", got)
	}
}

func TestStopWithFadeFallsBackWhenNotPlaying(t *testing.T) {
	chs := poolOf(1)
	rec := newCompletionRecorder()
	a := newAssetWithChannels("fx", chs, 1.0, 0, rec)

	// Nothing playing: the fade degrades to an immediate stop and the
	// completion event still fires.
	a.StopWithFade(10 * FadeStepInterval)

	if got := rec.count("fx"); got != 1 {
		t.Errorf("expected one complete from fallback stop, got %d", got)
	}
	if chs[0].IsPlaying() {
		t.Error("channel playing after fallback stop")
	}
}

func TestStopWithFadeSilencesAndCompletes(t *testing.T) {
	chs := poolOf(1)
	rec := newCompletionRecorder()
	a := newAssetWithChannels("fx", chs, 1.0, 0, rec)
	a.Play(0, 0)

	a.StopWithFade(3 * FadeStepInterval)

	time.Sleep(6 * FadeStepInterval)
	if chs[0].IsPlaying() {
		t.Error("expected channel stopped after fade out")
	}
	if got := rec.count("fx"); got != 1 {
		t.Errorf("expected one complete after faded stop, got %d", got)
	}
	// The channel is ready for the next cycle at its configured volume.
	if got := chs[0].Volume(); got != 1.0 {
		t.Errorf("expected volume restored to 1.0, got %f", got)
	}
}

func TestResumeReentersFromNotifier(t *testing.T) {
	// A notifier that immediately calls back into the engine must not
	// deadlock; completion is dispatched with no locks held.
	chs := poolOf(1)
	a := newAssetWithChannels("fx", chs, 1.0, 0, nil)
	done := make(chan struct{})
	a.SetOnComplete(func() {
		a.Play(0, 0)
		close(done)
	})

	a.Play(0, 0)
	go fakeAt(chs, 0).finish()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("re-entrant completion deadlocked")
	}
}
