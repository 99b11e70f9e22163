package audio

import (
	"math"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"
)

// silentThreshold is the volume below which a channel is treated as muted.
// It also floors geometric fade math so the per-step ratio stays finite.
const silentThreshold = 1e-4

// mixSampleRate is the rate the shared speaker runs at. Every decoded
// source is resampled to it, so differing assets can play together.
const mixSampleRate = beep.SampleRate(44100)

var speakerOnce sync.Once

func initSpeaker() error {
	var err error
	speakerOnce.Do(func() {
		err = speaker.Init(mixSampleRate, mixSampleRate.N(100*time.Millisecond))
	})
	return err
}

// SessionRequester lets a channel ask for the shared platform audio session
// before it starts producing sound. The channel never owns the session.
type SessionRequester interface {
	RequestActivate()
}

// Channel is one native playable unit within an asset's pool. All methods
// are safe for concurrent use; mutations of the live audio graph happen
// under the speaker lock.
type Channel interface {
	Play(at time.Duration)
	Pause()
	Resume()
	Stop()
	Seek(t time.Duration)
	SetVolume(v float64)
	Volume() float64
	SetRate(r float64)
	SetLoop(loop bool)
	IsPlaying() bool
	CurrentTime() time.Duration
	Duration() time.Duration
	SetOnComplete(fn func())
	Close()
}

// beepChannel implements Channel on top of a decoded in-memory source.
type beepChannel struct {
	mu sync.Mutex

	streamer beep.StreamSeekCloser
	format   beep.Format
	seekable bool

	// Current playback chain, rebuilt on every Play so a killed chain can
	// drain out of the mixer without racing its successor.
	chain *playChain

	vol     float64
	rate    float64
	loop    bool
	playing bool
	paused  bool
	closed  bool

	// generation invalidates completion callbacks from superseded chains.
	generation uint64

	onComplete func()
	session    SessionRequester
}

// playChain is one submission to the speaker mixer.
type playChain struct {
	src  *chainStreamer
	ctrl *beep.Ctrl
	rs   *beep.Resampler
	gain *effects.Volume
}

// chainStreamer feeds the decoded source into the mixer, implementing
// kill (silent removal), loop-on-drain and natural completion detection.
// Its fields are mutated only under the speaker lock, which is the lock
// the mixer holds while calling Stream.
type chainStreamer struct {
	src      beep.StreamSeekCloser
	seekable bool
	loop     bool
	killed   bool
	drained  bool
}

func (c *chainStreamer) Stream(samples [][2]float64) (int, bool) {
	if c.killed || c.drained {
		return 0, false
	}
	filled := 0
	for filled < len(samples) {
		n, ok := c.src.Stream(samples[filled:])
		filled += n
		if !ok {
			if c.loop && c.seekable {
				if err := c.src.Seek(0); err != nil {
					c.drained = true
					break
				}
				continue
			}
			c.drained = true
			break
		}
	}
	return filled, filled > 0 || !c.drained
}

func (c *chainStreamer) Err() error { return c.src.Err() }

// NewBufferedChannel decodes data into a channel. Each call owns an
// independent decode of the buffer, so pool members never share position.
func NewBufferedChannel(data []byte, path string, volume float64, session SessionRequester) (Channel, error) {
	streamer, format, err := DecodeAudio(newByteSource(data), path)
	if err != nil {
		return nil, err
	}
	return newBeepChannel(streamer, format, true, volume, session), nil
}

// NewStreamChannel wraps an already-decoded live streamer. Used for
// indefinite remote sources where seeking and duration are unavailable.
func NewStreamChannel(streamer beep.StreamSeekCloser, format beep.Format, volume float64, session SessionRequester) Channel {
	return newBeepChannel(streamer, format, false, volume, session)
}

func newBeepChannel(streamer beep.StreamSeekCloser, format beep.Format, seekable bool, volume float64, session SessionRequester) *beepChannel {
	return &beepChannel{
		streamer: streamer,
		format:   format,
		seekable: seekable,
		vol:      volume,
		rate:     1.0,
		session:  session,
	}
}

// baseRatio converts between the source rate and the mixer rate; the
// playback rate multiplies on top of it.
func (ch *beepChannel) baseRatio() float64 {
	return float64(ch.format.SampleRate) / float64(mixSampleRate)
}

// gainFor maps a linear [0,1] volume onto the exponential effects.Volume
// scale. With Base 2 and Volume log2(v) the output amplitude equals v.
func gainFor(v float64) (volume float64, silent bool) {
	if v < silentThreshold {
		return 0, true
	}
	return math.Log2(v), false
}

func (ch *beepChannel) Play(at time.Duration) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return
	}
	if err := initSpeaker(); err != nil {
		return
	}
	if ch.session != nil {
		ch.session.RequestActivate()
	}

	ch.generation++
	gen := ch.generation

	speaker.Lock()
	if ch.chain != nil {
		// Leave the old chain to drain out of the mixer on its own.
		ch.chain.src.killed = true
	}
	if ch.seekable {
		ch.seekLocked(at)
	}
	src := &chainStreamer{src: ch.streamer, seekable: ch.seekable, loop: ch.loop}
	ctrl := &beep.Ctrl{Streamer: src}
	rs := beep.ResampleRatio(4, ch.baseRatio()*ch.rate, ctrl)
	gain := &effects.Volume{Streamer: rs, Base: 2}
	gain.Volume, gain.Silent = gainFor(ch.vol)
	ch.chain = &playChain{src: src, ctrl: ctrl, rs: rs, gain: gain}
	speaker.Unlock()

	ch.playing = true
	ch.paused = false

	// The callback runs inside the mixer while the speaker lock is held,
	// so the completion path must leave the mixer before touching state.
	speaker.Play(beep.Seq(gain, beep.Callback(func() {
		go ch.finished(gen)
	})))
}

func (ch *beepChannel) finished(gen uint64) {
	ch.mu.Lock()
	if ch.closed || gen != ch.generation || !ch.playing {
		ch.mu.Unlock()
		return
	}
	ch.playing = false
	ch.paused = false
	speaker.Lock()
	if ch.seekable {
		_ = ch.streamer.Seek(0)
	}
	ch.chain = nil
	speaker.Unlock()
	fn := ch.onComplete
	ch.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (ch *beepChannel) Pause() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed || ch.chain == nil || !ch.playing {
		return
	}
	speaker.Lock()
	ch.chain.ctrl.Paused = true
	speaker.Unlock()
	ch.paused = true
}

func (ch *beepChannel) Resume() {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	if ch.chain != nil && ch.paused {
		if ch.session != nil {
			ch.session.RequestActivate()
		}
		speaker.Lock()
		ch.chain.ctrl.Paused = false
		speaker.Unlock()
		ch.paused = false
		ch.mu.Unlock()
		return
	}
	pos := ch.currentTimeLocked()
	ch.mu.Unlock()
	ch.Play(pos)
}

func (ch *beepChannel) Stop() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.stopLocked()
}

func (ch *beepChannel) stopLocked() {
	if ch.closed {
		return
	}
	ch.generation++
	ch.loop = false
	ch.playing = false
	ch.paused = false
	if ch.chain != nil {
		speaker.Lock()
		ch.chain.src.killed = true
		if ch.seekable {
			_ = ch.streamer.Seek(0)
		}
		speaker.Unlock()
		ch.chain = nil
	} else if ch.seekable {
		speaker.Lock()
		_ = ch.streamer.Seek(0)
		speaker.Unlock()
	}
}

func (ch *beepChannel) Seek(t time.Duration) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed || !ch.seekable {
		return
	}
	speaker.Lock()
	ch.seekLocked(t)
	speaker.Unlock()
}

// seekLocked clamps t to [0, duration]. Caller holds the speaker lock.
func (ch *beepChannel) seekLocked(t time.Duration) {
	if t < 0 {
		t = 0
	}
	n := ch.format.SampleRate.N(t)
	if total := ch.streamer.Len(); total > 0 && n > total {
		n = total
	}
	_ = ch.streamer.Seek(n)
}

func (ch *beepChannel) SetVolume(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return
	}
	ch.vol = v
	if ch.chain != nil {
		speaker.Lock()
		ch.chain.gain.Volume, ch.chain.gain.Silent = gainFor(v)
		speaker.Unlock()
	}
}

func (ch *beepChannel) Volume() float64 {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.vol
}

func (ch *beepChannel) SetRate(r float64) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return
	}
	ch.rate = r
	if ch.chain != nil {
		speaker.Lock()
		ch.chain.rs.SetRatio(ch.baseRatio() * r)
		speaker.Unlock()
	}
}

func (ch *beepChannel) SetLoop(loop bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return
	}
	ch.loop = loop
	if ch.chain != nil {
		speaker.Lock()
		ch.chain.src.loop = loop && ch.seekable
		speaker.Unlock()
	}
}

func (ch *beepChannel) IsPlaying() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.playing && !ch.paused
}

func (ch *beepChannel) CurrentTime() time.Duration {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.currentTimeLocked()
}

func (ch *beepChannel) currentTimeLocked() time.Duration {
	if ch.closed || !ch.seekable {
		return 0
	}
	speaker.Lock()
	pos := ch.streamer.Position()
	speaker.Unlock()
	return ch.format.SampleRate.D(pos)
}

func (ch *beepChannel) Duration() time.Duration {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed || !ch.seekable {
		return 0
	}
	total := ch.streamer.Len()
	if total <= 0 {
		return 0
	}
	return ch.format.SampleRate.D(total)
}

func (ch *beepChannel) SetOnComplete(fn func()) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.onComplete = fn
}

func (ch *beepChannel) Close() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return
	}
	ch.stopLocked()
	ch.closed = true
	_ = ch.streamer.Close()
}
