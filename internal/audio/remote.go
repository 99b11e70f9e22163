package audio

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/soundctl/audiobridge/api"
	bridgeerrors "github.com/soundctl/audiobridge/pkg/errors"
)

// RemoteAsset streams a URL-backed sound through the shared on-disk cache.
// The download runs in the background; operations issued before readiness
// are remembered and replayed once the pool exists. Sources without a
// known length are treated as live streams: a single non-seekable channel,
// duration 0, no looping.
type RemoteAsset struct {
	mu sync.Mutex

	id           string
	url          string
	headers      map[string]string
	cacheDir     string
	client       *http.Client
	channelCount int
	volume       float64
	fadeDuration time.Duration
	rate         float64
	session      SessionRequester
	notify       Notifier

	// pool is nil until the source is ready.
	pool     *Asset
	live     bool
	ready    chan struct{}
	loadErr  error
	released bool

	pending    *pendingOp
	onComplete func()
}

// pendingOp records the last playback request issued before readiness.
type pendingOp struct {
	kind string // "play", "playFade" or "loop"
	at   time.Duration
	fade time.Duration
}

// NewRemoteAsset starts fetching the source immediately and returns
// without waiting for it.
func NewRemoteAsset(id, rawURL string, headers map[string]string, channelCount int, volume float64, fadeDuration time.Duration, cacheDir string, client *http.Client, session SessionRequester, notify Notifier) *RemoteAsset {
	if client == nil {
		client = http.DefaultClient
	}
	if channelCount < 1 {
		channelCount = 1
	} else if channelCount > api.MaxChannels {
		channelCount = api.MaxChannels
	}
	r := &RemoteAsset{
		id:           id,
		url:          rawURL,
		headers:      headers,
		cacheDir:     cacheDir,
		client:       client,
		channelCount: channelCount,
		volume:       api.ClampVolume(volume),
		fadeDuration: fadeDuration,
		rate:         api.DefaultRate,
		session:      session,
		notify:       notify,
		ready:        make(chan struct{}),
	}
	go r.fetch()
	return r
}

// Ready exposes the readiness signal; it closes when the pool exists or
// loading failed. Err reports the outcome afterward.
func (r *RemoteAsset) Ready() <-chan struct{} { return r.ready }

func (r *RemoteAsset) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadErr
}

func (r *RemoteAsset) fetch() {
	pool, live, err := r.load()

	r.mu.Lock()
	if r.released {
		// A failed download is the more useful diagnostic than the
		// release that raced it.
		if err == nil {
			err = bridgeerrors.ErrEngineReleased
		}
		r.loadErr = err
		r.mu.Unlock()
		if pool != nil {
			pool.Unload()
		}
		close(r.ready)
		return
	}
	r.pool = pool
	r.live = live
	r.loadErr = err
	if pool != nil {
		pool.SetOnComplete(func() {
			r.mu.Lock()
			hook := r.onComplete
			r.mu.Unlock()
			if hook != nil {
				hook()
			}
		})
		// Volume or rate may have been adjusted while downloading.
		pool.SetVolume(r.volume, 0)
		if r.rate != api.DefaultRate {
			pool.SetRate(r.rate)
		}
	}
	op := r.pending
	r.pending = nil
	r.mu.Unlock()
	close(r.ready)

	if pool == nil || op == nil {
		return
	}
	switch op.kind {
	case "play":
		pool.Play(op.at, 0)
	case "playFade":
		pool.PlayWithFade(op.at, op.fade)
	case "loop":
		pool.Loop()
	}
}

// load downloads the source into the cache and builds the channel pool.
func (r *RemoteAsset) load() (*Asset, bool, error) {
	req, err := http.NewRequest(http.MethodGet, r.url, nil)
	if err != nil {
		return nil, false, err
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, false, fmt.Errorf("fetch %s: unexpected status %s", r.url, resp.Status)
	}

	if resp.ContentLength < 0 {
		// Endless source: decode straight off the connection.
		streamer, format, err := DecodeLive(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, false, err
		}
		ch := NewStreamChannel(streamer, format, r.volume, r.session)
		pool := newAssetWithChannels(r.id, []Channel{ch}, r.volume, r.fadeDuration, r.notify)
		return pool, true, nil
	}
	defer resp.Body.Close()

	path := cachePathFor(r.cacheDir, r.url)
	if _, statErr := os.Stat(path); statErr != nil {
		if err := r.writeCache(path, resp.Body); err != nil {
			return nil, false, err
		}
	}

	pool, err := NewAsset(r.id, path, r.channelCount, r.volume, r.fadeDuration, r.session, r.notify)
	if err != nil {
		return nil, false, err
	}
	return pool, false, nil
}

func (r *RemoteAsset) writeCache(path string, body io.Reader) error {
	if err := os.MkdirAll(r.cacheDir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(r.cacheDir, "download-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Clean(path))
}

// poolOrDefer returns the ready pool, or records op for replay and
// returns nil.
func (r *RemoteAsset) poolOrDefer(op *pendingOp) *Asset {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil
	}
	if r.pool == nil && r.loadErr == nil {
		if op != nil {
			r.pending = op
		}
		return nil
	}
	return r.pool
}

func (r *RemoteAsset) Play(at, delay time.Duration) {
	if delay > 0 {
		time.AfterFunc(delay, func() { r.Play(at, 0) })
		return
	}
	if pool := r.poolOrDefer(&pendingOp{kind: "play", at: at}); pool != nil {
		pool.Play(at, 0)
	}
}

func (r *RemoteAsset) PlayWithFade(at time.Duration, fadeDuration time.Duration) {
	if pool := r.poolOrDefer(&pendingOp{kind: "playFade", at: at, fade: fadeDuration}); pool != nil {
		pool.PlayWithFade(at, fadeDuration)
	}
}

func (r *RemoteAsset) Pause() {
	if pool := r.poolOrDefer(nil); pool != nil {
		pool.Pause()
	}
}

func (r *RemoteAsset) PauseWithFade(fadeDuration time.Duration) {
	if pool := r.poolOrDefer(nil); pool != nil {
		pool.PauseWithFade(fadeDuration)
	}
}

func (r *RemoteAsset) Resume() {
	if pool := r.poolOrDefer(nil); pool != nil {
		pool.Resume()
	}
}

func (r *RemoteAsset) ResumeWithFade(fadeDuration time.Duration) {
	if pool := r.poolOrDefer(nil); pool != nil {
		pool.ResumeWithFade(fadeDuration)
	}
}

func (r *RemoteAsset) Stop() {
	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()
	if pool := r.poolOrDefer(nil); pool != nil {
		pool.Stop()
	}
}

func (r *RemoteAsset) StopWithFade(fadeDuration time.Duration) {
	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()
	if pool := r.poolOrDefer(nil); pool != nil {
		pool.StopWithFade(fadeDuration)
	}
}

func (r *RemoteAsset) Loop() {
	r.mu.Lock()
	live := r.live
	r.mu.Unlock()
	if live {
		// A live stream has no end to loop over; just make sure it plays.
		r.Play(0, 0)
		return
	}
	if pool := r.poolOrDefer(&pendingOp{kind: "loop"}); pool != nil {
		pool.Loop()
	}
}

func (r *RemoteAsset) Unload() {
	r.mu.Lock()
	r.released = true
	r.pending = nil
	pool := r.pool
	r.pool = nil
	r.mu.Unlock()
	if pool != nil {
		pool.Unload()
	}
}

func (r *RemoteAsset) SetVolume(v float64, fadeDuration time.Duration) {
	r.mu.Lock()
	r.volume = api.ClampVolume(v)
	pool := r.pool
	r.mu.Unlock()
	if pool != nil {
		pool.SetVolume(v, fadeDuration)
	}
}

func (r *RemoteAsset) SetRate(rate float64) {
	r.mu.Lock()
	r.rate = api.ClampRate(rate)
	pool := r.pool
	r.mu.Unlock()
	if pool != nil {
		pool.SetRate(rate)
	}
}

func (r *RemoteAsset) Seek(t time.Duration) {
	if pool := r.poolOrDefer(nil); pool != nil {
		pool.Seek(t)
	}
}

func (r *RemoteAsset) CurrentTime() time.Duration {
	if pool := r.poolOrDefer(nil); pool != nil {
		return pool.CurrentTime()
	}
	return 0
}

// Duration returns 0 until the stream is ready and 0 for genuinely
// indefinite sources.
func (r *RemoteAsset) Duration() time.Duration {
	r.mu.Lock()
	pool, live := r.pool, r.live
	r.mu.Unlock()
	if pool == nil || live {
		return 0
	}
	return pool.Duration()
}

func (r *RemoteAsset) IsPlaying() bool {
	if pool := r.poolOrDefer(nil); pool != nil {
		return pool.IsPlaying()
	}
	return false
}

func (r *RemoteAsset) SetOnComplete(fn func()) {
	r.mu.Lock()
	r.onComplete = fn
	pool := r.pool
	r.mu.Unlock()
	if pool != nil {
		pool.SetOnComplete(fn)
	}
}
