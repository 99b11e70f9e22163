package bridge

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/soundctl/audiobridge/api"
	"github.com/soundctl/audiobridge/internal/audio"
	bridgeerrors "github.com/soundctl/audiobridge/pkg/errors"
	"github.com/soundctl/audiobridge/pkg/events"
)

// Version is reported to hosts via GetVersion.
const Version = "1.2.0"

// EngineFactory builds asset engines. Tests substitute it to exercise the
// coordinator without real audio output.
type EngineFactory interface {
	Local(id, path string, channels int, volume float64, fade time.Duration) (audio.Engine, error)
	Remote(id, url string, headers map[string]string, channels int, volume float64, fade time.Duration) (audio.Engine, error)
}

// Options configures a Coordinator. Zero values get sensible defaults.
type Options struct {
	PublicDir  string
	CacheDir   string
	Session    Session
	NowPlaying NowPlaying
	Logger     *log.Logger
	HTTPClient *http.Client
	Factory    EngineFactory
}

// playOnceInfo tracks one transient auto-lifecycle asset.
type playOnceInfo struct {
	// deletePath is the file to remove after playback, empty when the
	// source is remote or deletion was not requested.
	deletePath string
}

// Coordinator owns the asset registry and the session lifecycle. The
// registry maps are guarded by mu; engines serialize their own state, and
// the coordinator never holds mu while running an engine mutation that can
// synchronously emit events, so completion paths can re-enter freely.
type Coordinator struct {
	mu       sync.RWMutex
	assets   map[string]audio.Engine
	sources  map[string]Source
	playOnce map[string]playOnceInfo
	metadata map[string]api.NotificationMetadata

	fadeMusic        bool
	showNotification bool
	// currentAsset is the id whose metadata sits on the now-playing surface.
	currentAsset string
	closed       bool

	bus        *events.Bus
	log        *log.Logger
	session    Session
	nowPlaying NowPlaying
	resolver   *Resolver
	cacheDir   string
	factory    EngineFactory
}

// New creates a coordinator with its collaborators injected.
func New(opts Options) *Coordinator {
	c := &Coordinator{
		assets:   make(map[string]audio.Engine),
		sources:  make(map[string]Source),
		playOnce: make(map[string]playOnceInfo),
		metadata: make(map[string]api.NotificationMetadata),
		bus:      events.NewBus(),
		log:      opts.Logger,
		session:  opts.Session,
		resolver: &Resolver{PublicDir: opts.PublicDir},
		cacheDir: opts.CacheDir,
	}
	if c.log == nil {
		c.log = log.New(log.Writer(), "audiobridge: ", log.LstdFlags)
	}
	if c.session == nil {
		c.session = NewProcessSession()
	}
	if opts.NowPlaying != nil {
		c.nowPlaying = opts.NowPlaying
	} else {
		c.nowPlaying = &LogNowPlaying{Log: c.log}
	}
	c.factory = opts.Factory
	if c.factory == nil {
		c.factory = &beepFactory{
			session:  c,
			notify:   c,
			cacheDir: opts.CacheDir,
			client:   opts.HTTPClient,
		}
	}
	return c
}

// Events returns the bus that delivers complete/currentTime/interrupt
// events to host listeners.
func (c *Coordinator) Events() *events.Bus { return c.bus }

// GetVersion reports the bridge version string.
func (c *Coordinator) GetVersion() string { return Version }

// Configure applies global flags. Session reconfiguration is best-effort.
func (c *Coordinator) Configure(opts api.ConfigureOptions) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return bridgeerrors.ErrBridgeClosed
	}
	if opts.Fade != nil {
		c.fadeMusic = *opts.Fade
	}
	if opts.ShowNotification != nil {
		c.showNotification = *opts.ShowNotification
	}
	focus := api.BoolOr(opts.Focus, false)
	background := api.BoolOr(opts.Background, false)
	ignoreSilent := api.BoolOr(opts.IgnoreSilent, true)
	c.mu.Unlock()

	if err := c.session.Configure(focus, background, ignoreSilent); err != nil {
		c.log.Printf("configure audio session: %v", err)
	}
	return nil
}

// IsPreloaded reports whether the asset id is registered.
func (c *Coordinator) IsPreloaded(assetID string) (bool, error) {
	if assetID == "" {
		return false, bridgeerrors.NewBridgeError("isPreloaded", "", bridgeerrors.ErrAssetIDMissing)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, found := c.assets[assetID]
	return found, nil
}

// Preload registers a sound under a caller-supplied id. Registering an id
// twice is an error; the existing asset is left untouched.
func (c *Coordinator) Preload(opts api.PreloadOptions) error {
	if opts.AssetID == "" {
		return bridgeerrors.NewBridgeError("preload", "", bridgeerrors.ErrAssetIDMissing)
	}
	if opts.AssetPath == "" {
		return bridgeerrors.NewBridgeError("preload", opts.AssetID, bridgeerrors.ErrAssetPathMissing)
	}
	volume := api.ClampVolume(api.FloatOr(opts.Volume, api.DefaultVolume))
	channels := opts.Channels
	if channels < 1 {
		channels = api.DefaultChannels
	}
	fade := durationFromSeconds(opts.Delay)

	// Construction happens under the registry lock so concurrent preloads
	// of the same id cannot both pass the duplicate check.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return bridgeerrors.ErrBridgeClosed
	}
	if _, exists := c.assets[opts.AssetID]; exists {
		return bridgeerrors.NewBridgeError("preload", opts.AssetID, bridgeerrors.ErrAssetAlreadyLoaded)
	}

	src, err := c.resolver.Resolve(opts.AssetPath, opts.IsURL)
	if err != nil {
		return bridgeerrors.NewBridgeError("preload", opts.AssetID, err)
	}

	eng, err := c.buildEngine(opts.AssetID, src, opts.Headers, channels, volume, fade)
	if err != nil {
		return err
	}
	c.assets[opts.AssetID] = eng
	c.sources[opts.AssetID] = src
	if !opts.Metadata.Empty() {
		c.metadata[opts.AssetID] = opts.Metadata
	}
	return nil
}

func (c *Coordinator) buildEngine(id string, src Source, headers map[string]string, channels int, volume float64, fade time.Duration) (audio.Engine, error) {
	if src.Remote {
		eng, err := c.factory.Remote(id, src.URL, headers, channels, volume, fade)
		if err != nil {
			return nil, bridgeerrors.NewBridgeError("preload", id, err)
		}
		return eng, nil
	}
	eng, err := c.factory.Local(id, src.Path, channels, volume, fade)
	if err != nil {
		return nil, bridgeerrors.NewBridgeError("preload", id, err)
	}
	return eng, nil
}

// Play starts playback of a preloaded asset. With the global fade flag set
// it degrades to the fading variant.
func (c *Coordinator) Play(opts api.PlayOptions) error {
	eng, err := c.engine("play", opts.AssetID)
	if err != nil {
		return err
	}
	c.RequestActivate()
	if c.isFadeMusic() {
		eng.PlayWithFade(durationFromSeconds(opts.Time), 0)
	} else {
		eng.Play(durationFromSeconds(opts.Time), durationFromSeconds(opts.Delay))
	}
	c.publishNowPlaying(opts.AssetID)
	return nil
}

// Pause pauses the asset and releases the session if nothing else plays.
func (c *Coordinator) Pause(assetID string) error {
	eng, err := c.engine("pause", assetID)
	if err != nil {
		return err
	}
	if c.isFadeMusic() {
		eng.PauseWithFade(0)
	} else {
		eng.Pause()
	}
	c.updatePlaybackState(assetID, false)
	c.maybeEndSession()
	return nil
}

// Resume restarts a paused asset.
func (c *Coordinator) Resume(assetID string) error {
	eng, err := c.engine("resume", assetID)
	if err != nil {
		return err
	}
	c.RequestActivate()
	if c.isFadeMusic() {
		eng.ResumeWithFade(0)
	} else {
		eng.Resume()
	}
	c.updatePlaybackState(assetID, true)
	return nil
}

// Stop halts all channels of the asset. Stopping an already-stopped asset
// succeeds; the complete event still fires at most once per cycle.
func (c *Coordinator) Stop(assetID string) error {
	eng, err := c.engine("stop", assetID)
	if err != nil {
		return err
	}
	if c.isFadeMusic() {
		eng.StopWithFade(0)
	} else {
		eng.Stop()
	}
	c.updatePlaybackState(assetID, false)
	c.maybeEndSession()
	return nil
}

// Loop plays the asset with looping enabled until stopped.
func (c *Coordinator) Loop(assetID string) error {
	eng, err := c.engine("loop", assetID)
	if err != nil {
		return err
	}
	c.RequestActivate()
	eng.Loop()
	c.publishNowPlaying(assetID)
	return nil
}

// Unload removes the asset from the registry and releases its channels.
func (c *Coordinator) Unload(assetID string) error {
	if assetID == "" {
		return bridgeerrors.NewBridgeError("unload", "", bridgeerrors.ErrAssetIDMissing)
	}
	c.mu.Lock()
	eng, ok := c.assets[assetID]
	if !ok {
		c.mu.Unlock()
		return bridgeerrors.NewBridgeError("unload", assetID, bridgeerrors.ErrAssetNotFound)
	}
	delete(c.assets, assetID)
	delete(c.sources, assetID)
	delete(c.playOnce, assetID)
	delete(c.metadata, assetID)
	wasCurrent := c.currentAsset == assetID
	if wasCurrent {
		c.currentAsset = ""
	}
	show := c.showNotification
	c.mu.Unlock()

	eng.Unload()
	if wasCurrent && show {
		if err := c.nowPlaying.Clear(); err != nil {
			c.log.Printf("clear now playing: %v", err)
		}
	}
	c.maybeEndSession()
	return nil
}

// SetVolume clamps and applies the volume, optionally as a timed ramp.
func (c *Coordinator) SetVolume(assetID string, volume float64, durationSec float64) error {
	eng, err := c.engine("setVolume", assetID)
	if err != nil {
		return err
	}
	eng.SetVolume(api.ClampVolume(volume), durationFromSeconds(durationSec))
	return nil
}

// SetRate clamps and applies the playback rate.
func (c *Coordinator) SetRate(assetID string, rate float64) error {
	eng, err := c.engine("setRate", assetID)
	if err != nil {
		return err
	}
	eng.SetRate(api.ClampRate(rate))
	return nil
}

// SetCurrentTime seeks the asset to the given position in seconds.
func (c *Coordinator) SetCurrentTime(assetID string, seconds float64) error {
	eng, err := c.engine("setCurrentTime", assetID)
	if err != nil {
		return err
	}
	eng.Seek(durationFromSeconds(seconds))
	return nil
}

// GetCurrentTime reports the playback position in seconds.
func (c *Coordinator) GetCurrentTime(assetID string) (float64, error) {
	eng, err := c.engine("getCurrentTime", assetID)
	if err != nil {
		return 0, err
	}
	return eng.CurrentTime().Seconds(), nil
}

// GetDuration reports the asset duration in seconds, 0 when unknown or
// indefinite.
func (c *Coordinator) GetDuration(assetID string) (float64, error) {
	eng, err := c.engine("getDuration", assetID)
	if err != nil {
		return 0, err
	}
	return eng.Duration().Seconds(), nil
}

// IsPlaying reports whether any channel of the asset is audible.
func (c *Coordinator) IsPlaying(assetID string) (bool, error) {
	eng, err := c.engine("isPlaying", assetID)
	if err != nil {
		return false, err
	}
	return eng.IsPlaying(), nil
}

// ClearCache purges downloaded remote audio off the caller's critical
// path. Failures are logged, never surfaced.
func (c *Coordinator) ClearCache() {
	dir := c.cacheDir
	go func() {
		if err := audio.ClearCache(dir); err != nil {
			c.log.Printf("clear cache: %v", err)
		}
	}()
}

// HandleInterruption publishes a session interruption to listeners. The
// host platform shim invokes it when external audio takes over.
func (c *Coordinator) HandleInterruption(interrupted, shouldResume bool) {
	c.bus.Publish(api.AudioEvent{
		Type:    api.EventInterrupt,
		Payload: api.InterruptInfo{Interrupted: interrupted, ShouldResume: shouldResume},
	})
}

// Close stops every asset, releases the session and shuts the event bus.
// The coordinator rejects further operations afterward.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	engines := make([]audio.Engine, 0, len(c.assets))
	for _, eng := range c.assets {
		engines = append(engines, eng)
	}
	c.assets = make(map[string]audio.Engine)
	c.sources = make(map[string]Source)
	c.playOnce = make(map[string]playOnceInfo)
	c.metadata = make(map[string]api.NotificationMetadata)
	c.mu.Unlock()

	for _, eng := range engines {
		eng.Unload()
	}
	if err := c.session.Deactivate(); err != nil {
		c.log.Printf("deactivate audio session: %v", err)
	}
	c.bus.Close()
	return nil
}

// engine resolves an asset id to its engine under the read lock.
func (c *Coordinator) engine(op, assetID string) (audio.Engine, error) {
	if assetID == "" {
		return nil, bridgeerrors.NewBridgeError(op, "", bridgeerrors.ErrAssetIDMissing)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, bridgeerrors.ErrBridgeClosed
	}
	eng, ok := c.assets[assetID]
	if !ok {
		return nil, bridgeerrors.NewBridgeError(op, assetID, bridgeerrors.ErrAssetNotFound)
	}
	return eng, nil
}

func (c *Coordinator) isFadeMusic() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fadeMusic
}

// RequestActivate implements audio.SessionRequester: activation is
// skipped while external audio plays so the bridge never steals the
// output from a concurrent source.
func (c *Coordinator) RequestActivate() {
	if c.session.OtherAudioPlaying() {
		return
	}
	if err := c.session.Activate(); err != nil {
		c.log.Printf("activate audio session: %v", err)
	}
}

// maybeEndSession deactivates the session only when a scan of the whole
// registry finds nothing playing and no external audio is active.
func (c *Coordinator) maybeEndSession() {
	c.mu.RLock()
	engines := make([]audio.Engine, 0, len(c.assets))
	for _, eng := range c.assets {
		engines = append(engines, eng)
	}
	c.mu.RUnlock()

	for _, eng := range engines {
		if eng.IsPlaying() {
			return
		}
	}
	if c.session.OtherAudioPlaying() {
		return
	}
	if err := c.session.Deactivate(); err != nil {
		c.log.Printf("deactivate audio session: %v", err)
	}
}

// Complete implements audio.Notifier. Engines call it with no locks held.
func (c *Coordinator) Complete(assetID string) {
	c.bus.Publish(api.AudioEvent{Type: api.EventComplete, AssetID: assetID})
	c.updatePlaybackState(assetID, false)
	c.maybeEndSession()
}

// CurrentTime implements audio.Notifier.
func (c *Coordinator) CurrentTime(assetID string, seconds float64) {
	c.bus.Publish(api.AudioEvent{Type: api.EventCurrentTime, AssetID: assetID, Payload: seconds})
}

// publishNowPlaying pushes the asset's metadata to the system surface.
// Gated behind the showNotification flag; failures never fail playback.
func (c *Coordinator) publishNowPlaying(assetID string) {
	c.mu.Lock()
	if !c.showNotification {
		c.mu.Unlock()
		return
	}
	meta := c.metadata[assetID]
	src := c.sources[assetID]
	c.currentAsset = assetID
	c.mu.Unlock()

	if !src.Remote && src.Path != "" {
		meta = metadataFromFile(src.Path, meta)
	}
	if err := c.nowPlaying.Publish(meta); err != nil {
		c.log.Printf("publish now playing: %v", err)
	}
}

// updatePlaybackState mirrors play/pause onto the now-playing surface for
// the asset currently shown there.
func (c *Coordinator) updatePlaybackState(assetID string, playing bool) {
	c.mu.RLock()
	relevant := c.showNotification && c.currentAsset == assetID
	c.mu.RUnlock()
	if !relevant {
		return
	}
	if err := c.nowPlaying.UpdateState(playing); err != nil {
		c.log.Printf("update playback state: %v", err)
	}
}

func durationFromSeconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

// beepFactory is the production EngineFactory.
type beepFactory struct {
	session  audio.SessionRequester
	notify   audio.Notifier
	cacheDir string
	client   *http.Client
}

func (f *beepFactory) Local(id, path string, channels int, volume float64, fade time.Duration) (audio.Engine, error) {
	return audio.NewAsset(id, path, channels, volume, fade, f.session, f.notify)
}

func (f *beepFactory) Remote(id, url string, headers map[string]string, channels int, volume float64, fade time.Duration) (audio.Engine, error) {
	return audio.NewRemoteAsset(id, url, headers, channels, volume, fade, f.cacheDir, f.client, f.session, f.notify), nil
}
