package api

// Volume, rate and channel bounds shared by every engine implementation.
// Values outside these ranges are clamped, never rejected.
const (
	MinVolume float64 = 0.0
	MaxVolume float64 = 1.0
	MinRate   float64 = 0.25
	MaxRate   float64 = 4.0

	DefaultVolume   float64 = 1.0
	DefaultRate     float64 = 1.0
	DefaultChannels int     = 1
	MaxChannels     int     = 32
)

// NotificationMetadata describes a sound on the system now-playing surface.
// All fields are optional.
type NotificationMetadata struct {
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	ArtworkURL string `json:"artworkUrl"`
}

// Empty reports whether no metadata field is set.
func (m NotificationMetadata) Empty() bool {
	return m.Title == "" && m.Artist == "" && m.Album == "" && m.ArtworkURL == ""
}

// ConfigureOptions adjusts global bridge behavior. Nil pointers leave the
// current setting untouched.
type ConfigureOptions struct {
	// Fade makes play/stop degrade to their fading variants.
	Fade *bool `json:"fade"`
	// Focus requests exclusive audio focus (ducking other sources).
	Focus *bool `json:"focus"`
	// Background keeps the session active while the host is backgrounded.
	Background *bool `json:"background"`
	// IgnoreSilent plays through the hardware silent switch. Default true.
	IgnoreSilent *bool `json:"ignoreSilent"`
	// ShowNotification publishes now-playing metadata while assets play.
	ShowNotification *bool `json:"showNotification"`
}

// PreloadOptions registers a sound under a caller-supplied asset id.
type PreloadOptions struct {
	AssetID   string `json:"assetId"`
	AssetPath string `json:"assetPath"`
	// Volume in [0,1]; nil means DefaultVolume.
	Volume *float64 `json:"volume"`
	// Channels is the polyphony of the asset (1..MaxChannels); 0 means 1.
	Channels int `json:"channels"`
	// Delay is the default fade duration in seconds for fading variants.
	Delay float64 `json:"delay"`
	// IsURL forces AssetPath to be treated as a raw local path instead of a
	// bundle-relative one.
	IsURL    bool                 `json:"isUrl"`
	Headers  map[string]string    `json:"headers"`
	Metadata NotificationMetadata `json:"notificationMetadata"`
}

// PlayOnceOptions plays a transient sound with automatic lifecycle: the
// bridge generates an asset id, plays the sound and tears everything down
// once playback completes.
type PlayOnceOptions struct {
	AssetPath string   `json:"assetPath"`
	Volume    *float64 `json:"volume"`
	IsURL     bool     `json:"isUrl"`
	// AutoPlay starts playback immediately. Nil means true.
	AutoPlay *bool `json:"autoPlay"`
	// DeleteAfterPlay removes the backing file after playback, local file
	// sources only.
	DeleteAfterPlay bool                 `json:"deleteAfterPlay"`
	Headers         map[string]string    `json:"headers"`
	Metadata        NotificationMetadata `json:"notificationMetadata"`
}

// PlayOptions starts playback of a preloaded asset.
type PlayOptions struct {
	AssetID string  `json:"assetId"`
	Time    float64 `json:"time"`
	Delay   float64 `json:"delay"`
}

// EventType identifies bridge events delivered to host listeners.
type EventType int

const (
	// EventComplete fires once per completed or stopped playback cycle.
	EventComplete EventType = iota
	// EventCurrentTime fires ~10Hz while an asset is playing.
	EventCurrentTime
	// EventInterrupt reports audio session interruptions.
	EventInterrupt
)

// AudioEvent is the envelope published on the event bus.
type AudioEvent struct {
	Type    EventType
	AssetID string
	Payload any
}

// InterruptInfo is the payload of EventInterrupt.
type InterruptInfo struct {
	Interrupted  bool
	ShouldResume bool
}

// BoolOr resolves an optional bool against its default.
func BoolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// FloatOr resolves an optional float64 against its default.
func FloatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// ClampVolume constrains v to [MinVolume, MaxVolume].
func ClampVolume(v float64) float64 {
	return clamp(v, MinVolume, MaxVolume)
}

// ClampRate constrains r to [MinRate, MaxRate].
func ClampRate(r float64) float64 {
	return clamp(r, MinRate, MaxRate)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
