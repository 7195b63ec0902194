package capture

import (
	"fmt"
	"regexp"
	"time"
)

// ConsentMode selects which interstitial handler set is engaged.
type ConsentMode string

// ConsentAction selects the action an interstitial handler should take.
type ConsentAction string

const (
	ConsentAuto    ConsentMode = "auto"
	ConsentOff     ConsentMode = "off"
	ConsentYahoo   ConsentMode = "yahoo"
	ConsentGeneric ConsentMode = "generic"

	ActionReject ConsentAction = "reject"
	ActionAccept ConsentAction = "accept"
)

// Options is the configuration surface recognized by the core, per
// spec.md §6. The embedding caller is responsible for populating it —
// CLI parsing and file loading are explicitly out of the core's scope.
type Options struct {
	URL     string `json:"url"`
	OutDir  string `json:"outDir"`

	MonitorMs int64 `json:"monitorMs"`
	TimeoutMs int64 `json:"timeoutMs"`

	IncludeRegex string `json:"includeRegex,omitempty"`
	ExcludeRegex string `json:"excludeRegex,omitempty"`

	MaxBodyBytes    int64 `json:"maxBodyBytes"`
	InlineBodyBytes int64 `json:"inlineBodyBytes"`

	MaxCaptures           int `json:"maxCaptures"`
	MaxConcurrentCaptures int `json:"maxConcurrentCaptures"`

	CaptureAllJSON bool `json:"captureAllJson"`

	SaveHar bool `json:"saveHar,omitempty"`
	Trace   bool `json:"trace,omitempty"`

	UserAgent string `json:"userAgent,omitempty"`

	ConsentMode     ConsentMode   `json:"consentMode,omitempty"`
	ConsentAction   ConsentAction `json:"consentAction,omitempty"`
	ConsentHandlers []string      `json:"consentHandlers,omitempty"`

	StorageStatePath     string `json:"storageState,omitempty"`
	SaveStorageState     bool   `json:"saveStorageState,omitempty"`
	SaveSessionPath      string `json:"saveSession,omitempty"`

	DisableSummary bool `json:"disableSummary,omitempty"`

	// Watch disables the global hard deadline (spec.md §4.8: "The deadline
	// is not armed in watch mode").
	Watch bool `json:"watch,omitempty"`

	includeRe *regexp.Regexp
	excludeRe *regexp.Regexp
}

// ConfigError is a configuration error raised before LAUNCH; no run
// directory is created for these.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "capture: configuration error: " + e.Reason }

func (o *Options) defaults() {
	if o.MonitorMs <= 0 {
		o.MonitorMs = 15_000
	}
	if o.TimeoutMs <= 0 {
		o.TimeoutMs = 60_000
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 1 << 20 // 1 MiB
	}
	if o.InlineBodyBytes <= 0 {
		o.InlineBodyBytes = 16 << 10 // 16 KiB
	}
	if o.MaxConcurrentCaptures <= 0 {
		o.MaxConcurrentCaptures = 6
	}
	if o.ConsentMode == "" {
		o.ConsentMode = ConsentAuto
	}
	if o.ConsentAction == "" {
		o.ConsentAction = ActionReject
	}
}

// Validate applies defaults and checks the invariants from spec.md §7.
// Returns a *ConfigError on any violation. Exported so embedding callers can
// fail fast before LAUNCH, per spec.md §7's "raised before LAUNCH" rule.
func (o *Options) Validate() error {
	o.defaults()

	if o.URL == "" {
		return &ConfigError{Reason: "url must not be empty"}
	}
	if o.OutDir == "" {
		return &ConfigError{Reason: "outDir must not be empty"}
	}
	if !o.Watch && o.MonitorMs >= o.TimeoutMs {
		return &ConfigError{Reason: fmt.Sprintf("monitorMs (%d) must be less than timeoutMs (%d)", o.MonitorMs, o.TimeoutMs)}
	}
	if o.InlineBodyBytes > o.MaxBodyBytes {
		return &ConfigError{Reason: fmt.Sprintf("inlineBodyBytes (%d) must not exceed maxBodyBytes (%d)", o.InlineBodyBytes, o.MaxBodyBytes)}
	}
	if o.MaxConcurrentCaptures < 1 {
		return &ConfigError{Reason: "maxConcurrentCaptures must be >= 1"}
	}
	if o.MaxCaptures < 0 {
		return &ConfigError{Reason: "maxCaptures must be >= 0"}
	}

	if o.IncludeRegex != "" {
		re, err := regexp.Compile(o.IncludeRegex)
		if err != nil {
			return &ConfigError{Reason: fmt.Sprintf("invalid includeRegex: %v", err)}
		}
		o.includeRe = re
	}
	if o.ExcludeRegex != "" {
		re, err := regexp.Compile(o.ExcludeRegex)
		if err != nil {
			return &ConfigError{Reason: fmt.Sprintf("invalid excludeRegex: %v", err)}
		}
		o.excludeRe = re
	}

	return nil
}

// CompiledIncludeRegex returns the compiled includeRegex, or nil if unset.
// Populated by Validate; exported so the orchestrator can hand it to
// internal/classify.
func (o *Options) CompiledIncludeRegex() *regexp.Regexp { return o.includeRe }

// CompiledExcludeRegex returns the compiled excludeRegex, or nil if unset.
func (o *Options) CompiledExcludeRegex() *regexp.Regexp { return o.excludeRe }

// MonitorDuration is MonitorMs as a time.Duration.
func (o *Options) MonitorDuration() time.Duration { return time.Duration(o.MonitorMs) * time.Millisecond }

// TimeoutDuration is TimeoutMs as a time.Duration.
func (o *Options) TimeoutDuration() time.Duration { return time.Duration(o.TimeoutMs) * time.Millisecond }

// DrainDeadline is max(10s, timeoutMs - elapsed), per spec.md §4.8.
func (o *Options) DrainDeadline(elapsed time.Duration) time.Duration {
	remain := o.TimeoutDuration() - elapsed
	if remain < 10*time.Second {
		return 10 * time.Second
	}
	return remain
}
