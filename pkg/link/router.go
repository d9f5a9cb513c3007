package link

import (
	"fmt"
	"log/slog"
	"time"
)

// Mechanism names the platform action a routing attempt took.
type Mechanism string

const (
	MechanismNone          Mechanism = "none"
	MechanismNativeBridge  Mechanism = "native-bridge"
	MechanismHybridBridge  Mechanism = "hybrid-bridge"
	MechanismAndroidIntent Mechanism = "android-intent"
	MechanismIOSWindow     Mechanism = "ios-window"
	MechanismPopup         Mechanism = "popup"
	MechanismNewTab        Mechanism = "new-tab"
	MechanismLocation      Mechanism = "location"
)

// RouteResult is the tagged outcome of an open attempt. Attempted means some
// platform action was issued, not that the content rendered.
// ConfirmedDelivered is reserved for a future delivery check (for example
// page-visibility detection) and is always false today.
type RouteResult struct {
	Attempted          bool      `json:"attempted"`
	ConfirmedDelivered bool      `json:"confirmedDelivered"`
	Mechanism          Mechanism `json:"mechanism"`
}

// NavigationSurface is the platform port the router drives. Every method is
// best effort; errors advance the router to the next fallback tier.
type NavigationSurface interface {
	// InjectHiddenTrigger issues an invisible short-lived navigation (a
	// hidden frame) so the current app state is not torn down. The returned
	// func removes the trigger.
	InjectHiddenTrigger(uri string) (remove func(), err error)
	// OpenWindow opens a new browsing context. opened=false means the
	// platform refused (popup blocked) without an error.
	OpenWindow(url, name, features string) (opened bool, err error)
	// ReplaceLocation abandons the current page for the URL. This tears down
	// in-memory state; persisted storage restores it on return.
	ReplaceLocation(url string) error
	// DidNavigateAway reports whether the page appears to have left since
	// the last trigger was issued.
	DidNavigateAway() bool
	// Screen returns the display size used for popup placement.
	Screen() (width, height int)
}

const (
	triggerCleanupDelay  = time.Second
	fallbackCheckDelay   = 2 * time.Second
	altTriggerCleanDelay = 500 * time.Millisecond
)

// Router opens external URLs through an ordered sequence of platform
// mechanisms, falling back until one is attempted or all are exhausted. No
// tier raises a hard error to the caller and no tier blocks waiting for the
// external app to launch.
type Router struct {
	env      Environment
	surface  NavigationSurface
	schedule func(time.Duration, func())
}

// RouterOption customizes router construction.
type RouterOption func(*Router)

// WithScheduler replaces the timer implementation, used by tests to run
// delayed fallback work deterministically.
func WithScheduler(schedule func(time.Duration, func())) RouterOption {
	return func(r *Router) {
		r.schedule = schedule
	}
}

// NewRouter wires a router over the injected environment and surface.
func NewRouter(env Environment, surface NavigationSurface, opts ...RouterOption) *Router {
	r := &Router{
		env:     env,
		surface: surface,
		schedule: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open routes an external URL. Capabilities are recomputed per call; the
// fallback order is fixed: native bridge, hybrid bridges, Android intent,
// iOS window, desktop popup ladder.
func (r *Router) Open(target string) RouteResult {
	caps := DetectCapabilities(r.env)

	if r.env.Native != nil {
		err := r.env.Native.OpenCustomTab(target)
		if err == nil {
			return attempted(MechanismNativeBridge)
		}
		slog.Debug("native custom tab failed", "err", err)
		if opener, ok := r.env.Native.(NativeURLOpener); ok {
			if err := opener.OpenURL(target); err == nil {
				return attempted(MechanismNativeBridge)
			}
		}
	}

	for _, bridge := range []HybridBridge{r.env.Hybrid1, r.env.Hybrid2} {
		if bridge == nil {
			continue
		}
		err := bridge.OpenExternal(target)
		if err == nil {
			return attempted(MechanismHybridBridge)
		}
		slog.Debug("hybrid bridge open failed", "err", err)
	}

	if caps.IsAndroid {
		return r.openAndroid(target)
	}
	if caps.IsIOS {
		return r.openIOS(target)
	}
	return r.openDesktop(target)
}

// openAndroid issues the primary-package custom-tabs intent through a hidden
// trigger, schedules its cleanup, and schedules a later check that falls back
// to alternative browser packages when the page never navigated. Success is
// time-based guesswork, never event-based confirmation.
func (r *Router) openAndroid(target string) RouteResult {
	uri := CustomTabsIntent(target, PrimaryBrowserPackage)
	remove, err := r.surface.InjectHiddenTrigger(uri)
	if err != nil {
		slog.Debug("primary intent trigger failed", "err", err)
		return r.tryAlternativeBrowsers(target)
	}
	r.schedule(triggerCleanupDelay, remove)
	r.schedule(fallbackCheckDelay, func() {
		if !r.surface.DidNavigateAway() {
			r.tryAlternativeBrowsers(target)
		}
	})
	return attempted(MechanismAndroidIntent)
}

// tryAlternativeBrowsers walks the fixed package priority list and returns
// optimistically after the first trigger it manages to issue. There is no
// per-package success detection.
func (r *Router) tryAlternativeBrowsers(target string) RouteResult {
	for _, pkg := range AlternativeBrowserPackages {
		remove, err := r.surface.InjectHiddenTrigger(FallbackIntent(target, pkg))
		if err != nil {
			continue
		}
		r.schedule(altTriggerCleanDelay, remove)
		return attempted(MechanismAndroidIntent)
	}
	return r.lastResort(target)
}

func (r *Router) openIOS(target string) RouteResult {
	opened, err := r.surface.OpenWindow(
		target,
		"_blank",
		"location=yes,toolbar=yes,scrollbars=yes,resizable=no,width=device-width,height=device-height",
	)
	if err != nil {
		// Abandoning in-memory state is acceptable here: returning to the
		// host app restores it from persisted storage.
		if locErr := r.surface.ReplaceLocation(target); locErr == nil {
			return attempted(MechanismLocation)
		}
		return RouteResult{Mechanism: MechanismNone}
	}
	if opened {
		return attempted(MechanismIOSWindow)
	}
	return r.lastResort(target)
}

func (r *Router) openDesktop(target string) RouteResult {
	width, height := r.surface.Screen()
	features := fmt.Sprintf(
		"location=yes,toolbar=yes,menubar=no,scrollbars=yes,resizable=yes,status=yes,width=1024,height=768,left=%d,top=%d",
		width/2-512,
		height/2-384,
	)
	opened, err := r.surface.OpenWindow(target, "TonyGamingTZ_Browser", features)
	if err == nil && opened {
		return attempted(MechanismPopup)
	}
	return r.lastResort(target)
}

// lastResort tries a minimal isolated tab, then direct in-place navigation.
func (r *Router) lastResort(target string) RouteResult {
	opened, err := r.surface.OpenWindow(target, "_blank", "noopener,noreferrer,location=yes,toolbar=yes")
	if err == nil && opened {
		return attempted(MechanismNewTab)
	}
	slog.Warn("all browser opening mechanisms failed, using direct navigation", "url", target)
	if err := r.surface.ReplaceLocation(target); err != nil {
		return RouteResult{Mechanism: MechanismNone}
	}
	return attempted(MechanismLocation)
}

func attempted(m Mechanism) RouteResult {
	return RouteResult{Attempted: true, Mechanism: m}
}
