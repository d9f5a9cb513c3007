// Package link implements the external-link subsystem: platform capability
// detection, URL classification, the confirmation gate, and the platform
// content router with its ordered fallback chain.
package link

import "strings"

// NativeBridge is an in-process bridge injected by a native Android shell.
// OpenCustomTab is the negotiated capability; implementations may also
// satisfy NativeURLOpener as a secondary method.
type NativeBridge interface {
	OpenCustomTab(url string) error
}

// NativeURLOpener is an optional fallback capability on a native bridge.
type NativeURLOpener interface {
	OpenURL(url string) error
}

// HybridBridge is an embedded browser-plugin shim (Cordova or Capacitor
// style) that can hand a URL to an external browsing context.
type HybridBridge interface {
	OpenExternal(url string) error
}

// Environment is the injected probe surface. Absent bridges are nil; the
// user-agent string classifies the host platform.
type Environment struct {
	UserAgent string
	Native    NativeBridge
	Hybrid1   HybridBridge // Cordova-style shim
	Hybrid2   HybridBridge // Capacitor-style shim
}

// Capabilities is a plain read-only snapshot of the environment, recomputed
// on demand and never cached.
type Capabilities struct {
	IsAndroid           bool `json:"isAndroid"`
	IsIOS               bool `json:"isIOS"`
	IsMobile            bool `json:"isMobile"`
	HasNativeBridge     bool `json:"hasNativeBridge"`
	HasHybridBridge1    bool `json:"hasHybridBridge1"`
	HasHybridBridge2    bool `json:"hasHybridBridge2"`
	CustomTabsAvailable bool `json:"customTabsAvailable"`
}

// DetectCapabilities classifies the host from the environment. Custom tabs
// are considered available when any bridge is present or when the host is
// Android, where the intent mechanism applies.
func DetectCapabilities(env Environment) Capabilities {
	ua := strings.ToLower(env.UserAgent)
	isAndroid := strings.Contains(ua, "android")
	isIOS := strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ipod")
	caps := Capabilities{
		IsAndroid:        isAndroid,
		IsIOS:            isIOS,
		IsMobile:         isAndroid || isIOS,
		HasNativeBridge:  env.Native != nil,
		HasHybridBridge1: env.Hybrid1 != nil,
		HasHybridBridge2: env.Hybrid2 != nil,
	}
	caps.CustomTabsAvailable = caps.HasNativeBridge || caps.HasHybridBridge1 || caps.HasHybridBridge2 || isAndroid
	return caps
}
