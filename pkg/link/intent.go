package link

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	// PrimaryBrowserPackage is tried first on the Android intent path.
	PrimaryBrowserPackage = "com.android.chrome"

	// ReferrerApp tags outbound intents with the host application.
	ReferrerApp = "android-app://com.tonygamingtz.app"

	// ToolbarColor is the custom-tab toolbar color as a signed int (red).
	ToolbarColor = "-65536"
)

// AlternativeBrowserPackages is the fixed priority list tried when the
// primary package appears not to have navigated.
var AlternativeBrowserPackages = []string{
	"com.chrome.beta",     // Chrome Beta
	"com.chrome.dev",      // Chrome Dev
	"com.microsoft.emmx",  // Edge
	"org.mozilla.firefox", // Firefox
	"com.opera.browser",   // Opera
	"com.brave.browser",   // Brave
	"com.UCMobile.intl",   // UC Browser
}

var schemePrefix = regexp.MustCompile(`^https?://`)

// CustomTabsIntent builds the full custom-tabs intent URI for a target URL
// and browser package, including referrer, fallback URL, and UI hint extras.
// The key/value/flag grammar is part of the platform contract and must not
// be reordered.
func CustomTabsIntent(target, pkg string) string {
	var b strings.Builder
	b.WriteString("intent://")
	b.WriteString(schemePrefix.ReplaceAllString(target, ""))
	b.WriteString("#Intent;")
	b.WriteString("scheme=https;")
	b.WriteString("package=" + pkg + ";")
	b.WriteString("action=android.intent.action.VIEW;")
	b.WriteString("category=android.intent.category.BROWSABLE;")
	b.WriteString("S.android.intent.extra.REFERRER=" + encodeComponent(ReferrerApp) + ";")
	b.WriteString("S.browser_fallback_url=" + encodeComponent(target) + ";")
	b.WriteString("B.android.intent.extra.CUSTOM_TABS_EXIT_ANIMATION_BUNDLE=true;")
	b.WriteString("B.android.intent.extra.CUSTOM_TABS_TOOLBAR_COLOR=" + ToolbarColor + ";")
	b.WriteString("end")
	return b.String()
}

// FallbackIntent builds the short intent URI used for alternative-browser
// attempts, carrying only the scheme, package, and fallback URL.
func FallbackIntent(target, pkg string) string {
	var b strings.Builder
	b.WriteString("intent://")
	b.WriteString(schemePrefix.ReplaceAllString(target, ""))
	b.WriteString("#Intent;")
	b.WriteString("scheme=https;")
	b.WriteString("package=" + pkg + ";")
	b.WriteString("S.browser_fallback_url=" + encodeComponent(target) + ";")
	b.WriteString("end")
	return b.String()
}

// encodeComponent escapes like a browser's encodeURIComponent: query
// escaping with literal %20 for spaces.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
