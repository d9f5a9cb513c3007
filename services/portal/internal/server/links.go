package server

import (
	"encoding/json"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"tonygamingtz/pkg/link"
)

// routePlan is the server-computed routing plan for a confirmed external
// URL. The client executes the platform mechanism; the fallback ordering
// and intent grammar are fixed server-side so every surface agrees.
type routePlan struct {
	URL            string              `json:"url"`
	Classification link.Classification `json:"classification"`
	Capabilities   link.Capabilities   `json:"capabilities"`
	Mechanism      link.Mechanism      `json:"mechanism"`
	WebviewURL     string              `json:"webviewUrl,omitempty"`
	IntentURIs     []string            `json:"intentUris,omitempty"`
	WindowFeatures string              `json:"windowFeatures,omitempty"`
}

func (s *Server) handleLinkClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	raw := strings.TrimSpace(r.URL.Query().Get("url"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	class := s.classifier.Classify(raw)
	writeJSON(w, http.StatusOK, map[string]any{
		"url":            raw,
		"classification": class,
		"internal":       class == link.Internal,
	})
}

func (s *Server) handleLinkRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		URL       string `json:"url"`
		UserAgent string `json:"userAgent"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	target := strings.TrimSpace(req.URL)
	if target == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	ua := req.UserAgent
	if ua == "" {
		ua = r.UserAgent()
	}
	writeJSON(w, http.StatusOK, s.planRoute(target, ua))
}

func (s *Server) planRoute(target, userAgent string) routePlan {
	class := s.classifier.Classify(target)
	plan := routePlan{
		URL:            target,
		Classification: class,
		Capabilities:   link.DetectCapabilities(link.Environment{UserAgent: userAgent}),
	}
	if class == link.Internal {
		plan.Mechanism = link.MechanismNone
		plan.WebviewURL = "/webview?url=" + url.QueryEscape(target)
		return plan
	}
	// Invalid is treated like External: confirm, then route.
	switch {
	case plan.Capabilities.IsAndroid:
		plan.Mechanism = link.MechanismAndroidIntent
		uris := make([]string, 0, 1+len(link.AlternativeBrowserPackages))
		uris = append(uris, link.CustomTabsIntent(target, link.PrimaryBrowserPackage))
		for _, pkg := range link.AlternativeBrowserPackages {
			uris = append(uris, link.FallbackIntent(target, pkg))
		}
		plan.IntentURIs = uris
	case plan.Capabilities.IsIOS:
		plan.Mechanism = link.MechanismIOSWindow
		plan.WindowFeatures = "location=yes,toolbar=yes"
	default:
		plan.Mechanism = link.MechanismPopup
		plan.WindowFeatures = "width=1024,height=768,toolbar=yes,location=yes,menubar=yes,scrollbars=yes,resizable=yes,status=yes"
	}
	return plan
}

// webviewPage embeds internal content with broad sandbox and device grants.
var webviewPage = template.Must(template.New("webview").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>TonyGamingTZ</title>
<style>html,body{margin:0;padding:0;height:100%;overflow:hidden}iframe{border:0;width:100%;height:100%}</style>
</head>
<body>
<iframe src="{{.}}"
  sandbox="allow-scripts allow-same-origin allow-forms allow-popups allow-popups-to-escape-sandbox allow-downloads allow-modals allow-top-navigation"
  allow="camera; microphone; geolocation; payment; fullscreen; autoplay; clipboard-read; clipboard-write"
  allowfullscreen></iframe>
</body>
</html>
`))

// handleWebview serves the embedded surface for internal URLs. An external
// target is redirected top-level directly, without the confirmation gate;
// the interstitial only guards in-app link taps.
func (s *Server) handleWebview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if s.classifier.Classify(target) != link.Internal {
		s.audit(r, "portal.webview.redirect", "success", "target_host", hostOf(target))
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	// The embedded surface needs framing; relax the API-wide lockdown CSP.
	w.Header().Set("Content-Security-Policy", "frame-ancestors 'self'")
	w.Header().Set("X-Frame-Options", "SAMEORIGIN")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := webviewPage.Execute(w, target); err != nil {
		slog.Warn("webview render failed", "err", err)
	}
}

func hostOf(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return raw
}
