package link

import "sync"

// Opener routes a confirmed external URL.
type Opener interface {
	Open(url string) RouteResult
}

// Gate is the user-facing interstitial in front of the content router.
// Internal URLs bypass it entirely; External and Invalid URLs wait for an
// explicit confirmation. At most one URL is pending at a time: a new request
// while pending replaces the old one, last request wins, no queue.
type Gate struct {
	mu      sync.Mutex
	pending string
	armed   bool

	classifier *Classifier
	opener     Opener
	embed      func(url string)
}

// NewGate wires the gate. embed receives internal URLs for the
// embedded-frame path and may be nil.
func NewGate(classifier *Classifier, opener Opener, embed func(url string)) *Gate {
	return &Gate{classifier: classifier, opener: opener, embed: embed}
}

// Request intercepts a navigation. It returns the classification that
// decided the path taken.
func (g *Gate) Request(url string) Classification {
	class := g.classifier.Classify(url)
	if class == Internal {
		if g.embed != nil {
			g.embed(url)
		}
		return class
	}
	g.mu.Lock()
	g.pending = url
	g.armed = true
	g.mu.Unlock()
	return class
}

// Pending returns the URL awaiting confirmation, if any.
func (g *Gate) Pending() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending, g.armed
}

// Confirm hands the pending URL to the router and returns to idle. The
// second return is false when nothing was pending.
func (g *Gate) Confirm() (RouteResult, bool) {
	g.mu.Lock()
	if !g.armed {
		g.mu.Unlock()
		return RouteResult{Mechanism: MechanismNone}, false
	}
	url := g.pending
	g.pending = ""
	g.armed = false
	g.mu.Unlock()
	return g.opener.Open(url), true
}

// Cancel discards the pending URL with no side effect. No resource was
// acquired, so there is nothing to clean up; late async work from before the
// cancel must not re-arm the gate.
func (g *Gate) Cancel() {
	g.mu.Lock()
	g.pending = ""
	g.armed = false
	g.mu.Unlock()
}
