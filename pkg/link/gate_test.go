package link

import "testing"

type recordingOpener struct {
	opened []string
}

func (r *recordingOpener) Open(url string) RouteResult {
	r.opened = append(r.opened, url)
	return RouteResult{Attempted: true, Mechanism: MechanismNativeBridge}
}

func TestGateInternalBypassesRouter(t *testing.T) {
	opener := &recordingOpener{}
	var embedded []string
	gate := NewGate(NewClassifier(""), opener, func(url string) { embedded = append(embedded, url) })

	if got := gate.Request("https://tonygamingtz.com/games"); got != Internal {
		t.Fatalf("classification = %v", got)
	}
	if len(opener.opened) != 0 {
		t.Fatalf("internal URL must never reach the router: %v", opener.opened)
	}
	if len(embedded) != 1 || embedded[0] != "https://tonygamingtz.com/games" {
		t.Fatalf("internal URL not embedded: %v", embedded)
	}
	if _, ok := gate.Pending(); ok {
		t.Fatal("internal URL must not arm the gate")
	}
}

func TestGateConfirmRoutesPending(t *testing.T) {
	opener := &recordingOpener{}
	gate := NewGate(NewClassifier(""), opener, nil)

	if got := gate.Request("https://example.com/a"); got != External {
		t.Fatalf("classification = %v", got)
	}
	pending, ok := gate.Pending()
	if !ok || pending != "https://example.com/a" {
		t.Fatalf("pending = %q, %v", pending, ok)
	}

	res, confirmed := gate.Confirm()
	if !confirmed || !res.Attempted {
		t.Fatalf("confirm = %+v, %v", res, confirmed)
	}
	if len(opener.opened) != 1 || opener.opened[0] != "https://example.com/a" {
		t.Fatalf("router calls: %v", opener.opened)
	}
	if _, ok := gate.Pending(); ok {
		t.Fatal("gate must return to idle after confirm")
	}
}

func TestGateLastRequestWins(t *testing.T) {
	opener := &recordingOpener{}
	gate := NewGate(NewClassifier(""), opener, nil)

	gate.Request("https://example.com/a")
	gate.Request("https://example.org/b")

	res, confirmed := gate.Confirm()
	if !confirmed || !res.Attempted {
		t.Fatalf("confirm = %+v, %v", res, confirmed)
	}
	if len(opener.opened) != 1 || opener.opened[0] != "https://example.org/b" {
		t.Fatalf("expected only the replacement URL to be routed, got %v", opener.opened)
	}
}

func TestGateCancelHasNoSideEffect(t *testing.T) {
	opener := &recordingOpener{}
	gate := NewGate(NewClassifier(""), opener, nil)

	gate.Request("https://example.com/a")
	gate.Cancel()

	if _, ok := gate.Pending(); ok {
		t.Fatal("cancel must clear the pending URL")
	}
	if res, confirmed := gate.Confirm(); confirmed || res.Attempted {
		t.Fatalf("confirm after cancel must be a no-op, got %+v", res)
	}
	if len(opener.opened) != 0 {
		t.Fatalf("router calls after cancel: %v", opener.opened)
	}
}

func TestGateInvalidURLStillGated(t *testing.T) {
	opener := &recordingOpener{}
	gate := NewGate(NewClassifier(""), opener, nil)

	if got := gate.Request("::not a url::"); got != Invalid {
		t.Fatalf("classification = %v", got)
	}
	if _, ok := gate.Pending(); !ok {
		t.Fatal("invalid URLs go through the confirmation path")
	}
}
