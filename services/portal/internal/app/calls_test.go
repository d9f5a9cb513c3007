package app

import (
	"context"
	"errors"
	"testing"

	"tonygamingtz/pkg/domain"
)

func signUp(t *testing.T, a *App, phone, name string) domain.Identity {
	t.Helper()
	id, _, _, err := a.SignUp(context.Background(), phone, name)
	if err != nil {
		t.Fatalf("SignUp(%s): %v", phone, err)
	}
	return id
}

func TestInitiateCallForcesAdminCallee(t *testing.T) {
	a := newTestApp(t)
	user := signUp(t, a, "255712000010", "Asha")

	call, err := a.InitiateCall(context.Background(), user, "user_255799999999", true)
	if err != nil {
		t.Fatalf("InitiateCall: %v", err)
	}
	if call.CalleeID != domain.AdminID || call.CalleeName != domain.AdminName {
		t.Fatalf("callee = %q/%q, non-admin callers must ring the administrator", call.CalleeID, call.CalleeName)
	}
	if call.Status != domain.CallRinging || !call.Video {
		t.Fatalf("call = %+v", call)
	}
}

func TestInitiateCallAdminRequiresExistingCallee(t *testing.T) {
	a := newTestApp(t)
	admin := signUp(t, a, "0612111793", "x")
	user := signUp(t, a, "255712000011", "Asha")

	if _, err := a.InitiateCall(context.Background(), admin, "", false); !errors.Is(err, ErrCalleeRequired) {
		t.Fatalf("empty callee err = %v", err)
	}
	if _, err := a.InitiateCall(context.Background(), admin, "user_nosuch", false); !errors.Is(err, ErrCallNotFound) {
		t.Fatalf("unknown callee err = %v", err)
	}
	call, err := a.InitiateCall(context.Background(), admin, user.ID, false)
	if err != nil {
		t.Fatalf("InitiateCall: %v", err)
	}
	if call.CalleeID != user.ID || call.CalleeName != "Asha" {
		t.Fatalf("callee = %q/%q", call.CalleeID, call.CalleeName)
	}
}

func TestCallAcceptEndLifecycle(t *testing.T) {
	a := newTestApp(t)
	admin := signUp(t, a, "0612111793", "x")
	user := signUp(t, a, "255712000012", "Asha")

	call, err := a.InitiateCall(context.Background(), user, "", false)
	if err != nil {
		t.Fatalf("InitiateCall: %v", err)
	}

	// Only the callee may accept.
	if _, err := a.AcceptCall(context.Background(), user, call.ID); !errors.Is(err, ErrNotCallParticipant) {
		t.Fatalf("caller accept err = %v", err)
	}
	accepted, err := a.AcceptCall(context.Background(), admin, call.ID)
	if err != nil {
		t.Fatalf("AcceptCall: %v", err)
	}
	if accepted.Status != domain.CallAccepted {
		t.Fatalf("status = %q", accepted.Status)
	}
	// Double accept is an invalid transition.
	if _, err := a.AcceptCall(context.Background(), admin, call.ID); !errors.Is(err, ErrCallTransition) {
		t.Fatalf("double accept err = %v", err)
	}

	ended, err := a.EndCall(context.Background(), user, call.ID, 42)
	if err != nil {
		t.Fatalf("EndCall: %v", err)
	}
	if ended.Status != domain.CallEnded || ended.Duration != 42 {
		t.Fatalf("ended = %+v", ended)
	}
}

func TestDeclineAndMissedRequireRinging(t *testing.T) {
	a := newTestApp(t)
	admin := signUp(t, a, "0612111793", "x")
	user := signUp(t, a, "255712000013", "Asha")

	call, err := a.InitiateCall(context.Background(), user, "", false)
	if err != nil {
		t.Fatalf("InitiateCall: %v", err)
	}
	declined, err := a.DeclineCall(context.Background(), admin, call.ID)
	if err != nil {
		t.Fatalf("DeclineCall: %v", err)
	}
	if declined.Status != domain.CallDeclined {
		t.Fatalf("status = %q", declined.Status)
	}
	if _, err := a.MarkCallMissed(context.Background(), user, call.ID); !errors.Is(err, ErrCallTransition) {
		t.Fatalf("missed after decline err = %v", err)
	}

	second, err := a.InitiateCall(context.Background(), user, "", false)
	if err != nil {
		t.Fatalf("InitiateCall: %v", err)
	}
	missed, err := a.MarkCallMissed(context.Background(), user, second.ID)
	if err != nil {
		t.Fatalf("MarkCallMissed: %v", err)
	}
	if missed.Status != domain.CallMissed {
		t.Fatalf("status = %q", missed.Status)
	}

	// A stranger is not a participant.
	other := signUp(t, a, "255712000014", "Neema")
	third, _ := a.InitiateCall(context.Background(), user, "", false)
	if _, err := a.EndCall(context.Background(), other, third.ID, 0); !errors.Is(err, ErrNotCallParticipant) {
		t.Fatalf("stranger end err = %v", err)
	}
	if _, err := a.EndCall(context.Background(), user, "nosuch", 0); !errors.Is(err, ErrCallNotFound) {
		t.Fatalf("unknown call err = %v", err)
	}
}

func TestCallHistoryScopedToViewer(t *testing.T) {
	a := newTestApp(t)
	user := signUp(t, a, "255712000015", "Asha")
	other := signUp(t, a, "255712000016", "Neema")

	if _, err := a.InitiateCall(context.Background(), user, "", false); err != nil {
		t.Fatalf("InitiateCall: %v", err)
	}
	if _, err := a.InitiateCall(context.Background(), other, "", false); err != nil {
		t.Fatalf("InitiateCall: %v", err)
	}

	mine, err := a.CallHistory(context.Background(), user, 0)
	if err != nil {
		t.Fatalf("CallHistory: %v", err)
	}
	if len(mine) != 1 || mine[0].CallerID != user.ID {
		t.Fatalf("history = %+v", mine)
	}
}
