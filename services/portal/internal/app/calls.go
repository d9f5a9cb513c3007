package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tonygamingtz/internal/util"
	"tonygamingtz/pkg/domain"
)

// Calls are simulated: each action is a document write, there is no media
// signaling. Non-administrators may only ring the administrator.

// InitiateCall creates a ringing call record.
func (a *App) InitiateCall(ctx context.Context, caller domain.Identity, calleeID string, video bool) (domain.Call, error) {
	calleeID = strings.TrimSpace(calleeID)
	calleeName := ""
	if caller.IsAdmin() {
		if calleeID == "" {
			return domain.Call{}, ErrCalleeRequired
		}
		callee, ok, err := a.store.GetIdentity(ctx, calleeID)
		if err != nil {
			return domain.Call{}, fmt.Errorf("fetch callee: %w", err)
		}
		if !ok {
			return domain.Call{}, ErrCallNotFound
		}
		calleeName = callee.DisplayName
	} else {
		calleeID = domain.AdminID
		calleeName = domain.AdminName
	}
	now := time.Now().UTC()
	call := domain.Call{
		ID:         util.NewID(),
		CallerID:   caller.ID,
		CallerName: caller.DisplayName,
		CalleeID:   calleeID,
		CalleeName: calleeName,
		Video:      video,
		Status:     domain.CallRinging,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := a.store.SaveCall(ctx, call); err != nil {
		return domain.Call{}, fmt.Errorf("save call: %w", err)
	}
	return call, nil
}

// AcceptCall moves a ringing call to accepted. Only the callee may accept.
func (a *App) AcceptCall(ctx context.Context, viewer domain.Identity, callID string) (domain.Call, error) {
	return a.transitionCall(ctx, callID, domain.CallAccepted, 0, func(call domain.Call) error {
		if call.CalleeID != viewer.ID {
			return ErrNotCallParticipant
		}
		if call.Status != domain.CallRinging {
			return ErrCallTransition
		}
		return nil
	})
}

// DeclineCall moves a ringing call to declined. Only the callee may decline.
func (a *App) DeclineCall(ctx context.Context, viewer domain.Identity, callID string) (domain.Call, error) {
	return a.transitionCall(ctx, callID, domain.CallDeclined, 0, func(call domain.Call) error {
		if call.CalleeID != viewer.ID {
			return ErrNotCallParticipant
		}
		if call.Status != domain.CallRinging {
			return ErrCallTransition
		}
		return nil
	})
}

// EndCall finishes an accepted call and records its duration in seconds.
// Either participant may end.
func (a *App) EndCall(ctx context.Context, viewer domain.Identity, callID string, durationSeconds int64) (domain.Call, error) {
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	return a.transitionCall(ctx, callID, domain.CallEnded, durationSeconds, func(call domain.Call) error {
		if call.CallerID != viewer.ID && call.CalleeID != viewer.ID {
			return ErrNotCallParticipant
		}
		if call.Status != domain.CallAccepted && call.Status != domain.CallRinging {
			return ErrCallTransition
		}
		return nil
	})
}

// MarkCallMissed marks a still-ringing call as missed. Either participant
// (typically the caller giving up) may mark it.
func (a *App) MarkCallMissed(ctx context.Context, viewer domain.Identity, callID string) (domain.Call, error) {
	return a.transitionCall(ctx, callID, domain.CallMissed, 0, func(call domain.Call) error {
		if call.CallerID != viewer.ID && call.CalleeID != viewer.ID {
			return ErrNotCallParticipant
		}
		if call.Status != domain.CallRinging {
			return ErrCallTransition
		}
		return nil
	})
}

// CallHistory lists recent calls the viewer participated in, newest first.
func (a *App) CallHistory(ctx context.Context, viewer domain.Identity, limit int) ([]domain.Call, error) {
	if limit <= 0 {
		limit = 50
	}
	return a.store.ListCallsFor(ctx, viewer.ID, limit)
}

func (a *App) transitionCall(ctx context.Context, callID string, to domain.CallStatus, duration int64, check func(domain.Call) error) (domain.Call, error) {
	call, ok, err := a.store.GetCall(ctx, strings.TrimSpace(callID))
	if err != nil {
		return domain.Call{}, fmt.Errorf("fetch call: %w", err)
	}
	if !ok {
		return domain.Call{}, ErrCallNotFound
	}
	if err := check(call); err != nil {
		return domain.Call{}, err
	}
	call.Status = to
	if to == domain.CallEnded {
		call.Duration = duration
	}
	call.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveCall(ctx, call); err != nil {
		return domain.Call{}, fmt.Errorf("save call: %w", err)
	}
	return call, nil
}
