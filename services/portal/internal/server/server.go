// Package server exposes the portal HTTP surface: phone auth, the message
// relay, notifications, simulated calls, and the external-link subsystem.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tonygamingtz/internal/ratelimit"
	"tonygamingtz/internal/servicetoken"
	"tonygamingtz/internal/util"
	"tonygamingtz/pkg/domain"
	"tonygamingtz/pkg/link"
	"tonygamingtz/pkg/notify"
	"tonygamingtz/pkg/relay"
	"tonygamingtz/pkg/sms"
	"tonygamingtz/pkg/store"
	"tonygamingtz/services/portal/internal/app"
	"tonygamingtz/services/portal/internal/security"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App        *app.App
	Relay      *relay.Relay
	Hub        *relay.Hub
	Presence   *relay.Presence
	Dispatcher *notify.Dispatcher
	Feed       *notify.InAppFeed
	Store      store.Store
	SMS        *sms.Service
	Sender     sms.Sender

	// WebhookVerifier, when set, requires a signed service token on the
	// inbound notification webhook.
	WebhookVerifier *servicetoken.Verifier

	ContentDomain string
	RedisAddr     string
	RedisPassword string

	// TrustedProxies lists proxy CIDRs whose forwarded headers are honored
	// when resolving the client IP. Empty means trust none.
	TrustedProxies []string

	SignupRateLimitPerMinute int
	LoginRateLimitPerMinute  int
	OTPRateLimitPerMinute    int
}

// Server exposes HTTP endpoints for the portal.
type Server struct {
	app        *app.App
	relay      *relay.Relay
	hub        *relay.Hub
	presence   *relay.Presence
	dispatcher *notify.Dispatcher
	feed       *notify.InAppFeed
	store      store.Store
	sms        *sms.Service
	sender     sms.Sender
	classifier *link.Classifier
	mux        *http.ServeMux

	otp             *otpStore
	webhookVerifier *servicetoken.Verifier
	alerter         *security.AuditAlerter
	trustedProxies  *util.TrustedProxies
	signupLimiter   *ratelimit.FixedWindowLimiter
	loginLimiter    *ratelimit.FixedWindowLimiter
	otpLimiter      *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	signupLimit := cfg.SignupRateLimitPerMinute
	if signupLimit <= 0 {
		signupLimit = 5
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	otpLimit := cfg.OTPRateLimitPerMinute
	if otpLimit <= 0 {
		otpLimit = 3
	}
	rateWindow := time.Minute
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		prefix := "tgtz:portal:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, rateWindow)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	signupLimiter, err := newLimiter("signup", signupLimit)
	if err != nil {
		return nil, err
	}
	loginLimiter, err := newLimiter("login", loginLimit)
	if err != nil {
		return nil, err
	}
	otpLimiter, err := newLimiter("otp", otpLimit)
	if err != nil {
		return nil, err
	}
	otp, err := newOTPStore(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, fmt.Errorf("init otp store: %w", err)
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	sender := cfg.Sender
	if sender == nil {
		sender = sms.NoopSender{}
	}
	s := &Server{
		app:             cfg.App,
		relay:           cfg.Relay,
		hub:             cfg.Hub,
		presence:        cfg.Presence,
		dispatcher:      cfg.Dispatcher,
		feed:            cfg.Feed,
		store:           cfg.Store,
		sms:             cfg.SMS,
		sender:          sender,
		classifier:      link.NewClassifier(cfg.ContentDomain),
		mux:             http.NewServeMux(),
		otp:             otp,
		webhookVerifier: cfg.WebhookVerifier,
		alerter:         security.NewAuditAlerter(cfg.RedisAddr, cfg.RedisPassword, ""),
		trustedProxies:  trusted,
		signupLimiter:   signupLimiter,
		loginLimiter:    loginLimiter,
		otpLimiter:      otpLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("portal", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/guest", s.handleGuest)
	s.mux.HandleFunc("/api/auth/refresh", s.handleRefresh)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.HandleFunc("/api/auth/otp/send", s.handleOTPSend)
	s.mux.Handle("/api/auth/me", s.authenticated(s.handleMe))

	// messages
	s.mux.Handle("/api/messages", s.authenticated(s.handleMessages))
	s.mux.Handle("/api/messages/file", s.authenticated(s.handleMessageFile))
	s.mux.HandleFunc("/api/messages/ws", s.handleWS)
	s.mux.Handle("/api/messages/", s.authenticated(s.handleMessageByPath))

	// presence
	s.mux.Handle("/api/presence", s.authenticated(s.handlePresence))
	s.mux.Handle("/api/presence/typing", s.authenticated(s.handleTyping))

	// notifications
	s.mux.Handle("/api/notifications", s.authenticated(s.handleNotifications))
	s.mux.HandleFunc("/api/notifications/incoming", s.handleIncomingNotification)
	s.mux.Handle("/api/notifications/", s.authenticated(s.handleNotificationByPath))

	// calls
	s.mux.Handle("/api/calls", s.authenticated(s.handleCalls))
	s.mux.Handle("/api/calls/", s.authenticated(s.handleCallByPath))

	// link subsystem
	s.mux.HandleFunc("/api/link/classify", s.handleLinkClassify)
	s.mux.HandleFunc("/api/link/route", s.handleLinkRoute)
	s.mux.HandleFunc("/webview", s.handleWebview)

	// admin
	s.mux.Handle("/api/admin/conversations", s.adminOnly(s.handleAdminConversations))
	s.mux.Handle("/api/admin/identities", s.adminOnly(s.handleAdminIdentities))
	s.mux.Handle("/api/admin/notifications", s.adminOnly(s.handleAdminCreateNotification))
	s.mux.Handle("/api/admin/presence/", s.adminOnly(s.handleAdminPresence))
	s.mux.Handle("/api/admin/sms", s.adminOnly(s.handleAdminSMS))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.Identity)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		viewer, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, viewer)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, viewer domain.Identity) {
		if !viewer.IsAdmin() {
			s.audit(r, "portal.admin.authorize", "fail", "identity_id", viewer.ID)
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r, viewer)
	})
}

func (s *Server) authorize(r *http.Request) (domain.Identity, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return domain.Identity{}, false
	}
	return s.app.IdentityFromToken(r.Context(), token)
}

// auth handlers

type otpCredentials struct {
	ChallengeID string `json:"challengeId"`
	Code        string `json:"code"`
}

type signupRequest struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
	otpCredentials
}

type loginRequest struct {
	Phone string `json:"phone"`
	otpCredentials
}

type tokenResponse struct {
	Token        string          `json:"token"`
	RefreshToken string          `json:"refreshToken"`
	Identity     domain.Identity `json:"identity"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allow(s.signupLimiter, r) {
		s.audit(r, "portal.signup", "rate_limited")
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	var req signupRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.otp.Verify(req.ChallengeID, req.Phone, otpPurposeSignup, req.Code); err != nil {
		s.audit(r, "portal.signup", "fail", "reason", "otp", "phone", maskPhone(req.Phone))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, token, refreshToken, err := s.app.SignUp(r.Context(), req.Phone, req.Name)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, app.ErrAlreadyRegistered) {
			status = http.StatusConflict
		}
		s.audit(r, "portal.signup", "fail", "reason", err.Error(), "phone", maskPhone(req.Phone))
		writeError(w, status, err.Error())
		return
	}
	s.audit(r, "portal.signup", "success", "identity_id", id.ID)
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, RefreshToken: refreshToken, Identity: id})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allow(s.loginLimiter, r) {
		s.audit(r, "portal.login", "rate_limited")
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.otp.Verify(req.ChallengeID, req.Phone, otpPurposeLogin, req.Code); err != nil {
		s.audit(r, "portal.login", "fail", "reason", "otp", "phone", maskPhone(req.Phone))
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, token, refreshToken, err := s.app.Login(r.Context(), req.Phone)
	if err != nil {
		s.audit(r, "portal.login", "fail", "reason", err.Error(), "phone", maskPhone(req.Phone))
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	s.audit(r, "portal.login", "success", "identity_id", id.ID)
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, RefreshToken: refreshToken, Identity: id})
}

func (s *Server) handleGuest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allow(s.loginLimiter, r) {
		s.audit(r, "portal.guest", "rate_limited")
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	id, token, refreshToken, err := s.app.Guest(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.audit(r, "portal.guest", "success", "identity_id", id.ID)
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, RefreshToken: refreshToken, Identity: id})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	id, token, refreshToken, err := s.app.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, app.ErrRefreshTokenRequired) {
			status = http.StatusBadRequest
		}
		s.audit(r, "portal.refresh", "fail", "reason", err.Error())
		writeError(w, status, err.Error())
		return
	}
	s.audit(r, "portal.refresh", "success", "identity_id", id.ID)
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, RefreshToken: refreshToken, Identity: id})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req)
	if err := s.app.Logout(token, req.RefreshToken); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.audit(r, "portal.logout", "success")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, viewer domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	s.app.Touch(r.Context(), viewer.ID)
	writeJSON(w, http.StatusOK, viewer)
}

func (s *Server) handleOTPSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allow(s.otpLimiter, r) {
		s.audit(r, "portal.otp.send", "rate_limited")
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	var req struct {
		Phone   string `json:"phone"`
		Purpose string `json:"purpose"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	challengeID, code, expiresIn, resendIn, err := s.otp.CreateChallenge(req.Phone, req.Purpose)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errOTPSendRateLimited) {
			status = http.StatusTooManyRequests
		}
		s.audit(r, "portal.otp.send", "fail", "reason", err.Error(), "phone", maskPhone(req.Phone))
		writeError(w, status, err.Error())
		return
	}
	if err := s.sender.SendCode(r.Context(), req.Phone, code); err != nil {
		slog.Error("otp code delivery failed", "err", err, "phone", maskPhone(req.Phone))
		s.logOTPSMS(r, req.Phone, domain.SMSFailed, err.Error())
		writeError(w, http.StatusBadGateway, "failed to send verification code")
		return
	}
	s.logOTPSMS(r, req.Phone, domain.SMSSent, "")
	s.audit(r, "portal.otp.send", "success", "phone", maskPhone(req.Phone))
	writeJSON(w, http.StatusOK, map[string]any{
		"challengeId":      challengeID,
		"expiresInSeconds": expiresIn,
		"resendInSeconds":  resendIn,
	})
}

// logOTPSMS records the verification send in the SMS log. The code itself is
// never persisted.
func (s *Server) logOTPSMS(r *http.Request, phone string, status domain.SMSStatus, errMsg string) {
	now := time.Now().UTC()
	_ = s.store.SaveSMS(r.Context(), domain.SMSRecord{
		ID:        util.NewID(),
		SenderID:  "system",
		ToPhone:   phone,
		Body:      "verification code",
		Status:    status,
		Error:     errMsg,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// admin handlers

func (s *Server) handleAdminIdentities(w http.ResponseWriter, r *http.Request, _ domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	ids, err := s.app.ListIdentities(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": ids,
		"count": len(ids),
	})
}

// helpers

func (s *Server) allow(limiter *ratelimit.FixedWindowLimiter, r *http.Request) bool {
	key := r.URL.Path + "|" + s.clientIP(r)
	return limiter.Allow(key)
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	ip := s.clientIP(r)
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", ip,
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
	s.observeAlert(event, outcome, ip)
}

// observeAlert feeds failed events into the threshold alerter. The first
// crossing of a threshold raises a log alert and pings the administrator.
func (s *Server) observeAlert(event, outcome, ip string) {
	result, err := s.alerter.Observe(event, outcome, ip)
	if err != nil {
		slog.Warn("security alert evaluation failed", "err", err, "event", event)
		return
	}
	if !result.Triggered || result.Count != result.Threshold {
		return
	}
	slog.Error("security_alert",
		"event", event,
		"outcome", outcome,
		"ip", ip,
		"count", result.Count,
		"threshold", result.Threshold,
		"window", result.Window.String())
	if s.dispatcher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = s.dispatcher.Dispatch(ctx, domain.AdminID, domain.Notification{
		Title: "Security alert",
		Body:  fmt.Sprintf("%s %s from %s hit %d in %s", event, outcome, ip, result.Count, result.Window),
		Payload: map[string]string{
			"event": event,
			"ip":    ip,
		},
	})
}

func (s *Server) clientIP(r *http.Request) string {
	return util.ClientIP(r, s.trustedProxies)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
