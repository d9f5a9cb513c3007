package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"tonygamingtz/pkg/domain"
	"tonygamingtz/pkg/link"
	"tonygamingtz/pkg/notify"
	"tonygamingtz/pkg/queue"
	"tonygamingtz/pkg/relay"
	"tonygamingtz/pkg/sms"
	"tonygamingtz/pkg/store"
	"tonygamingtz/services/portal/internal/app"
)

// captureSender records delivered codes so tests can complete the OTP flow.
type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
	sent  []string
}

func (c *captureSender) SendCode(_ context.Context, phone, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.codes == nil {
		c.codes = make(map[string]string)
	}
	c.codes[phone] = code
	return nil
}

func (c *captureSender) Send(_ context.Context, phone, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, phone)
	return nil
}

func (c *captureSender) codeFor(phone string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[phone]
}

type stubSMSQueue struct{}

func (stubSMSQueue) Enqueue(_ context.Context, smsID string) (queue.JobStatus, error) {
	return queue.JobStatus{ID: "job-" + smsID, SMSID: smsID, Status: queue.StatusQueued}, nil
}

type testEnv struct {
	srv    *httptest.Server
	app    *app.App
	store  *store.MemoryStore
	sender *captureSender
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	st := store.NewMemoryStore()
	sessions, err := store.NewJWTSessionStore("0123456789abcdef0123456789abcdef", time.Hour, store.NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("init sessions: %v", err)
	}
	a, err := app.New(app.Config{
		Store:         st,
		Sessions:      sessions,
		RefreshTokens: store.NewMemoryRefreshTokenStore(),
	})
	if err != nil {
		t.Fatalf("init app: %v", err)
	}
	feed := notify.NewInAppFeed()
	dispatcher := notify.NewDispatcher(notify.NewStoreChannel(st), feed)
	hub := relay.NewHub(nil, nil)
	rel := relay.New(st, relay.WithPublisher(hub))
	sender := &captureSender{}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cfg := Config{
		App:           a,
		Relay:         rel,
		Hub:           hub,
		Presence:      relay.NewPresence(rdb),
		Dispatcher:    dispatcher,
		Feed:          feed,
		Store:         st,
		SMS:           sms.NewService(st, stubSMSQueue{}, sender),
		Sender:        sender,
		ContentDomain: "tonygamingtz.com",
		RedisAddr:     mr.Addr(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("init server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, app: a, store: st, sender: sender}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

// signUpDirect mints a session without the HTTP OTP flow.
func (e *testEnv) signUpDirect(t *testing.T, phone, name string) (domain.Identity, string) {
	t.Helper()
	id, token, _, err := e.app.SignUp(context.Background(), phone, name)
	if err != nil {
		t.Fatalf("SignUp(%s): %v", phone, err)
	}
	return id, token
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, nil)
	resp := e.do(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody[map[string]string](t, resp)
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestSignupFlowWithOTP(t *testing.T) {
	e := newTestEnv(t, nil)
	phone := "255712000020"

	resp := e.do(t, http.MethodPost, "/api/auth/otp/send", "", map[string]string{
		"phone": phone, "purpose": "signup",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("otp send status = %d", resp.StatusCode)
	}
	otp := decodeBody[map[string]any](t, resp)
	challengeID, _ := otp["challengeId"].(string)
	if challengeID == "" {
		t.Fatalf("otp response = %v", otp)
	}
	code := e.sender.codeFor(phone)
	if len(code) != 6 {
		t.Fatalf("captured code = %q", code)
	}

	// Wrong code is rejected and does not create the account.
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	resp = e.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"phone": phone, "name": "Asha", "challengeId": challengeID, "code": wrong,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("wrong code status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"phone": phone, "name": "Asha", "challengeId": challengeID, "code": code,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d", resp.StatusCode)
	}
	body := decodeBody[tokenResponse](t, resp)
	if body.Token == "" || body.RefreshToken == "" {
		t.Fatal("expected token pair")
	}
	if body.Identity.ID != "user_"+phone {
		t.Fatalf("identity id = %q", body.Identity.ID)
	}

	resp = e.do(t, http.MethodGet, "/api/auth/me", body.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d", resp.StatusCode)
	}
	me := decodeBody[domain.Identity](t, resp)
	if me.ID != body.Identity.ID {
		t.Fatalf("me = %+v", me)
	}
}

func TestLoginFlowWithOTP(t *testing.T) {
	e := newTestEnv(t, nil)
	phone := "255712000021"
	e.signUpDirect(t, phone, "Asha")

	resp := e.do(t, http.MethodPost, "/api/auth/otp/send", "", map[string]string{
		"phone": phone, "purpose": "login",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("otp send status = %d", resp.StatusCode)
	}
	otp := decodeBody[map[string]any](t, resp)
	challengeID, _ := otp["challengeId"].(string)

	resp = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"phone": phone, "challengeId": challengeID, "code": e.sender.codeFor(phone),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	body := decodeBody[tokenResponse](t, resp)
	if body.Identity.Class != domain.ClassRegistered {
		t.Fatalf("class = %q", body.Identity.Class)
	}
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t, nil)
	for _, path := range []string{"/api/auth/me", "/api/messages", "/api/notifications", "/api/calls"} {
		resp := e.do(t, http.MethodGet, path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("GET %s status = %d, want 401", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestGuestRateLimited(t *testing.T) {
	e := newTestEnv(t, func(cfg *Config) {
		cfg.LoginRateLimitPerMinute = 1
	})
	resp := e.do(t, http.MethodPost, "/api/auth/guest", "", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first guest status = %d", resp.StatusCode)
	}
	body := decodeBody[tokenResponse](t, resp)
	if body.Identity.Class != domain.ClassGuest {
		t.Fatalf("class = %q", body.Identity.Class)
	}
	resp = e.do(t, http.MethodPost, "/api/auth/guest", "", nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second guest status = %d, want 429", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdminOnlyEndpoints(t *testing.T) {
	e := newTestEnv(t, nil)
	_, userToken := e.signUpDirect(t, "255712000022", "Asha")
	_, adminToken := e.signUpDirect(t, "0612111793", "x")

	resp := e.do(t, http.MethodGet, "/api/admin/identities", userToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("user status = %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.do(t, http.MethodGet, "/api/admin/identities", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin status = %d", resp.StatusCode)
	}
	body := decodeBody[struct {
		Items []domain.Identity `json:"items"`
		Count int               `json:"count"`
	}](t, resp)
	if body.Count != 2 {
		t.Fatalf("count = %d", body.Count)
	}
}

func TestMessagesForcedToAdministrator(t *testing.T) {
	e := newTestEnv(t, nil)
	_, userToken := e.signUpDirect(t, "255712000023", "Asha")

	resp := e.do(t, http.MethodPost, "/api/messages", userToken, map[string]string{
		"recipientId": "user_255799999999", "recipientName": "Someone", "text": "habari",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send status = %d", resp.StatusCode)
	}
	msg := decodeBody[domain.Message](t, resp)
	if msg.RecipientID != domain.AdminID || msg.RecipientName != domain.AdminName {
		t.Fatalf("recipient = %q/%q, non-admin sends must reach the administrator", msg.RecipientID, msg.RecipientName)
	}

	resp = e.do(t, http.MethodGet, "/api/messages", userToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d", resp.StatusCode)
	}
	hist := decodeBody[struct {
		Items []domain.Message `json:"items"`
		Count int              `json:"count"`
	}](t, resp)
	if hist.Count != 1 || hist.Items[0].Text != "habari" {
		t.Fatalf("history = %+v", hist)
	}
}

func TestMessageVisibilityBetweenUsers(t *testing.T) {
	e := newTestEnv(t, nil)
	_, aliceToken := e.signUpDirect(t, "255712000024", "Asha")
	_, bobToken := e.signUpDirect(t, "255712000025", "Neema")
	_, adminToken := e.signUpDirect(t, "0612111793", "x")

	resp := e.do(t, http.MethodPost, "/api/messages", aliceToken, map[string]string{"text": "siri"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	count := func(token string) int {
		resp := e.do(t, http.MethodGet, "/api/messages", token, nil)
		hist := decodeBody[struct {
			Count int `json:"count"`
		}](t, resp)
		return hist.Count
	}
	if got := count(bobToken); got != 0 {
		t.Fatalf("other user sees %d messages, want 0", got)
	}
	if got := count(adminToken); got != 1 {
		t.Fatalf("admin sees %d messages, want 1", got)
	}
}

func TestNotificationsBroadcastAndRead(t *testing.T) {
	e := newTestEnv(t, nil)
	_, userToken := e.signUpDirect(t, "255712000026", "Asha")
	_, adminToken := e.signUpDirect(t, "0612111793", "x")

	resp := e.do(t, http.MethodPost, "/api/admin/notifications", adminToken, map[string]string{
		"title": "New tournament", "body": "Starts Friday",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	created := decodeBody[domain.Notification](t, resp)
	if created.ID == "" {
		t.Fatalf("created = %+v", created)
	}

	resp = e.do(t, http.MethodGet, "/api/notifications", userToken, nil)
	list := decodeBody[struct {
		Items []domain.Notification `json:"items"`
	}](t, resp)
	if len(list.Items) != 1 || list.Items[0].Title != "New tournament" {
		t.Fatalf("list = %+v", list)
	}

	resp = e.do(t, http.MethodPost, "/api/notifications/"+created.ID+"/read", userToken, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("read status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestIncomingNotificationWebhook(t *testing.T) {
	e := newTestEnv(t, nil)
	_, userToken := e.signUpDirect(t, "255712000027", "Asha")

	resp := e.do(t, http.MethodPost, "/api/notifications/incoming", "", map[string]string{
		"title": "Update available",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("incoming status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.do(t, http.MethodGet, "/api/notifications", userToken, nil)
	list := decodeBody[struct {
		Count int `json:"count"`
	}](t, resp)
	if list.Count != 1 {
		t.Fatalf("count = %d", list.Count)
	}
}

func TestCallLifecycleOverHTTP(t *testing.T) {
	e := newTestEnv(t, nil)
	_, userToken := e.signUpDirect(t, "255712000028", "Asha")
	_, adminToken := e.signUpDirect(t, "0612111793", "x")

	resp := e.do(t, http.MethodPost, "/api/calls", userToken, map[string]any{"video": true})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("initiate status = %d", resp.StatusCode)
	}
	call := decodeBody[domain.Call](t, resp)
	if call.CalleeID != domain.AdminID || call.Status != domain.CallRinging {
		t.Fatalf("call = %+v", call)
	}

	// The caller cannot accept their own call.
	resp = e.do(t, http.MethodPost, "/api/calls/"+call.ID+"/accept", userToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("self accept status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.do(t, http.MethodPost, "/api/calls/"+call.ID+"/accept", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("accept status = %d", resp.StatusCode)
	}
	accepted := decodeBody[domain.Call](t, resp)
	if accepted.Status != domain.CallAccepted {
		t.Fatalf("status = %q", accepted.Status)
	}

	resp = e.do(t, http.MethodPost, "/api/calls/"+call.ID+"/end", userToken, map[string]int{"durationSeconds": 30})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d", resp.StatusCode)
	}
	ended := decodeBody[domain.Call](t, resp)
	if ended.Status != domain.CallEnded || ended.Duration != 30 {
		t.Fatalf("ended = %+v", ended)
	}

	resp = e.do(t, http.MethodPost, "/api/calls/nosuch/accept", adminToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown call status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLinkClassify(t *testing.T) {
	e := newTestEnv(t, nil)
	cases := []struct {
		url  string
		want link.Classification
	}{
		{"https://tonygamingtz.com/games/fifa", link.Internal},
		{"https://www.tonygamingtz.com/", link.Internal},
		{"https://example.com/offer", link.External},
		{"not a url at all", link.Invalid},
	}
	for _, tc := range cases {
		resp := e.do(t, http.MethodGet, "/api/link/classify?url="+strings.ReplaceAll(tc.url, " ", "%20"), "", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("classify(%q) status = %d", tc.url, resp.StatusCode)
		}
		body := decodeBody[struct {
			Classification link.Classification `json:"classification"`
			Internal       bool                `json:"internal"`
		}](t, resp)
		if body.Classification != tc.want {
			t.Fatalf("classify(%q) = %q, want %q", tc.url, body.Classification, tc.want)
		}
		if body.Internal != (tc.want == link.Internal) {
			t.Fatalf("classify(%q) internal = %v", tc.url, body.Internal)
		}
	}
}

func TestLinkRoutePlans(t *testing.T) {
	e := newTestEnv(t, nil)
	const androidUA = "Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36"
	const iosUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1"
	const desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

	plan := func(targetURL, ua string) routePlan {
		resp := e.do(t, http.MethodPost, "/api/link/route", "", map[string]string{
			"url": targetURL, "userAgent": ua,
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("route status = %d", resp.StatusCode)
		}
		return decodeBody[routePlan](t, resp)
	}

	internal := plan("https://tonygamingtz.com/shop", androidUA)
	if internal.Mechanism != link.MechanismNone || internal.WebviewURL == "" {
		t.Fatalf("internal plan = %+v", internal)
	}

	android := plan("https://example.com/offer", androidUA)
	if android.Mechanism != link.MechanismAndroidIntent {
		t.Fatalf("android mechanism = %q", android.Mechanism)
	}
	if len(android.IntentURIs) != 1+len(link.AlternativeBrowserPackages) {
		t.Fatalf("intent uris = %d", len(android.IntentURIs))
	}
	first := android.IntentURIs[0]
	if !strings.HasPrefix(first, "intent://example.com/offer#Intent;") ||
		!strings.Contains(first, "package=com.android.chrome;") ||
		!strings.Contains(first, "B.android.intent.extra.CUSTOM_TABS_TOOLBAR_COLOR=-65536;") {
		t.Fatalf("primary intent uri = %q", first)
	}
	if !strings.Contains(android.IntentURIs[1], "package=com.chrome.beta;") {
		t.Fatalf("first fallback uri = %q", android.IntentURIs[1])
	}

	ios := plan("https://example.com/offer", iosUA)
	if ios.Mechanism != link.MechanismIOSWindow || ios.WindowFeatures != "location=yes,toolbar=yes" {
		t.Fatalf("ios plan = %+v", ios)
	}

	desktop := plan("https://example.com/offer", desktopUA)
	if desktop.Mechanism != link.MechanismPopup || !strings.Contains(desktop.WindowFeatures, "width=1024") {
		t.Fatalf("desktop plan = %+v", desktop)
	}
}

func TestWebviewInternalRendersExternalRedirects(t *testing.T) {
	e := newTestEnv(t, nil)
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Get(e.srv.URL + "/webview?url=https%3A%2F%2Ftonygamingtz.com%2Fgames")
	if err != nil {
		t.Fatalf("webview internal: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("internal status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Security-Policy"); got != "frame-ancestors 'self'" {
		t.Fatalf("csp = %q", got)
	}
	var page bytes.Buffer
	_, _ = page.ReadFrom(resp.Body)
	resp.Body.Close()
	if !strings.Contains(page.String(), "<iframe src=\"https://tonygamingtz.com/games\"") {
		t.Fatalf("page = %q", page.String())
	}

	resp, err = client.Get(e.srv.URL + "/webview?url=https%3A%2F%2Fexample.com%2Foffer")
	if err != nil {
		t.Fatalf("webview external: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("external status = %d, want 302", resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != "https://example.com/offer" {
		t.Fatalf("location = %q", got)
	}
}

func TestAdminSMSQueueAndHistory(t *testing.T) {
	e := newTestEnv(t, nil)
	_, adminToken := e.signUpDirect(t, "0612111793", "x")

	resp := e.do(t, http.MethodPost, "/api/admin/sms", adminToken, map[string]string{
		"toPhone": "255712000030", "body": "karibu",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("queue status = %d", resp.StatusCode)
	}
	rec := decodeBody[domain.SMSRecord](t, resp)
	if rec.Status != domain.SMSQueued {
		t.Fatalf("record = %+v", rec)
	}

	resp = e.do(t, http.MethodPost, "/api/admin/sms", adminToken, map[string]string{"toPhone": "", "body": "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty phone status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.do(t, http.MethodGet, "/api/admin/sms", adminToken, nil)
	hist := decodeBody[struct {
		Items []domain.SMSRecord `json:"items"`
		Count int                `json:"count"`
	}](t, resp)
	if hist.Count != 1 || hist.Items[0].ID != rec.ID {
		t.Fatalf("history = %+v", hist)
	}
}

func TestRefreshRotationOverHTTP(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	_, _, refreshToken, err := e.app.SignUp(ctx, "255712000031", "Asha")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	resp := e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": refreshToken})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}
	body := decodeBody[tokenResponse](t, resp)
	if body.RefreshToken == "" || body.RefreshToken == refreshToken {
		t.Fatal("refresh token not rotated")
	}

	resp = e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": refreshToken})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("replay status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing token status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPresenceEndpoints(t *testing.T) {
	e := newTestEnv(t, nil)
	user, userToken := e.signUpDirect(t, "255712000032", "Asha")
	_, adminToken := e.signUpDirect(t, "0612111793", "x")

	resp := e.do(t, http.MethodPost, "/api/presence", userToken, map[string]bool{"online": true})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("presence status = %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = e.do(t, http.MethodPost, "/api/presence/typing", userToken, map[string]bool{"typing": true})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("typing status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.do(t, http.MethodGet, "/api/admin/presence/"+user.ID, adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin presence status = %d", resp.StatusCode)
	}
	status := decodeBody[struct {
		Online bool `json:"online"`
		Typing bool `json:"typing"`
	}](t, resp)
	if !status.Online || !status.Typing {
		t.Fatalf("status = %+v", status)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	e := newTestEnv(t, nil)
	_, token := e.signUpDirect(t, "255712000033", "Asha")

	resp := e.do(t, http.MethodPost, "/api/auth/logout", token, map[string]string{})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.do(t, http.MethodGet, "/api/auth/me", token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me after logout status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMarkConversationRead(t *testing.T) {
	e := newTestEnv(t, nil)
	user, userToken := e.signUpDirect(t, "255712000034", "Asha")
	_, adminToken := e.signUpDirect(t, "0612111793", "x")

	resp := e.do(t, http.MethodPost, "/api/messages", adminToken, map[string]string{
		"recipientId": user.ID, "recipientName": user.DisplayName, "text": "habari yako",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.do(t, http.MethodPost, fmt.Sprintf("/api/messages/%s/read", domain.AdminID), userToken, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("mark read status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.do(t, http.MethodGet, "/api/messages", userToken, nil)
	hist := decodeBody[struct {
		Items []domain.Message `json:"items"`
	}](t, resp)
	if len(hist.Items) != 1 || !hist.Items[0].Read {
		t.Fatalf("history = %+v", hist.Items)
	}
}
