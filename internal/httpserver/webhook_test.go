package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"debtbot/internal/domain"
	"debtbot/internal/providers/meta"
	"debtbot/internal/service"
	"debtbot/internal/store/memory"
	"debtbot/internal/util"
)

const secret = "app-secret"

func payload(phoneID, msg string) string {
	return `{"object":"whatsapp_business_account","entry":[{"id":"WABA","changes":[{"field":"messages","value":{` +
		`"messaging_product":"whatsapp","metadata":{"display_phone_number":"573000000000","phone_number_id":"` + phoneID + `"},` +
		`"messages":[` + msg + `]}}]}]}`
}

const textMsg = `{"from":"573001112233","id":"wamid.1","timestamp":"1709650000","type":"text","text":{"body":"mi placa es abc123"}}`

type fakeAcceptor struct {
	calls atomic.Int32
	msg   domain.InboundMessage
	err   error
	panic bool
}

func (f *fakeAcceptor) Accept(_ context.Context, _ string, msg domain.InboundMessage) (service.Acceptance, error) {
	f.calls.Add(1)
	if f.panic {
		panic("boom")
	}
	f.msg = msg
	return service.AcceptDispatched, f.err
}

func newTestServer(acc Acceptor) *Server {
	s := New()
	(&Webhook{
		Inbound:       acc,
		AppSecret:     []byte(secret),
		VerifyToken:   "verify-me",
		PhoneNumberID: "PNID",
		Timeout:       time.Second,
	}).Register(s.Mux)
	return s
}

func post(t *testing.T, s *Server, body, signature string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(body))
	if signature != "" {
		req.Header.Set(meta.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	s.Mux.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestVerifyChallenge(t *testing.T) {
	s := newTestServer(&fakeAcceptor{})

	rec := httptest.NewRecorder()
	s.Mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, WebhookPath+"?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "12345", rec.Body.String())

	rec = httptest.NewRecorder()
	s.Mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, WebhookPath+"?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	s.Mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, WebhookPath+"?hub.mode=unsubscribe&hub.verify_token=verify-me", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPostAccepted(t *testing.T) {
	acc := &fakeAcceptor{}
	s := newTestServer(acc)
	body := payload("PNID", textMsg)

	rec, out := post(t, s, body, meta.Sign([]byte(body), []byte(secret)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, map[string]any{"ok": true}, out)
	require.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	require.EqualValues(t, 1, acc.calls.Load())
	require.Equal(t, "wamid.1", acc.msg.ID)
	require.Equal(t, domain.TypeText, acc.msg.Type)
	require.JSONEq(t, textMsg, string(acc.msg.Raw))
}

func TestPostRejectionsAnswer200(t *testing.T) {
	good := payload("PNID", textMsg)
	foreign := payload("OTHER", textMsg)
	noMessages := payload("PNID", "")

	cases := []struct {
		name      string
		body      string
		signature string
		message   string
	}{
		{"missing signature", good, "", MsgNoSignature},
		{"malformed signature", good, "md5=abc", MsgBadSignature},
		{"wrong signature", good, meta.Sign([]byte(good), []byte("other")), MsgUnauthorized},
		{"unparseable body", "{not json", meta.Sign([]byte("{not json"), []byte(secret)), MsgBadBody},
		{"foreign business", foreign, meta.Sign([]byte(foreign), []byte(secret)), MsgForeignBusiness},
		{"no message", noMessages, meta.Sign([]byte(noMessages), []byte(secret)), MsgNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			acc := &fakeAcceptor{}
			rec, out := post(t, newTestServer(acc), tc.body, tc.signature)
			require.Equal(t, http.StatusOK, rec.Code)
			require.Equal(t, tc.message, out["message"])
			require.Zero(t, acc.calls.Load())
		})
	}
}

func TestSignatureCheckedBeforeBusinessFilter(t *testing.T) {
	acc := &fakeAcceptor{}
	foreign := payload("OTHER", textMsg)

	_, out := post(t, newTestServer(acc), foreign, "sha256=00")
	require.Equal(t, MsgUnauthorized, out["message"])
}

func TestPostInternalErrorsAnswer200(t *testing.T) {
	body := payload("PNID", textMsg)
	sig := meta.Sign([]byte(body), []byte(secret))

	rec, out := post(t, newTestServer(&fakeAcceptor{err: errors.New("db down")}), body, sig)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, out["error"])
	require.Equal(t, MsgInternal, out["message"])
	require.NotContains(t, rec.Body.String(), "db down")

	rec, out = post(t, newTestServer(&fakeAcceptor{panic: true}), body, sig)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, MsgInternal, out["message"])
}

type countingDispatcher struct{ calls atomic.Int32 }

func (d *countingDispatcher) Dispatch(context.Context, string, domain.InboundMessage) error {
	d.calls.Add(1)
	return nil
}

func TestRedeliveredWebhookDispatchesOnce(t *testing.T) {
	st := memory.New()
	d := &countingDispatcher{}
	s := newTestServer(&service.InboundService{
		Log:        st,
		Dispatcher: d,
		DayKey:     util.DayKeyFunc(-5 * time.Hour),
	})
	body := payload("PNID", textMsg)
	sig := meta.Sign([]byte(body), []byte(secret))

	rec, out := post(t, s, body, sig)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, out["ok"])
	for i := 0; i < 2; i++ {
		rec, out = post(t, s, body, sig)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, MsgDuplicate, out["message"])
	}
	require.EqualValues(t, 1, d.calls.Load())

	seen, err := st.HasSeen(context.Background(), "573001112233", "wamid.1")
	require.NoError(t, err)
	require.True(t, seen)
}

func TestHealthRoutes(t *testing.T) {
	s := New()
	s.Mux.HandleFunc("/healthz", Healthz())
	s.Mux.HandleFunc("/readyz", Readyz(time.Second, func(context.Context) error { return errors.New("down") }))

	rec := httptest.NewRecorder()
	s.Mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
