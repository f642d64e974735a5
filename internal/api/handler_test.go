package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/otiai10/ssobridge/internal/auth"
	"github.com/otiai10/ssobridge/internal/exchange"
)

// mockAuthority implements auth.Authority for testing
type mockAuthority struct {
	mock.Mock
}

func (m *mockAuthority) Verify(ctx context.Context, idToken string) (*auth.Identity, error) {
	args := m.Called(ctx, idToken)
	identity, _ := args.Get(0).(*auth.Identity)
	return identity, args.Error(1)
}

func (m *mockAuthority) Issue(ctx context.Context, uid string) (string, error) {
	args := m.Called(ctx, uid)
	return args.String(0), args.Error(1)
}

func newTestRouter(authority *mockAuthority) http.Handler {
	return NewRouter(exchange.NewService(authority))
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// captureLogs points the global logger at a buffer for the duration of the test
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	original := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = original })
	return &buf
}

func logEntries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		entries = append(entries, entry)
	}
	return entries
}

func findLogEntry(t *testing.T, buf *bytes.Buffer, message string) map[string]any {
	t.Helper()
	for _, entry := range logEntries(t, buf) {
		if entry["message"] == message {
			return entry
		}
	}
	require.Failf(t, "log entry not found", "message %q in:\n%s", message, buf.String())
	return nil
}

func TestExchange_Success(t *testing.T) {
	for _, path := range []string{"/", ExchangePath} {
		t.Run(path, func(t *testing.T) {
			authority := new(mockAuthority)
			authority.On("Verify", mock.Anything, "valid-id-token").Return(&auth.Identity{UID: "user-123"}, nil).Once()
			authority.On("Issue", mock.Anything, "user-123").Return("custom-token-abc", nil).Once()

			rec := httptest.NewRecorder()
			newTestRouter(authority).ServeHTTP(rec, postJSON(path, `{"idToken":"valid-id-token"}`))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, `{"customToken":"custom-token-abc"}`, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get(CorrelationIDHeader))
			authority.AssertExpectations(t)
		})
	}
}

func TestExchange_MethodNotAllowed(t *testing.T) {
	methods := []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodHead}

	for _, method := range methods {
		t.Run(method, func(t *testing.T) {
			authority := new(mockAuthority)
			router := newTestRouter(authority)

			req := httptest.NewRequest(method, ExchangePath, strings.NewReader(`{"idToken":"valid-id-token"}`))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
			if method != http.MethodHead {
				assert.Equal(t, "Method Not Allowed", rec.Body.String())
			}
			assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
			authority.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
			authority.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything)
		})
	}
}

func TestExchange_MissingIDToken(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
	}{
		{name: "empty body", body: "", contentType: "application/json"},
		{name: "empty object", body: `{}`, contentType: "application/json"},
		{name: "empty string", body: `{"idToken":""}`, contentType: "application/json"},
		{name: "null token", body: `{"idToken":null}`, contentType: "application/json"},
		{name: "non-string token", body: `{"idToken":12345}`, contentType: "application/json"},
		{name: "malformed json", body: `{"idToken":`, contentType: "application/json"},
		{name: "different field", body: `{"id_token":"valid-id-token"}`, contentType: "application/json"},
		{name: "empty form field", body: "idToken=", contentType: "application/x-www-form-urlencoded"},
		{name: "plain text", body: "valid-id-token", contentType: "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authority := new(mockAuthority)
			router := newTestRouter(authority)

			req := httptest.NewRequest(http.MethodPost, ExchangePath, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "ID token is missing from the request body.", decodeError(t, rec).Error)
			authority.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
			authority.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything)
		})
	}
}

func TestExchange_OversizedBody(t *testing.T) {
	authority := new(mockAuthority)
	router := newTestRouter(authority)

	body := `{"idToken":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, postJSON(ExchangePath, body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	authority.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
}

func TestExchange_FormEncodedBody(t *testing.T) {
	authority := new(mockAuthority)
	authority.On("Verify", mock.Anything, "form-id-token").Return(&auth.Identity{UID: "user-9"}, nil).Once()
	authority.On("Issue", mock.Anything, "user-9").Return("custom-token-form", nil).Once()

	router := newTestRouter(authority)

	form := url.Values{"idToken": {"form-id-token"}}
	req := httptest.NewRequest(http.MethodPost, ExchangePath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"customToken":"custom-token-form"}`, rec.Body.String())
	authority.AssertExpectations(t)
}

func TestExchange_VerifyFailure(t *testing.T) {
	authority := new(mockAuthority)
	authority.On("Verify", mock.Anything, "forged-token").
		Return(nil, &auth.Error{Kind: auth.ErrInvalidToken, Reason: "invalid", Err: errors.New("bad signature")}).Once()

	router := newTestRouter(authority)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, postJSON(ExchangePath, `{"idToken":"forged-token"}`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "An unexpected error occurred while generating the SSO token.", resp.Error)
	assert.NotContains(t, rec.Body.String(), "bad signature")

	authority.AssertExpectations(t)
	authority.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything)
}

func TestExchange_IssueFailure(t *testing.T) {
	authority := new(mockAuthority)
	authority.On("Verify", mock.Anything, "valid-id-token").Return(&auth.Identity{UID: "user-123"}, nil).Once()
	authority.On("Issue", mock.Anything, "user-123").
		Return("", &auth.Error{Kind: auth.ErrIssuance, Reason: "custom_token", Err: errors.New("signer unavailable")}).Once()

	router := newTestRouter(authority)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, postJSON(ExchangePath, `{"idToken":"valid-id-token"}`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "signer unavailable")
	authority.AssertExpectations(t)

	// Same body as a verification failure.
	verifyAuthority := new(mockAuthority)
	verifyAuthority.On("Verify", mock.Anything, "valid-id-token").Return(nil, errors.New("rejected")).Once()
	verifyRec := httptest.NewRecorder()
	newTestRouter(verifyAuthority).ServeHTTP(verifyRec, postJSON(ExchangePath, `{"idToken":"valid-id-token"}`))

	assert.Equal(t, verifyRec.Code, rec.Code)
	assert.Equal(t, verifyRec.Body.String(), rec.Body.String())
}

func TestExchange_AuthorityContractViolations(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*mockAuthority)
	}{
		{
			name: "nil identity",
			setup: func(m *mockAuthority) {
				m.On("Verify", mock.Anything, "valid-id-token").Return(nil, nil).Once()
			},
		},
		{
			name: "empty custom token",
			setup: func(m *mockAuthority) {
				m.On("Verify", mock.Anything, "valid-id-token").Return(&auth.Identity{UID: "user-123"}, nil).Once()
				m.On("Issue", mock.Anything, "user-123").Return("", nil).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authority := new(mockAuthority)
			tt.setup(authority)

			rec := httptest.NewRecorder()
			newTestRouter(authority).ServeHTTP(rec, postJSON(ExchangePath, `{"idToken":"valid-id-token"}`))

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, msgExchangeFailed, decodeError(t, rec).Error)
			authority.AssertExpectations(t)
		})
	}
}

func TestExchange_IgnoresClientCancellation(t *testing.T) {
	authority := new(mockAuthority)
	authority.On("Verify", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }), "valid-id-token").
		Return(&auth.Identity{UID: "user-123"}, nil).Once()
	authority.On("Issue", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }), "user-123").
		Return("custom-token-abc", nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := postJSON(ExchangePath, `{"idToken":"valid-id-token"}`).WithContext(ctx)
	rec := httptest.NewRecorder()
	newTestRouter(authority).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	authority.AssertExpectations(t)
}

func TestExchange_Preflight(t *testing.T) {
	authority := new(mockAuthority)
	router := newTestRouter(authority)

	req := httptest.NewRequest(http.MethodOptions, ExchangePath, nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Equal(t, "content-type", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Empty(t, rec.Body.String())
	authority.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
}

func TestExchange_CORSOnEveryResponse(t *testing.T) {
	authority := new(mockAuthority)
	router := newTestRouter(authority)

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{name: "method not allowed", req: httptest.NewRequest(http.MethodGet, ExchangePath, nil), want: http.StatusMethodNotAllowed},
		{name: "missing token", req: postJSON(ExchangePath, `{}`), want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Header.Set("Origin", "https://other.example.org")
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, tt.req)

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "https://other.example.org", rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestExchange_Logging(t *testing.T) {
	const (
		idToken     = "SECRET-ID-TOKEN"
		customToken = "SECRET-CUSTOM-TOKEN"
	)

	t.Run("success", func(t *testing.T) {
		buf := captureLogs(t)
		authority := new(mockAuthority)
		authority.On("Verify", mock.Anything, idToken).Return(&auth.Identity{UID: "user-123", ProviderID: "google.com"}, nil).Once()
		authority.On("Issue", mock.Anything, "user-123").Return(customToken, nil).Once()

		rec := httptest.NewRecorder()
		newTestRouter(authority).ServeHTTP(rec, postJSON(ExchangePath, `{"idToken":"`+idToken+`"}`))
		require.Equal(t, http.StatusOK, rec.Code)

		findLogEntry(t, buf, "sso exchange request received")
		verified := findLogEntry(t, buf, "verified id token, generating custom token")
		assert.Equal(t, "user-123", verified["uid"])
		assert.Equal(t, "google.com", verified["provider"])
		issued := findLogEntry(t, buf, "generated custom token")
		assert.Equal(t, "user-123", issued["uid"])
		assert.Equal(t, float64(len(customToken)), issued["token_length"])
		findLogEntry(t, buf, "request handled")

		assert.NotContains(t, buf.String(), idToken)
		assert.NotContains(t, buf.String(), customToken)
	})

	t.Run("missing token", func(t *testing.T) {
		buf := captureLogs(t)
		authority := new(mockAuthority)

		rec := httptest.NewRecorder()
		newTestRouter(authority).ServeHTTP(rec, postJSON(ExchangePath, `{}`))
		require.Equal(t, http.StatusBadRequest, rec.Code)

		entry := findLogEntry(t, buf, "sso token generation: "+msgMissingIDToken)
		assert.Equal(t, zerolog.LevelFieldMarshalFunc(zerolog.ErrorLevel), entry[zerolog.LevelFieldName])
	})

	failures := []struct {
		name       string
		setup      func(*mockAuthority)
		wantStage  string
		wantReason string
	}{
		{
			name: "verify failure",
			setup: func(m *mockAuthority) {
				m.On("Verify", mock.Anything, idToken).
					Return(nil, &auth.Error{Kind: auth.ErrInvalidToken, Reason: "expired", Err: errors.New("token expired")}).Once()
			},
			wantStage:  "verify",
			wantReason: "expired",
		},
		{
			name: "issue failure",
			setup: func(m *mockAuthority) {
				m.On("Verify", mock.Anything, idToken).Return(&auth.Identity{UID: "user-123"}, nil).Once()
				m.On("Issue", mock.Anything, "user-123").
					Return("", &auth.Error{Kind: auth.ErrIssuance, Reason: "custom_token", Err: errors.New("signer unavailable")}).Once()
			},
			wantStage:  "issue",
			wantReason: "custom_token",
		},
	}

	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t)
			authority := new(mockAuthority)
			tt.setup(authority)

			rec := httptest.NewRecorder()
			newTestRouter(authority).ServeHTTP(rec, postJSON(ExchangePath, `{"idToken":"`+idToken+`"}`))
			require.Equal(t, http.StatusInternalServerError, rec.Code)

			entry := findLogEntry(t, buf, "error generating sso token")
			assert.Equal(t, tt.wantStage, entry["stage"])
			assert.Equal(t, tt.wantReason, entry["reason"])
			assert.NotEmpty(t, entry["error"])
			assert.NotContains(t, buf.String(), idToken)
		})
	}
}
