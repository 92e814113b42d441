package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	brokererrors "ican-broker/internal/common/errors"
	"ican-broker/internal/common/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second, logger.NewTestLogger(t)), srv
}

func TestGetNormalizesBearerToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{
			name:  "bare token gets prefix",
			token: "abc123",
			want:  "Bearer abc123",
		},
		{
			name:  "prefixed token kept as is",
			token: "Bearer abc123",
			want:  "Bearer abc123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get("Authorization")
				w.Write([]byte(`{"statusCode":200,"result":{}}`))
			})

			_, err := client.Get(context.Background(), "/application/get/1", tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDoDecodesNumericAndBooleanStatusCodes(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/numeric":
			w.Write([]byte(`{"statusCode":200,"result":{"id":7}}`))
		case "/boolean":
			w.Write([]byte(`{"statusCode":true,"result":{"access_token":"tok"}}`))
		}
	})

	env, err := client.Get(context.Background(), "/numeric", "tok")
	require.NoError(t, err)
	code, ok := env.StatusCode.HTTP()
	require.True(t, ok)
	assert.Equal(t, 200, code)
	_, ok = env.StatusCode.OK()
	assert.False(t, ok)

	env, err = client.Get(context.Background(), "/boolean", "tok")
	require.NoError(t, err)
	flag, ok := env.StatusCode.OK()
	require.True(t, ok)
	assert.True(t, flag)
}

func TestDoReturnsEnvelopeOnEnvelopedErrorStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"statusCode":400,"message":"application was rejected"}`))
	})

	env, err := client.PostWithToken(context.Background(), "/application/approve/1", "tok", nil)
	require.NoError(t, err)
	code, ok := env.StatusCode.HTTP()
	require.True(t, ok)
	assert.Equal(t, 400, code)
	assert.Equal(t, "application was rejected", env.Message)
}

func TestDoWrapsNonEnvelopeErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   brokererrors.Kind
		wantStatus int
	}{
		{
			name:       "plain 500 becomes unavailable",
			status:     http.StatusInternalServerError,
			body:       "Internal Server Error",
			wantKind:   brokererrors.KindUpstreamUnavailable,
			wantStatus: 500,
		},
		{
			name:       "bad gateway html becomes unavailable",
			status:     http.StatusBadGateway,
			body:       "<html>502</html>",
			wantKind:   brokererrors.KindUpstreamUnavailable,
			wantStatus: 502,
		},
		{
			name:       "bare 404 becomes rejected",
			status:     http.StatusNotFound,
			body:       "not found",
			wantKind:   brokererrors.KindUpstreamRejected,
			wantStatus: 404,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.Get(context.Background(), "/x", "tok")
			require.Error(t, err)
			be := brokererrors.From(err)
			assert.Equal(t, tt.wantKind, be.Kind)
			assert.Equal(t, tt.wantStatus, be.HTTPStatus)
		})
	}
}

func TestDoTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	client := NewClient(srv.URL, time.Second, logger.NewNoOpLogger())

	_, err := client.Get(context.Background(), "/x", "tok")
	require.Error(t, err)
	assert.True(t, brokererrors.IsKind(err, brokererrors.KindUpstreamUnavailable))
}

func TestDecodeResultAndRawDecode(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"statusCode":200,"result":{"reason_of_reject":"declined"}}`))
	})

	env, err := client.Get(context.Background(), "/x", "tok")
	require.NoError(t, err)

	var result struct {
		Reason string `json:"reason_of_reject"`
	}
	require.NoError(t, env.DecodeResult(&result))
	assert.Equal(t, "declined", result.Reason)

	var whole struct {
		Result map[string]interface{} `json:"result"`
	}
	require.NoError(t, env.Decode(&whole))
	assert.Equal(t, "declined", whole.Result["reason_of_reject"])
}

func TestDownload(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/files/schedule.pdf" {
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte("%PDF-1.4"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	resp, err := client.Download(context.Background(), srv.URL+"/files/schedule.pdf")
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))

	_, err = client.Download(context.Background(), srv.URL+"/files/missing.pdf")
	require.Error(t, err)
	assert.True(t, brokererrors.IsKind(err, brokererrors.KindUpstreamUnavailable))
}
