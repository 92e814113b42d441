package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ican-broker/internal/auth"
	"ican-broker/internal/broker"
	brokererrors "ican-broker/internal/common/errors"
	"ican-broker/internal/common/logger"
	"ican-broker/internal/models"
)

type stubLifecycle struct {
	limit    *broker.LimitOutput
	contract *broker.ContractOutput
	schedule *broker.ScheduleFile
	message  *broker.MessageOutput
	err      error

	gotToken string
	gotAppID string
}

func (s *stubLifecycle) GetLimit(ctx context.Context, token string, in broker.LimitInput) (*broker.LimitOutput, error) {
	s.gotToken = token
	s.gotAppID = in.AppID
	return s.limit, s.err
}

func (s *stubLifecycle) CreateContract(ctx context.Context, token string, in broker.ContractInput) (*broker.ContractOutput, error) {
	s.gotToken = token
	s.gotAppID = in.AppID
	return s.contract, s.err
}

func (s *stubLifecycle) VerifyOTP(ctx context.Context, token string, in broker.OTPInput) (*broker.MessageOutput, error) {
	return s.message, s.err
}

func (s *stubLifecycle) GetStatus(ctx context.Context, token, appID string) (*broker.StatusOutput, error) {
	return nil, s.err
}

func (s *stubLifecycle) GetByID(ctx context.Context, token, appID string) (*broker.DetailOutput, error) {
	return nil, s.err
}

func (s *stubLifecycle) DownloadSchedule(ctx context.Context, token, appID string) (*broker.ScheduleFile, error) {
	s.gotAppID = appID
	return s.schedule, s.err
}

func (s *stubLifecycle) DeleteProducts(ctx context.Context, token, appID string) (*broker.MessageOutput, error) {
	s.gotAppID = appID
	return s.message, s.err
}

func (s *stubLifecycle) Reject(ctx context.Context, token, appID string) (*broker.MessageOutput, error) {
	s.gotAppID = appID
	return s.message, s.err
}

type stubAuth struct {
	token *auth.Token
	err   error
}

func (s *stubAuth) SignIn(ctx context.Context, creds auth.Credentials) (*auth.Token, error) {
	return s.token, s.err
}

func (s *stubAuth) BrokerLogin(ctx context.Context, key auth.BrokerKey) (*auth.Token, error) {
	return s.token, s.err
}

func newTestServer(t *testing.T, lc *stubLifecycle, a *stubAuth) *httptest.Server {
	t.Helper()
	if a == nil {
		a = &stubAuth{}
	}
	srv := httptest.NewServer(New(lc, a, nil, logger.NewTestLogger(t)).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func decodeEnvelope(t *testing.T, resp *http.Response) models.Envelope {
	t.Helper()
	defer resp.Body.Close()
	var env models.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func TestGetLimitHappyPath(t *testing.T) {
	lc := &stubLifecycle{limit: &broker.LimitOutput{
		Provider: "ican",
		Limit:    []broker.PeriodOption{{Month: 3, Amount: 300}},
	}}
	srv := newTestServer(t, lc, nil)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/application/broker/get-limit",
		strings.NewReader(`{"app_id":"app-1","merchant_id":"m1"}`))
	req.Header.Set("Authorization", "Bearer tok")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	assert.True(t, env.Status)
	assert.Nil(t, env.Error)

	result := env.Result.(map[string]interface{})
	assert.Equal(t, "ican", result["provider"])
	assert.Equal(t, "Bearer tok", lc.gotToken)
	assert.Equal(t, "app-1", lc.gotAppID)
}

func TestValidationReportsFirstFailingField(t *testing.T) {
	srv := newTestServer(t, &stubLifecycle{}, nil)

	resp, err := http.Post(srv.URL+"/application/broker/get-limit", "application/json",
		strings.NewReader(`{"merchant_id":"m1"}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	assert.False(t, env.Status)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Message, "app_id")
}

func TestErrorProjectionMirrorsSemanticStatus(t *testing.T) {
	lc := &stubLifecycle{err: brokererrors.NewNotFound()}
	srv := newTestServer(t, lc, nil)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/application/broker/reject/missing", nil)
	req.Header.Set("Authorization", "Bearer tok")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	assert.False(t, env.Status)
	assert.Nil(t, env.Result)
	assert.Equal(t, "Application not found", env.Error.Message)
}

func TestContractRejectionCarriesClientInfo(t *testing.T) {
	rejection := brokererrors.NewUpstreamRejected(400, "approval rejected").
		WithClientInfo(models.ClientInfo{Name: "Anvar", OwnerPhone: "+998901112233"})
	lc := &stubLifecycle{err: rejection}
	srv := newTestServer(t, lc, nil)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/application/broker/add-product",
		strings.NewReader(`{"app_id":"app-1","period":"12","products":[{"name":"Phone","amount":450}]}`))
	req.Header.Set("Authorization", "Bearer tok")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	require.NotNil(t, env.Error)
	assert.Equal(t, "approval rejected", env.Error.Message)

	info := env.Error.ClientInfo.(map[string]interface{})
	assert.Equal(t, "+998901112233", info["owner_phone"])
}

func TestGetContractStreamsPDF(t *testing.T) {
	lc := &stubLifecycle{schedule: &broker.ScheduleFile{
		Body:        io.NopCloser(strings.NewReader("%PDF-1.4")),
		ContentType: "application/pdf",
		Name:        "schedule_app-1.pdf",
	}}
	srv := newTestServer(t, lc, nil)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/application/broker/get-contract/app-1", nil)
	req.Header.Set("Authorization", "Bearer tok")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "schedule_app-1.pdf")

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
	assert.Equal(t, "app-1", lc.gotAppID)
}

func TestSignInRoute(t *testing.T) {
	srv := newTestServer(t, &stubLifecycle{}, &stubAuth{token: &auth.Token{AccessToken: "tok-123"}})

	resp, err := http.Post(srv.URL+"/auth/broker/sign-in", "application/json",
		strings.NewReader(`{"username":"u","password":"p"}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	assert.True(t, env.Status)
	result := env.Result.(map[string]interface{})
	assert.Equal(t, "tok-123", result["access_token"])
}

func TestBrokerLoginValidation(t *testing.T) {
	srv := newTestServer(t, &stubLifecycle{}, &stubAuth{})

	resp, err := http.Post(srv.URL+"/auth/broker/login", "application/json",
		strings.NewReader(`{}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	assert.Contains(t, env.Error.Message, "broker_key")
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubLifecycle{}, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
