// Package broker implements the application lifecycle orchestrator: the
// state-dependent sequencing of upstream calls, local progress bookkeeping,
// and the compensation path when approval fails after products were created.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	brokererrors "ican-broker/internal/common/errors"
	"ican-broker/internal/common/logger"
	"ican-broker/internal/common/metrics"
	"ican-broker/internal/models"
	"ican-broker/internal/upstream"
)

// flatScheduleProvider marks the scoring provider whose instalment schedule
// is derived locally instead of priced upstream.
const flatScheduleProvider = "ican"

// rejectReason is echoed back by the upstream on rejection; the echo match
// is the success signal, not the HTTP status.
const rejectReason = "Клиент отказался"

// UpstreamClient is the verb surface of the lending backend the orchestrator
// depends on.
type UpstreamClient interface {
	Get(ctx context.Context, path, token string) (*upstream.Envelope, error)
	Post(ctx context.Context, path string, body interface{}) (*upstream.Envelope, error)
	PostWithToken(ctx context.Context, path, token string, body interface{}) (*upstream.Envelope, error)
	PutWithToken(ctx context.Context, path, token string, body interface{}) (*upstream.Envelope, error)
	DeleteWithToken(ctx context.Context, path, token string) (*upstream.Envelope, error)
	Download(ctx context.Context, fileURL string) (*http.Response, error)
}

// SnapshotReader reads the authoritative application record.
type SnapshotReader interface {
	Get(ctx context.Context, appID string) (*models.ApplicationSnapshot, error)
}

// ProgressStore mirrors orchestration progress locally.
type ProgressStore interface {
	UpsertProgress(ctx context.Context, appID string) error
	SetPeriod(ctx context.Context, appID, period string) error
	SaveProduct(ctx context.Context, appID, productID, name, amount string) error
	DeleteProducts(ctx context.Context, appID string) error
}

// Locker serializes mutating workflows per application.
type Locker interface {
	Acquire(ctx context.Context, appID string) (release func(), err error)
}

// Service is the lifecycle orchestrator. All upstream sequencing is strictly
// ordered; there is no fan-out within one operation.
type Service struct {
	upstream  UpstreamClient
	snapshots SnapshotReader
	progress  ProgressStore
	locks     Locker
	logger    logger.Logger
}

func NewService(uc UpstreamClient, snapshots SnapshotReader, progress ProgressStore, locks Locker, log logger.Logger) *Service {
	return &Service{
		upstream:  uc,
		snapshots: snapshots,
		progress:  progress,
		locks:     locks,
		logger:    log.WithFields(map[string]interface{}{"component": "broker"}),
	}
}

// precheck gates every operation: token must be present and the application
// must exist in the secondary store before any upstream call is issued.
func (s *Service) precheck(ctx context.Context, token, appID string) (*models.ApplicationSnapshot, error) {
	if token == "" {
		return nil, brokererrors.NewAuthMissing()
	}
	return s.snapshots.Get(ctx, appID)
}

// GetLimit runs upstream scoring and turns the resulting limit into period
// options. The progress marker is upserted on every branch so repeated calls
// stay idempotent.
func (s *Service) GetLimit(ctx context.Context, token string, in LimitInput) (*LimitOutput, error) {
	snap, err := s.precheck(ctx, token, in.AppID)
	if err != nil {
		return nil, err
	}

	env, err := s.upstream.Get(ctx, "/application/scoring/"+in.AppID, token)
	if err != nil {
		return nil, err
	}

	var scoring models.ScoringResult
	if err := env.Decode(&scoring); err != nil {
		return nil, brokererrors.NewInternal(fmt.Errorf("failed to decode scoring response: %w", err))
	}

	if err := s.progress.UpsertProgress(ctx, in.AppID); err != nil {
		return nil, err
	}

	switch {
	case scoring.LimitAmount > 0:
		if scoring.Provider == flatScheduleProvider {
			return &LimitOutput{
				Provider: scoring.Provider,
				Limit:    flatSchedule(scoring.LimitAmount),
			}, nil
		}
		options, err := s.fetchPeriodOptions(ctx, token, in.MerchantID, scoring.LimitAmount)
		if err != nil {
			return nil, err
		}
		return &LimitOutput{Provider: scoring.Provider, Limit: options}, nil

	case snap.State == models.StateFailed || snap.Status != models.StatusScoring:
		message := snap.ReasonError
		if message == "" {
			message = scoring.Message
		}
		if message == "" {
			message = "No limit available"
		}
		return nil, brokererrors.NewUpstreamRejected(0, message)

	default:
		// Scoring still in progress upstream; the caller polls.
		return &LimitOutput{Message: "waiting"}, nil
	}
}

// flatSchedule derives the local instalment options for the flat provider.
func flatSchedule(limit float64) []PeriodOption {
	months := []int{3, 6, 9, 12}
	options := make([]PeriodOption, 0, len(months))
	for _, m := range months {
		options = append(options, PeriodOption{
			Month:  m,
			Amount: limit / 12 * float64(m),
		})
	}
	return options
}

func (s *Service) fetchPeriodOptions(ctx context.Context, token, merchantID string, limit float64) ([]PeriodOption, error) {
	path := fmt.Sprintf("/application/period-summ?modelId=%s&modelName=merchant&summ=%v", merchantID, limit)
	env, err := s.upstream.Get(ctx, path, token)
	if err != nil {
		return nil, err
	}

	code, ok := env.StatusCode.HTTP()
	if !ok || code != http.StatusOK || !env.HasResult() {
		return nil, brokererrors.NewUpstreamRejected(0, "Error fetching period-summ data")
	}

	var items []struct {
		Period int     `json:"period"`
		Value  float64 `json:"value"`
	}
	if err := env.DecodeResult(&items); err != nil {
		return nil, brokererrors.NewInternal(fmt.Errorf("failed to decode period options: %w", err))
	}

	options := make([]PeriodOption, 0, len(items))
	for _, item := range items {
		options = append(options, PeriodOption{Month: item.Period, Amount: item.Value})
	}
	return options, nil
}

// CreateContract runs the product attachment and approval workflow under the
// per-application lock. Approval rejection compensates by deleting all
// products for the application; transport failures mid-workflow do not.
func (s *Service) CreateContract(ctx context.Context, token string, in ContractInput) (*ContractOutput, error) {
	snap, err := s.precheck(ctx, token, in.AppID)
	if err != nil {
		return nil, err
	}
	if snap.LimitAmount <= 0 {
		return nil, brokererrors.NewPreconditionFailed("Application has no approved limit")
	}

	release, err := s.locks.Acquire(ctx, in.AppID)
	if err != nil {
		return nil, err
	}
	defer release()

	info := snap.ClientInfo()

	if err := s.progress.UpsertProgress(ctx, in.AppID); err != nil {
		return nil, err
	}
	if err := s.progress.SetPeriod(ctx, in.AppID, in.Period); err != nil {
		return nil, err
	}

	for _, product := range in.Products {
		if err := s.createProduct(ctx, token, in.AppID, product); err != nil {
			return nil, brokererrors.From(err).WithClientInfo(info)
		}
	}

	env, err := s.upstream.PostWithToken(ctx, "/application/approve/"+in.AppID, token,
		map[string]interface{}{"period": in.Period})
	if err != nil {
		// No compensation on transport failure; products stay upstream.
		return nil, brokererrors.From(err).WithClientInfo(info)
	}
	if code, ok := env.StatusCode.HTTP(); ok && code == http.StatusBadRequest {
		s.compensate(ctx, token, in.AppID)
		return nil, brokererrors.NewUpstreamRejected(code, env.Message).WithClientInfo(info)
	}

	statusEnv, err := s.upstream.Get(ctx, "/application/get/status/"+in.AppID, token)
	if err != nil {
		return nil, brokererrors.From(err).WithClientInfo(info)
	}
	var status struct {
		IsAnorbankNewClient bool `json:"is_anorbank_new_client"`
	}
	if err := statusEnv.DecodeResult(&status); err != nil {
		return nil, brokererrors.NewInternal(err).WithClientInfo(info)
	}

	return &ContractOutput{ClientInfo: info, IsOTP: status.IsAnorbankNewClient}, nil
}

// createProduct attaches one product upstream and mirrors it locally on
// success. A product the upstream declined without failing the call is
// skipped; the workflow proceeds to approval regardless.
func (s *Service) createProduct(ctx context.Context, token, appID string, product ContractProduct) error {
	body := map[string]interface{}{
		"name":        product.Name,
		"amount":      product.Amount,
		"price":       product.Amount,
		"count":       1,
		"application": appID,
	}
	env, err := s.upstream.PostWithToken(ctx, "/products", token, body)
	if err != nil {
		return err
	}

	flag, ok := env.StatusCode.OK()
	if !ok || !flag || !env.HasResult() {
		s.logger.Warn("product creation not confirmed upstream", map[string]interface{}{
			"app_id":  appID,
			"product": product.Name,
			"message": env.Message,
		})
		return nil
	}

	var created struct {
		Application looseString `json:"application"`
		ID          looseString `json:"id"`
		Name        string      `json:"name"`
		Amount      looseString `json:"amount"`
	}
	if err := env.DecodeResult(&created); err != nil {
		return brokererrors.NewInternal(fmt.Errorf("failed to decode created product: %w", err))
	}

	return s.progress.SaveProduct(ctx, appID, string(created.ID), created.Name, string(created.Amount))
}

// compensate deletes the application's products after a rejected approval.
// Best effort; a failed compensation is logged and the rejection still
// reaches the caller.
func (s *Service) compensate(ctx context.Context, token, appID string) {
	metrics.CompensationsTotal.Inc()
	if err := s.deleteUpstreamProducts(ctx, token, appID); err != nil {
		s.logger.Error("compensation failed", map[string]interface{}{
			"app_id": appID,
			"error":  err.Error(),
		})
	}
}

// VerifyOTP forwards the one-time code. Only upstream 201 counts as success.
func (s *Service) VerifyOTP(ctx context.Context, token string, in OTPInput) (*MessageOutput, error) {
	if _, err := s.precheck(ctx, token, in.AppID); err != nil {
		return nil, err
	}

	env, err := s.upstream.PostWithToken(ctx, "/application/otp?type=new_client", token,
		map[string]interface{}{"id": in.AppID, "otp": in.OTP})
	if err != nil {
		return nil, err
	}

	if code, ok := env.StatusCode.HTTP(); ok && code == http.StatusCreated {
		return &MessageOutput{Message: "success"}, nil
	}

	message := env.Message
	if message == "" {
		message = "API request failed"
	}
	return nil, brokererrors.NewUpstreamRejected(0, message)
}

// GetStatus projects the upstream status endpoint.
func (s *Service) GetStatus(ctx context.Context, token, appID string) (*StatusOutput, error) {
	if _, err := s.precheck(ctx, token, appID); err != nil {
		return nil, err
	}

	env, err := s.upstream.Get(ctx, "/application/get/status/"+appID, token)
	if err != nil {
		return nil, err
	}
	if code, ok := env.StatusCode.HTTP(); (ok && code != http.StatusOK) || !env.HasResult() {
		return nil, upstreamFailure(env, "Failed to fetch application status")
	}

	var status StatusOutput
	if err := env.DecodeResult(&status); err != nil {
		return nil, brokererrors.NewInternal(fmt.Errorf("failed to decode status: %w", err))
	}
	return &status, nil
}

// GetByID merges the upstream detail and status endpoints into one shape.
func (s *Service) GetByID(ctx context.Context, token, appID string) (*DetailOutput, error) {
	if _, err := s.precheck(ctx, token, appID); err != nil {
		return nil, err
	}

	detailEnv, err := s.upstream.Get(ctx, "/application/get/"+appID, token)
	if err != nil {
		return nil, err
	}
	statusEnv, err := s.upstream.Get(ctx, "/application/get/status/"+appID, token)
	if err != nil {
		return nil, err
	}

	code, ok := detailEnv.StatusCode.HTTP()
	if !ok || code != http.StatusOK || !detailEnv.HasResult() {
		return nil, upstreamFailure(detailEnv, "Failed to fetch application details")
	}

	var detail struct {
		ID         interface{} `json:"id"`
		Period     interface{} `json:"period"`
		Provider   string      `json:"provider"`
		OwnerPhone string      `json:"owner_phone"`
		ClosePhone string      `json:"close_phone"`
		User       struct {
			Name        string `json:"name"`
			Surname     string `json:"surname"`
			FathersName string `json:"fathers_name"`
		} `json:"user"`
		Merchant struct {
			ID   interface{} `json:"id"`
			Name string      `json:"name"`
		} `json:"merchant"`
		Products json.RawMessage `json:"products"`
	}
	if err := detailEnv.DecodeResult(&detail); err != nil {
		return nil, brokererrors.NewInternal(fmt.Errorf("failed to decode detail: %w", err))
	}

	if !statusEnv.HasResult() {
		return nil, upstreamFailure(statusEnv, "Failed to fetch application status")
	}
	var status StatusOutput
	if err := statusEnv.DecodeResult(&status); err != nil {
		return nil, brokererrors.NewInternal(fmt.Errorf("failed to decode status: %w", err))
	}

	products := detail.Products
	if len(products) == 0 {
		products = json.RawMessage("[]")
	}

	return &DetailOutput{
		ID:                  detail.ID,
		Period:              detail.Period,
		Provider:            detail.Provider,
		BStatus:             status.BStatus,
		BState:              status.BState,
		Status:              status.Status,
		State:               status.State,
		IsAnorbankNewClient: status.IsAnorbankNewClient,
		ClientInfo: models.ClientInfo{
			Name:        detail.User.Name,
			Surname:     detail.User.Surname,
			FathersName: detail.User.FathersName,
			OwnerPhone:  detail.OwnerPhone,
			ClosePhone:  detail.ClosePhone,
		},
		Merchant: MerchantInfo{ModelID: detail.Merchant.ID, Name: detail.Merchant.Name},
		Products: products,
	}, nil
}

// GetSchedule fetches the contract schedule descriptor.
func (s *Service) GetSchedule(ctx context.Context, token, appID string) (*ScheduleOutput, error) {
	if _, err := s.precheck(ctx, token, appID); err != nil {
		return nil, err
	}

	env, err := s.upstream.Get(ctx, "/application/schedule/"+appID, token)
	if err != nil {
		return nil, err
	}

	var schedule struct {
		ScheduleFile   string      `json:"schedule_file"`
		ContractPeriod interface{} `json:"contract_period"`
		ClientFullName string      `json:"client_full_name"`
	}
	if env.HasResult() {
		if err := env.DecodeResult(&schedule); err != nil {
			return nil, brokererrors.NewInternal(fmt.Errorf("failed to decode schedule: %w", err))
		}
	}
	if schedule.ScheduleFile == "" {
		return nil, brokererrors.NewNotFoundMessage("Schedule file not found")
	}

	return &ScheduleOutput{
		PDFURL:         schedule.ScheduleFile,
		Month:          schedule.ContractPeriod,
		ClientFullName: schedule.ClientFullName,
	}, nil
}

// DownloadSchedule opens the schedule PDF as a byte stream for the transport
// to forward. The caller closes Body.
func (s *Service) DownloadSchedule(ctx context.Context, token, appID string) (*ScheduleFile, error) {
	schedule, err := s.GetSchedule(ctx, token, appID)
	if err != nil {
		return nil, err
	}

	resp, err := s.upstream.Download(ctx, schedule.PDFURL)
	if err != nil {
		return nil, &brokererrors.Error{
			Kind:       brokererrors.KindUpstreamUnavailable,
			HTTPStatus: http.StatusInternalServerError,
			Message:    "Failed to download schedule file",
			Details:    err.Error(),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}
	return &ScheduleFile{
		Body:        resp.Body,
		ContentType: contentType,
		Name:        fmt.Sprintf("schedule_%s.pdf", appID),
	}, nil
}

// DeleteProducts removes all upstream products for an application in one bulk
// call and clears the local mirror on success.
func (s *Service) DeleteProducts(ctx context.Context, token, appID string) (*MessageOutput, error) {
	if _, err := s.precheck(ctx, token, appID); err != nil {
		return nil, err
	}
	if err := s.deleteUpstreamProducts(ctx, token, appID); err != nil {
		return nil, err
	}
	return &MessageOutput{Message: "success"}, nil
}

func (s *Service) deleteUpstreamProducts(ctx context.Context, token, appID string) error {
	env, err := s.upstream.DeleteWithToken(ctx, "/products/application/"+appID, token)
	if err != nil {
		return err
	}
	if flag, ok := env.StatusCode.OK(); !ok || !flag {
		return upstreamFailure(env, "Failed to delete products")
	}
	return s.progress.DeleteProducts(ctx, appID)
}

// Reject cancels the application with the fixed reason. The upstream echo of
// reason_of_reject must match exactly; the HTTP status alone is not trusted.
func (s *Service) Reject(ctx context.Context, token, appID string) (*MessageOutput, error) {
	if _, err := s.precheck(ctx, token, appID); err != nil {
		return nil, err
	}

	env, err := s.upstream.PutWithToken(ctx, "/application/reject/"+appID, token,
		map[string]interface{}{"reject_reason": rejectReason})
	if err != nil {
		return nil, err
	}

	var echo struct {
		ReasonOfReject string `json:"reason_of_reject"`
	}
	if err := env.Decode(&echo); err != nil {
		return nil, brokererrors.NewInternal(fmt.Errorf("failed to decode reject echo: %w", err))
	}
	if echo.ReasonOfReject != rejectReason {
		return nil, upstreamFailure(env, "Rejection was not confirmed upstream")
	}
	return &MessageOutput{Message: "success"}, nil
}

// upstreamFailure builds a rejection error carrying the upstream-reported
// code and message when present, falling back to the given default.
func upstreamFailure(env *upstream.Envelope, fallback string) error {
	message := env.Message
	if message == "" {
		message = fallback
	}
	code, _ := env.StatusCode.HTTP()
	if code < http.StatusBadRequest {
		code = 0
	}
	return brokererrors.NewUpstreamRejected(code, message)
}

// looseString accepts a JSON string or number; upstream ids and amounts come
// back in either form depending on the endpoint.
type looseString string

func (l *looseString) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*l = looseString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*l = looseString(n.String())
	return nil
}
