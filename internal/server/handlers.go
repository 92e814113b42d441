package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ican-broker/internal/auth"
	"ican-broker/internal/broker"
	brokererrors "ican-broker/internal/common/errors"
	"ican-broker/internal/common/metrics"
	"ican-broker/internal/common/validation"
	"ican-broker/internal/models"
)

var (
	getLimitSchema = validation.MustCompile(`{
		"type": "object",
		"required": ["app_id", "merchant_id"],
		"properties": {
			"app_id": {"type": "string", "minLength": 1},
			"merchant_id": {"type": "string", "minLength": 1}
		}
	}`)

	addProductSchema = validation.MustCompile(`{
		"type": "object",
		"required": ["app_id", "period", "products"],
		"properties": {
			"app_id": {"type": "string", "minLength": 1},
			"period": {"type": "string", "minLength": 1},
			"products": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["name", "amount"],
					"properties": {
						"name": {"type": "string", "minLength": 1}
					}
				}
			}
		}
	}`)

	addPeriodSchema = validation.MustCompile(`{
		"type": "object",
		"required": ["app_id"],
		"properties": {
			"app_id": {"type": "string", "minLength": 1}
		}
	}`)

	verifyOTPSchema = validation.MustCompile(`{
		"type": "object",
		"required": ["app_id", "otp"],
		"properties": {
			"app_id": {"type": "string", "minLength": 1},
			"otp": {"type": "string", "minLength": 1}
		}
	}`)

	signInSchema = validation.MustCompile(`{
		"type": "object",
		"required": ["username", "password"],
		"properties": {
			"username": {"type": "string", "minLength": 1},
			"password": {"type": "string", "minLength": 1}
		}
	}`)

	brokerLoginSchema = validation.MustCompile(`{
		"type": "object",
		"required": ["broker_key"],
		"properties": {
			"broker_key": {"type": "string", "minLength": 1}
		}
	}`)
)

// bearer extracts the Authorization header as-is; normalization happens at
// the upstream client boundary.
func bearer(r *http.Request) string {
	return r.Header.Get("Authorization")
}

// decode validates the request body against the schema and unmarshals it
// into v.
func decode(r *http.Request, schema *validation.Schema, v interface{}) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("failed to read request body")
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("request body must be a JSON object")
	}
	if err := schema.Validate(doc); err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *Server) writeEnvelope(w http.ResponseWriter, status int, env models.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		s.logger.Error("failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

// respond projects an operation outcome into the outward envelope and records
// the per-operation metrics.
func (s *Server) respond(w http.ResponseWriter, op string, start time.Time, result interface{}, err error) {
	metrics.BrokerOperationsTotal.WithLabelValues(op).Inc()
	metrics.BrokerOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil {
		be := brokererrors.From(err)
		metrics.BrokerOperationsFailed.WithLabelValues(op, string(be.Kind)).Inc()
		s.writeEnvelope(w, be.HTTPStatus, models.Project(nil, err))
		return
	}
	s.writeEnvelope(w, http.StatusOK, models.Project(result, nil))
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	s.writeEnvelope(w, http.StatusBadRequest, models.Fail(err.Error()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var creds auth.Credentials
	if err := decode(r, signInSchema, &creds); err != nil {
		s.badRequest(w, err)
		return
	}
	token, err := s.auth.SignIn(r.Context(), creds)
	s.respond(w, "sign_in", start, token, err)
}

func (s *Server) handleBrokerLogin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var key auth.BrokerKey
	if err := decode(r, brokerLoginSchema, &key); err != nil {
		s.badRequest(w, err)
		return
	}
	token, err := s.auth.BrokerLogin(r.Context(), key)
	s.respond(w, "broker_login", start, token, err)
}

func (s *Server) handleGetLimit(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var in broker.LimitInput
	if err := decode(r, getLimitSchema, &in); err != nil {
		s.badRequest(w, err)
		return
	}
	out, err := s.lifecycle.GetLimit(r.Context(), bearer(r), in)
	s.respond(w, "get_limit", start, out, err)
}

func (s *Server) handleCreateContract(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var in broker.ContractInput
	if err := decode(r, addProductSchema, &in); err != nil {
		s.badRequest(w, err)
		return
	}
	out, err := s.lifecycle.CreateContract(r.Context(), bearer(r), in)
	s.respond(w, "create_contract", start, out, err)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var in struct {
		AppID string `json:"app_id"`
	}
	if err := decode(r, addPeriodSchema, &in); err != nil {
		s.badRequest(w, err)
		return
	}
	out, err := s.lifecycle.GetStatus(r.Context(), bearer(r), in.AppID)
	s.respond(w, "get_status", start, out, err)
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var in broker.OTPInput
	if err := decode(r, verifyOTPSchema, &in); err != nil {
		s.badRequest(w, err)
		return
	}
	out, err := s.lifecycle.VerifyOTP(r.Context(), bearer(r), in)
	s.respond(w, "verify_otp", start, out, err)
}

// handleGetContract streams the schedule PDF straight through to the caller.
func (s *Server) handleGetContract(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	appID := chi.URLParam(r, "id")

	file, err := s.lifecycle.DownloadSchedule(r.Context(), bearer(r), appID)
	if err != nil {
		s.respond(w, "get_contract", start, nil, err)
		return
	}
	defer file.Body.Close()

	metrics.BrokerOperationsTotal.WithLabelValues("get_contract").Inc()
	metrics.BrokerOperationDuration.WithLabelValues("get_contract").Observe(time.Since(start).Seconds())

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	if _, err := io.Copy(w, file.Body); err != nil {
		s.logger.Warn("schedule stream interrupted", map[string]interface{}{
			"app_id": appID,
			"error":  err.Error(),
		})
	}
}

func (s *Server) handleGetByID(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	out, err := s.lifecycle.GetByID(r.Context(), bearer(r), chi.URLParam(r, "id"))
	s.respond(w, "get_by_id", start, out, err)
}

func (s *Server) handleDeleteProducts(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	out, err := s.lifecycle.DeleteProducts(r.Context(), bearer(r), chi.URLParam(r, "id"))
	s.respond(w, "delete_products", start, out, err)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	out, err := s.lifecycle.Reject(r.Context(), bearer(r), chi.URLParam(r, "id"))
	s.respond(w, "reject", start, out, err)
}
