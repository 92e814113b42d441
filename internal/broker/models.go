package broker

import (
	"encoding/json"
	"io"

	"ican-broker/internal/models"
)

// LimitInput identifies the application and merchant for limit computation.
type LimitInput struct {
	AppID      string `json:"app_id"`
	MerchantID string `json:"merchant_id"`
}

// PeriodOption is one instalment choice offered to the client.
type PeriodOption struct {
	Month  int     `json:"month"`
	Amount float64 `json:"amount"`
}

// LimitOutput is the getLimit result. Provider and Limit are set when a
// limit is available; Message carries the "waiting" marker while scoring is
// still in progress upstream.
type LimitOutput struct {
	Provider string         `json:"provider,omitempty"`
	Limit    []PeriodOption `json:"limit,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// ContractProduct is one product to attach to an application.
type ContractProduct struct {
	Name   string      `json:"name"`
	Amount json.Number `json:"amount"`
}

// ContractInput drives the contract creation workflow.
type ContractInput struct {
	AppID    string            `json:"app_id"`
	Period   string            `json:"period"`
	Products []ContractProduct `json:"products"`
}

// ContractOutput reports whether the client must confirm via OTP, plus the
// contact block the caller needs either way.
type ContractOutput struct {
	ClientInfo models.ClientInfo `json:"client_info"`
	IsOTP      bool              `json:"is_otp"`
}

// OTPInput carries the one-time code for new-client confirmation.
type OTPInput struct {
	AppID string `json:"app_id"`
	OTP   string `json:"otp"`
}

// MessageOutput is the plain success/waiting marker some operations return.
type MessageOutput struct {
	Message string `json:"message"`
}

// StatusOutput projects the upstream status endpoint.
type StatusOutput struct {
	BStatus             interface{} `json:"b_status"`
	BState              interface{} `json:"b_state"`
	Status              string      `json:"status"`
	State               string      `json:"state"`
	IsAnorbankNewClient bool        `json:"is_anorbank_new_client"`
}

// MerchantInfo identifies the merchant an application belongs to.
type MerchantInfo struct {
	ModelID interface{} `json:"modelId"`
	Name    string      `json:"name"`
}

// DetailOutput merges the upstream detail and status endpoints into one shape.
type DetailOutput struct {
	ID                  interface{}       `json:"id"`
	Period              interface{}       `json:"period"`
	Provider            string            `json:"provider"`
	BStatus             interface{}       `json:"b_status"`
	BState              interface{}       `json:"b_state"`
	Status              string            `json:"status"`
	State               string            `json:"state"`
	IsAnorbankNewClient bool              `json:"is_anorbank_new_client"`
	ClientInfo          models.ClientInfo `json:"client_info"`
	Merchant            MerchantInfo      `json:"merchant"`
	Products            json.RawMessage   `json:"products"`
}

// ScheduleOutput describes the contract schedule document.
type ScheduleOutput struct {
	PDFURL         string      `json:"pdf_url"`
	Month          interface{} `json:"month"`
	ClientFullName string      `json:"client_full_name"`
}

// ScheduleFile is an open schedule PDF stream. The caller owns Body.
type ScheduleFile struct {
	Body        io.ReadCloser
	ContentType string
	Name        string
}
