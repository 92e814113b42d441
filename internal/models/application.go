package models

import "time"

// Application status/state markers reported by the secondary store.
const (
	StatusScoring = "scoring"
	StateFailed   = "failed"
)

// ApplicationSnapshot is the authoritative application record read from the
// secondary store. The broker never writes it; it only gates decisions on it.
type ApplicationSnapshot struct {
	ID          string
	Status      string
	State       string
	LimitAmount float64
	OwnerPhone  string
	ClosePhone  string
	Name        string
	Surname     string
	FathersName string
	ReasonError string
}

// ClientInfo is the contact block returned to callers alongside contract
// results and approval failures.
type ClientInfo struct {
	Name        string `json:"name"`
	Surname     string `json:"surname"`
	FathersName string `json:"fathers_name"`
	OwnerPhone  string `json:"owner_phone"`
	ClosePhone  string `json:"close_phone"`
}

// ClientInfo projects the snapshot's contact fields.
func (a *ApplicationSnapshot) ClientInfo() ClientInfo {
	return ClientInfo{
		Name:        a.Name,
		Surname:     a.Surname,
		FathersName: a.FathersName,
		OwnerPhone:  a.OwnerPhone,
		ClosePhone:  a.ClosePhone,
	}
}

// ProgressRow mirrors orchestration progress for one application. Not
// authoritative; safe to lose and rebuild from upstream.
type ProgressRow struct {
	AppID     string
	Period    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProductRow mirrors one product successfully created upstream. The product
// id is upstream-assigned.
type ProductRow struct {
	AppID     string
	ProductID string
	Name      string
	Amount    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScoringResult is the transient outcome of the upstream scoring call.
type ScoringResult struct {
	Provider    string  `json:"provider"`
	LimitAmount float64 `json:"limit_amount"`
	Message     string  `json:"message"`
}
