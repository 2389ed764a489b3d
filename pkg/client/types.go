package client

import "time"

// Summary mirrors the run summary served by GET /status.
type Summary struct {
	RunID     string `json:"run_id"`
	State     string `json:"state"`
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
	Successes int    `json:"successes"`
	Errors    int    `json:"errors"`
}

// CommandResponse is returned by pause, resume, skip and stop.
type CommandResponse struct {
	OK    bool   `json:"ok"`
	State string `json:"state"`
}

type RecordsQuery struct {
	Status string // SUCCESS or ERROR; empty means both
	Since  int    // only records with a greater Seq
}

type StatusRecord struct {
	Seq        int       `json:"seq"`
	Index      int       `json:"index"`
	Total      int       `json:"total"`
	NumeroGuia string    `json:"numero_guia"`
	Senha      string    `json:"senha"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// APIError is a non-200 answer of the control API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return "API error: " + e.Message }
