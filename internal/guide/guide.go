package guide

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// BuildKey joins the two identity fields of a guide into the lookup key.
// Surrounding whitespace is ignored on both sides.
func BuildKey(numeroGuia, senha string) string {
	return strings.TrimSpace(numeroGuia) + "|" + strings.TrimSpace(senha)
}

// Context is the identity snapshot of the guide currently displayed by the portal.
// It is read once per iteration and never cached.
type Context struct {
	NumeroGuia string `json:"numero_guia"`
	Senha      string `json:"senha"`
	Lote       string `json:"lote,omitempty"`
	Protocolo  string `json:"protocolo,omitempty"`
}

func (c Context) Key() string { return BuildKey(c.NumeroGuia, c.Senha) }

// LookupRecord is one row of the lookup table.
type LookupRecord struct {
	NumeroGuia    string          `json:"numero_guia"`
	Senha         string          `json:"senha"`
	ValorGlosa    decimal.Decimal `json:"valor_glosa"`
	Justificativa string          `json:"justificativa"`
	CodigoGlosa   string          `json:"codigo_glosa,omitempty"`
}

func (r LookupRecord) Key() string { return BuildKey(r.NumeroGuia, r.Senha) }

// Index maps composite keys to lookup records. It is read-only once built.
type Index map[string]LookupRecord

// Lookup returns the record for key, if any.
func (ix Index) Lookup(key string) (LookupRecord, bool) {
	r, ok := ix[key]
	return r, ok
}

// Status is the outcome tag of a processed guide.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// StatusRecord is an immutable outcome event.
// Index is the guide position within the batch (1-based); Seq is the emission
// order and strictly increases across a run, including retries of one guide.
type StatusRecord struct {
	Seq        int       `json:"seq"`
	Index      int       `json:"index"`
	Total      int       `json:"total"`
	NumeroGuia string    `json:"numero_guia"`
	Senha      string    `json:"senha"`
	Status     Status    `json:"status"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

// Clock returns the record creation time formatted the way reports show it.
func (r StatusRecord) Clock() string { return r.CreatedAt.Format("15:04:05") }

// Log is an append-only, concurrency-safe sequence of status records.
// Its Append method can be passed directly as a status sink.
type Log struct {
	mu      sync.RWMutex
	records []StatusRecord
}

func (l *Log) Append(r StatusRecord) {
	l.mu.Lock()
	l.records = append(l.records, r)
	l.mu.Unlock()
}

// Snapshot returns a copy of the records appended so far.
func (l *Log) Snapshot() []StatusRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]StatusRecord(nil), l.records...)
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
