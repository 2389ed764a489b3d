package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/glosar/internal/guide"
	"github.com/loykin/glosar/internal/history"
)

// Sink indexes run events into an OpenSearch index over its REST API.
//
// Status events are written with PUT /{index}/_doc/{run_id}-{seq}, so a
// redelivered record overwrites its own document. State transitions have no
// natural identity and are appended with POST /{index}/_doc.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

func New(baseURL, index string) *Sink {
	c := &http.Client{Timeout: 5 * time.Second}
	return &Sink{client: c, baseURL: strings.TrimRight(baseURL, "/"), index: index}
}

// document is the indexed shape of an event. Timestamp and GuideKey let
// dashboards sort on time and group retries of one guide.
type document struct {
	history.Event
	Timestamp time.Time `json:"@timestamp"`
	GuideKey  string    `json:"guide_key,omitempty"`
}

func newDocument(e history.Event) document {
	d := document{Event: e, Timestamp: e.OccurredAt}
	if e.Type == history.EventStatus && e.NumeroGuia != "" {
		d.GuideKey = guide.BuildKey(e.NumeroGuia, e.Senha)
	}
	return d
}

// DocumentID returns the id a status event is stored under, or "" when the
// event should be appended with a generated id.
func DocumentID(e history.Event) string {
	if e.Type != history.EventStatus || e.RunID == "" || e.Seq <= 0 {
		return ""
	}
	return e.RunID + "-" + strconv.Itoa(e.Seq)
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	b, err := json.Marshal(newDocument(e))
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	method, u := http.MethodPost, fmt.Sprintf("%s/%s/_doc", s.baseURL, url.PathEscape(s.index))
	if id := DocumentID(e); id != "" {
		method, u = http.MethodPut, u+"/"+url.PathEscape(id)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if reason := strings.TrimSpace(string(msg)); reason != "" {
			return fmt.Errorf("opensearch index %s: status %d: %s", s.index, resp.StatusCode, reason)
		}
		return fmt.Errorf("opensearch index %s: status %d", s.index, resp.StatusCode)
	}
	return nil
}
