package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/loykin/glosar/internal/guide"
	"github.com/loykin/glosar/internal/history"
)

type fakeDriver struct {
	mu sync.Mutex

	total    int
	totalErr error
	guides   []guide.Context
	// reread replaces the guide at a position from its second read on.
	reread  map[int]guide.Context
	readErr error
	// fillErrs is consumed per key, one entry per attempt.
	fillErrs map[string][]error
	nextErr  error

	pos    int
	reads  map[int]int
	fills  []string
	nexts  int
	onFill func(key string)
}

func newFakeDriver(guides ...guide.Context) *fakeDriver {
	return &fakeDriver{
		total:    len(guides),
		guides:   guides,
		reread:   map[int]guide.Context{},
		fillErrs: map[string][]error{},
		reads:    map[int]int{},
	}
}

func (d *fakeDriver) TotalGuides(context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total, d.totalErr
}

func (d *fakeDriver) ReadContext(context.Context) (guide.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readErr != nil {
		return guide.Context{}, d.readErr
	}
	d.reads[d.pos]++
	if g, ok := d.reread[d.pos]; ok && d.reads[d.pos] > 1 {
		return g, nil
	}
	return d.guides[d.pos], nil
}

func (d *fakeDriver) FillGuide(_ context.Context, rec guide.LookupRecord) error {
	d.mu.Lock()
	key := rec.Key()
	d.fills = append(d.fills, key)
	var err error
	if q := d.fillErrs[key]; len(q) > 0 {
		err, d.fillErrs[key] = q[0], q[1:]
	}
	hook := d.onFill
	d.mu.Unlock()
	if hook != nil {
		hook(key)
	}
	return err
}

func (d *fakeDriver) NextGuide(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.nextErr != nil {
		return d.nextErr
	}
	d.nexts++
	d.pos++
	return nil
}

func (d *fakeDriver) snapshot() (fills []string, nexts int, reads map[int]int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := make(map[int]int, len(d.reads))
	for k, v := range d.reads {
		r[k] = v
	}
	return append([]string(nil), d.fills...), d.nexts, r
}

// shootingDriver adds the screenshot capability.
type shootingDriver struct {
	*fakeDriver
	shotErr error

	smu   sync.Mutex
	shots []string
}

func (d *shootingDriver) CaptureScreenshot(_ context.Context, path string) error {
	d.smu.Lock()
	d.shots = append(d.shots, path)
	d.smu.Unlock()
	return d.shotErr
}

func (d *shootingDriver) shotCount() int {
	d.smu.Lock()
	defer d.smu.Unlock()
	return len(d.shots)
}

func gc(numero, senha string) guide.Context {
	return guide.Context{NumeroGuia: numero, Senha: senha}
}

func indexOf(ctxs ...guide.Context) guide.Index {
	ix := guide.Index{}
	for _, c := range ctxs {
		r := guide.LookupRecord{
			NumeroGuia:    c.NumeroGuia,
			Senha:         c.Senha,
			ValorGlosa:    decimal.NewFromInt(10),
			Justificativa: "Texto",
		}
		ix[r.Key()] = r
	}
	return ix
}

type memSink struct {
	mu     sync.Mutex
	events []history.Event
	err    error
}

func (s *memSink) Send(_ context.Context, e history.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *memSink) all() []history.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]history.Event(nil), s.events...)
}

type fakeConn struct {
	connectErr error
	closeErr   error
	connected  bool
	closed     int
}

func (c *fakeConn) Connect(context.Context) error {
	if c.connectErr != nil {
		return c.connectErr
	}
	c.connected = true
	return nil
}

func (c *fakeConn) Close() error {
	c.closed++
	return c.closeErr
}

var errBoom = errors.New("campo indisponivel")
