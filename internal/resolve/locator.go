package resolve

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Locator is a resolved element together with the surface and frame it was
// found in. Waits and writes share the deadline of the resolution that
// produced it.
type Locator struct {
	Selector string
	Query    Query
	Surface  Surface
	Frame    Frame
	Element  Element

	timeout  time.Duration
	interval time.Duration
	deadline time.Time
}

// Deadline is the end of the resolution budget.
func (l *Locator) Deadline() time.Time {
	if l.deadline.IsZero() {
		return time.Now().Add(l.timeout)
	}
	return l.deadline
}

// WaitAttached blocks until the element is present in its frame.
func (l *Locator) WaitAttached(ctx context.Context) error {
	return l.waitFor(ctx, "attached", l.Element.Attached)
}

// WaitVisible blocks until the element is rendered.
func (l *Locator) WaitVisible(ctx context.Context) error {
	return l.waitFor(ctx, "visible", l.Element.Visible)
}

// Text reads the element's value: the input value when non-empty, otherwise
// its visible text, otherwise its text content. A resolved element with no
// text at all yields ErrEmptyField.
func (l *Locator) Text(ctx context.Context) (string, error) {
	if err := l.WaitAttached(ctx); err != nil {
		return "", err
	}
	if v, err := quick(ctx, l.Element.InputValue); err == nil {
		if v = strings.TrimSpace(v); v != "" {
			return v, nil
		}
	}
	text, err := quick(ctx, l.Element.InnerText)
	if err != nil {
		text = ""
	}
	text = strings.TrimSpace(text)
	if text == "" {
		tctx, cancel := context.WithDeadline(ctx, l.Deadline())
		content, err := l.Element.TextContent(tctx)
		cancel()
		if err != nil {
			return "", fmt.Errorf("read %s: %w", l.Selector, err)
		}
		text = strings.TrimSpace(content)
	}
	if text == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyField, l.Selector)
	}
	return text, nil
}

// Fill waits for visibility then writes value.
func (l *Locator) Fill(ctx context.Context, value string) error {
	if err := l.WaitVisible(ctx); err != nil {
		return err
	}
	wctx, cancel := context.WithDeadline(ctx, l.Deadline())
	defer cancel()
	if err := l.Element.Fill(wctx, value); err != nil {
		return fmt.Errorf("fill %s: %w", l.Selector, err)
	}
	return nil
}

// Click waits for visibility then clicks.
func (l *Locator) Click(ctx context.Context) error {
	if err := l.WaitVisible(ctx); err != nil {
		return err
	}
	cctx, cancel := context.WithDeadline(ctx, l.Deadline())
	defer cancel()
	if err := l.Element.Click(cctx); err != nil {
		return fmt.Errorf("click %s: %w", l.Selector, err)
	}
	return nil
}

func (l *Locator) waitFor(ctx context.Context, state string, probe func(context.Context) (bool, error)) error {
	deadline := l.Deadline()
	var lastErr error
	for {
		ok, err := probe(ctx)
		if err == nil && ok {
			return nil
		}
		lastErr = err
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := sleep(ctx, min(l.interval, remaining)); err != nil {
			return err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("%s not %s within %s: %w", l.Selector, state, l.timeout, lastErr)
	}
	return fmt.Errorf("%s not %s within %s", l.Selector, state, l.timeout)
}

func quick(ctx context.Context, read func(context.Context) (string, error)) (string, error) {
	qctx, cancel := context.WithTimeout(ctx, quickRead)
	defer cancel()
	return read(qctx)
}
