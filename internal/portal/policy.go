package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/loykin/glosar/internal/resolve"
)

// Glosa codes whose justification goes to the guide-level field and whose
// value field is left untouched.
const (
	Glosa3052 = "3052"
	Glosa1702 = "1702"
)

// NormalizeGlosaCode keeps only the digits of code. A code without digits is
// returned trimmed.
func NormalizeGlosaCode(code string) string {
	text := strings.TrimSpace(code)
	if text == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return text
	}
	return b.String()
}

// IsSpecialGlosa reports whether code routes to the alternate justification.
func IsSpecialGlosa(code string) bool {
	switch NormalizeGlosaCode(code) {
	case Glosa3052, Glosa1702:
		return true
	}
	return false
}

// JustificationTarget picks the justification descriptor for code.
func JustificationTarget(code string, s Selectors) string {
	if IsSpecialGlosa(code) && strings.TrimSpace(s.Justificativa3052) != "" {
		return s.Justificativa3052
	}
	return s.Justificativa
}

// FormatValue renders v with two fraction digits and a comma separator.
func FormatValue(v decimal.Decimal) string {
	return strings.Replace(v.StringFixed(2), ".", ",", 1)
}

// fieldWriter writes value into the element behind selector.
type fieldWriter interface {
	fill(ctx context.Context, selector, value string) error
}

// writeGuide applies the write policy for one guide.
//
// Ordinary codes: justification into the default target, then the formatted
// value. Special codes: justification into the alternate target only. When
// the default target fails for an ordinary code, the justification goes to
// the alternate target instead and the value is not written.
func writeGuide(ctx context.Context, w fieldWriter, s Selectors, valor decimal.Decimal, justificativa, codigo string, log *slog.Logger) error {
	target := JustificationTarget(codigo, s)
	if IsSpecialGlosa(codigo) {
		return w.fill(ctx, target, justificativa)
	}

	err := w.fill(ctx, target, justificativa)
	if err != nil {
		if errors.Is(err, resolve.ErrSessionLost) {
			return err
		}
		alt := strings.TrimSpace(s.Justificativa3052)
		if alt == "" || alt == strings.TrimSpace(target) {
			return err
		}
		log.Warn("default justification unavailable, using guide-level field",
			"codigo_glosa", codigo, "error", err)
		if altErr := w.fill(ctx, alt, justificativa); altErr != nil {
			return fmt.Errorf("%w (fallback: %v)", err, altErr)
		}
		return nil
	}
	return w.fill(ctx, s.ValorGlosa, FormatValue(valor))
}
