package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/loykin/glosar/internal/guide"
	"github.com/loykin/glosar/internal/metrics"
)

var unsafeRun = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Slug makes v safe for a file name: runs of characters outside
// [A-Za-z0-9_-] become "_", and a blank result becomes "vazio".
func Slug(v string) string {
	s := unsafeRun.ReplaceAllString(strings.TrimSpace(v), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "vazio"
	}
	return s
}

// DiagnosticName returns "{YYYYMMDD-HHMMSS-micro}-{numero}-{senha}.png".
func DiagnosticName(at time.Time, numeroGuia, senha string) string {
	return fmt.Sprintf("%s-%06d-%s-%s.png",
		at.Format("20060102-150405"), at.Nanosecond()/1000, Slug(numeroGuia), Slug(senha))
}

func withScreenshot(msg, name string) string {
	if name == "" {
		return msg
	}
	return msg + " | screenshot=" + name
}

// captureDiagnostic makes one best-effort screenshot attempt and returns the
// file's base name, or "" when nothing was written.
func (e *Engine) captureDiagnostic(ctx context.Context, gc guide.Context) string {
	if !e.cfg.CaptureScreenshotOnError || e.shooter == nil {
		return ""
	}
	name := DiagnosticName(e.now(), gc.NumeroGuia, gc.Senha)
	path := filepath.Join(e.cfg.DiagnosticsDir, name)
	err := os.MkdirAll(e.cfg.DiagnosticsDir, 0o755)
	if err == nil {
		err = e.shooter.CaptureScreenshot(ctx, path)
	}
	metrics.IncDiagnosticCapture(err == nil)
	if err != nil {
		e.log(fmt.Sprintf("Falha ao capturar screenshot de erro: %v", err), "error", err)
		return ""
	}
	e.log("Screenshot de erro salva em: "+path, "path", path)
	return name
}
