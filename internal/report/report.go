// Package report exports the status records of a run as CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/loykin/glosar/internal/guide"
)

var header = []string{"timestamp", "indice", "total_guias", "numero_guia", "senha", "status", "mensagem"}

// FileName returns "relatorio-glosas-{lot}-{YYYYMMDD-HHMMSS}.csv".
func FileName(lot string, at time.Time) string {
	return fmt.Sprintf("relatorio-glosas-%s-%s.csv", safeLot(lot), at.Format("20060102-150405"))
}

// Export writes records to a new file under dir and returns its path.
func Export(records []guide.StatusRecord, dir, lot string) (string, error) {
	return ExportAt(records, dir, lot, time.Now())
}

func ExportAt(records []guide.StatusRecord, dir, lot string, at time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, FileName(lot, at))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	w := csv.NewWriter(f)
	_ = w.Write(header)
	for _, r := range records {
		_ = w.Write([]string{
			r.Clock(),
			strconv.Itoa(r.Index),
			strconv.Itoa(r.Total),
			r.NumeroGuia,
			r.Senha,
			string(r.Status),
			r.Message,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func safeLot(lot string) string {
	if lot == "" {
		return "sem-lote"
	}
	s := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, lot)
	if s = strings.Trim(s, "_"); s == "" {
		return "sem-lote"
	}
	return s
}
