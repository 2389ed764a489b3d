// Package lookup loads the lookup table of appeal payloads keyed by guide
// number and password.
package lookup

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/loykin/glosar/internal/guide"
)

var (
	ErrDuplicateKey      = errors.New("duplicate guide key")
	ErrMissingColumns    = errors.New("required columns missing")
	ErrUnsupportedFormat = errors.New("unsupported lookup file format")
)

// MissingColumnsError lists the required columns no header matched.
type MissingColumnsError struct {
	Missing  []string
	Expected []string
	Found    string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("required columns missing: %s (expected %s; found %s)",
		strings.Join(e.Missing, ", "), strings.Join(e.Expected, ", "), e.Found)
}

func (e *MissingColumnsError) Unwrap() error { return ErrMissingColumns }

// Load reads the lookup table at path. Only CSV is supported; export
// spreadsheets as CSV (UTF-8) first.
func Load(path string) (guide.Index, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".txt":
	case ".xlsx", ".xls":
		return nil, fmt.Errorf("%w: %s files are not read, save the sheet as CSV (UTF-8)", ErrUnsupportedFormat, ext)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}

// Read parses CSV from r. The delimiter is "," unless the header line has
// more ";" than ",", as spreadsheet exports in pt-BR locales do.
func Read(r io.Reader) (guide.Index, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && bytes.Equal(b, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}
	head, _ := br.Peek(4096)
	firstLine, _, _ := bytes.Cut(head, []byte("\n"))

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	if bytes.Count(firstLine, []byte(";")) > bytes.Count(firstLine, []byte(",")) {
		cr.Comma = ';'
	}

	raw, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("csv file has no header")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	headers := make([]string, len(raw))
	for i, h := range raw {
		headers[i] = NormalizeHeader(h)
	}
	cols, err := mapHeaders(headers)
	if err != nil {
		return nil, err
	}

	index := guide.Index{}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if blank(row) {
			continue
		}
		rec, err := toRecord(row, cols, line)
		if err != nil {
			return nil, err
		}
		key := rec.Key()
		if _, dup := index[key]; dup {
			return nil, fmt.Errorf("%w (%s) on line %d", ErrDuplicateKey, key, line)
		}
		index[key] = rec
	}
	return index, nil
}

func toRecord(row []string, cols map[string]int, line int) (guide.LookupRecord, error) {
	get := func(col string) string {
		i, ok := cols[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	rec := guide.LookupRecord{
		NumeroGuia:    get(ColNumeroGuia),
		Senha:         get(ColSenha),
		Justificativa: get(ColJustificativa),
		CodigoGlosa:   get(ColCodigoGlosa),
	}
	if rec.NumeroGuia == "" || rec.Senha == "" {
		return rec, fmt.Errorf("line %d: empty numero_guia/senha", line)
	}
	if rec.Justificativa == "" {
		return rec, fmt.Errorf("line %d: empty justificativa", line)
	}
	v, err := ParseDecimal(get(ColValorGlosa))
	if err != nil {
		return rec, fmt.Errorf("line %d: valor_glosa: %w", line, err)
	}
	rec.ValorGlosa = v
	return rec, nil
}

// ParseDecimal reads "1.234,56", "1234,56" and "1234.56". An optional "R$"
// prefix is ignored.
func ParseDecimal(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "R$"))
	if s == "" {
		return decimal.Decimal{}, errors.New("empty value")
	}
	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case strings.Contains(s, ","):
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid value %q", raw)
	}
	return d, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
