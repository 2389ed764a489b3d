package lookup

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Canonical column names.
const (
	ColNumeroGuia    = "numero_guia"
	ColSenha         = "senha"
	ColValorGlosa    = "valor_glosa"
	ColJustificativa = "justificativa"
	ColCodigoGlosa   = "codigo_glosa"
)

var (
	requiredColumns = []string{ColNumeroGuia, ColSenha, ColValorGlosa, ColJustificativa}
	optionalColumns = []string{ColCodigoGlosa}
)

// aliases lists, per canonical column, the normalized headers accepted for
// it in order of preference.
var aliases = map[string][]string{
	ColNumeroGuia: {
		"numero_da_guia_no_prestador",
		"numero_da_guia_atribuido_pela_operadora",
		"numero_guia",
		"numero_da_guia",
		"numero_guia_senha",
		"num_guia",
		"nr_guia",
		"n_guia",
		"guia",
	},
	ColSenha: {"senha", "senha_da_guia", "senha_guia"},
	ColValorGlosa: {
		"valor_glosa",
		"valor_da_glosa",
		"valor_glosa_r",
		"valor_da_glosa_r",
		"valor_glosa_rs",
		"valor_glosado",
		"vl_glosa",
	},
	ColJustificativa: {
		"justificativa_para_recurso",
		"justificativa",
		"justificativa_da_glosa",
		"justificativa_glosa",
		"motivo_glosa",
		"motivo",
	},
	ColCodigoGlosa: {
		"codigo_da_glosa_da_guia",
		"codigo_glosa_da_guia",
		"codigo_da_glosa",
		"codigo_glosa",
		"cod_glosa",
	},
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeHeader folds accents, lower-cases and collapses every run of
// non-alphanumerics into "_": "Valor da Glosa (R$)" becomes "valor_da_glosa_r".
func NormalizeHeader(h string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	folded, _, err := transform.String(t, h)
	if err != nil {
		folded = h
	}
	s := strings.ToLower(strings.TrimSpace(folded))
	return strings.Trim(nonAlnum.ReplaceAllString(s, "_"), "_")
}

// mapHeaders picks, for each canonical column, the index of the first alias
// present in headers.
func mapHeaders(headers []string) (map[string]int, error) {
	pos := make(map[string]int, len(headers))
	var found []string
	for i, h := range headers {
		if h == "" {
			continue
		}
		found = append(found, h)
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}
	out := map[string]int{}
	for _, col := range append(append([]string(nil), requiredColumns...), optionalColumns...) {
		for _, a := range aliases[col] {
			if i, ok := pos[a]; ok {
				out[col] = i
				break
			}
		}
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := out[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		got := "<no header>"
		if len(found) > 0 {
			got = strings.Join(found, ", ")
		}
		return nil, &MissingColumnsError{Missing: missing, Expected: requiredColumns, Found: got}
	}
	return out, nil
}
