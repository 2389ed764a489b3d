package portal

// Selectors maps each logical portal field to its target descriptor. A value
// starting with "/" or "(" is an XPath expression, anything else CSS.
type Selectors struct {
	NumeroGuia        string `mapstructure:"numero_guia" json:"numero_guia"`
	Senha             string `mapstructure:"senha" json:"senha"`
	Lote              string `mapstructure:"lote" json:"lote"`
	Protocolo         string `mapstructure:"protocolo" json:"protocolo"`
	TotalGuias        string `mapstructure:"total_guias" json:"total_guias"`
	ValorGlosa        string `mapstructure:"valor_glosa" json:"valor_glosa"`
	Justificativa     string `mapstructure:"justificativa" json:"justificativa"`
	Justificativa3052 string `mapstructure:"justificativa_3052" json:"justificativa_3052"`
	ProximaGuia       string `mapstructure:"proxima_guia" json:"proxima_guia"`
}

// DefaultSelectors returns the descriptors of the appeal form on the
// credentialed-provider portal.
func DefaultSelectors() Selectors {
	return Selectors{
		NumeroGuia:        "//*[@id='num_guia_operadora_recurso']",
		Senha:             "//*[@id='senha']",
		TotalGuias:        "//*[@id='guia_final']",
		ValorGlosa:        "//*[@id='valor_recursado']",
		Justificativa:     "//*[@id='justificativa_prestador_procedimento']",
		Justificativa3052: "//*[@id='justificativa_guia']",
		ProximaGuia:       "//*[@id='btn_guia_posterior']",
	}
}

// WithDefaults fills blank required descriptors from DefaultSelectors. Lote
// and Protocolo stay optional and are never defaulted. A blank
// Justificativa3052 is kept: it routes special codes to the default
// justification target.
func (s Selectors) WithDefaults() Selectors {
	d := DefaultSelectors()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&s.NumeroGuia, d.NumeroGuia)
	fill(&s.Senha, d.Senha)
	fill(&s.TotalGuias, d.TotalGuias)
	fill(&s.ValorGlosa, d.ValorGlosa)
	fill(&s.Justificativa, d.Justificativa)
	fill(&s.ProximaGuia, d.ProximaGuia)
	return s
}
