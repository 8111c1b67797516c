package catalog

import "context"

// StaticSource serves a fixed catalog, DefaultCatalog when Catalog is nil.
type StaticSource struct {
	Catalog *Catalog
}

func (s StaticSource) Load(context.Context) (*Catalog, error) {
	if s.Catalog != nil {
		return s.Catalog, nil
	}
	return DefaultCatalog(), nil
}

func (StaticSource) Name() string { return "static" }

// DefaultCatalog is the built-in catalog for Italian legislative text.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Version: "builtin-1",
		EntityTypes: []EntityType{
			{Name: "norma", Label: "Norma", DisplayName: "Legal norm", Color: "#1f77b4"},
			{Name: "legge", Label: "Legge", DisplayName: "Law", Color: "#aec7e8"},
			{Name: "decreto", Label: "Decreto", DisplayName: "Decree", Color: "#ff7f0e"},
			{Name: "articolo", Label: "Articolo", DisplayName: "Article", Color: "#ffbb78"},
			{Name: "comma", Label: "Comma", DisplayName: "Paragraph", Color: "#2ca02c"},
			{Name: "sentenza", Label: "Sentenza", DisplayName: "Judgment", Color: "#98df8a"},
			{Name: "organo", Label: "Organo", DisplayName: "Public body", Color: "#d62728"},
			{Name: "organizzazione", Label: "Organizzazione", DisplayName: "Organization", Color: "#ff9896"},
			{Name: "persona", Label: "Persona", DisplayName: "Person", Color: "#9467bd"},
			{Name: "luogo", Label: "Luogo", DisplayName: "Location", Color: "#c5b0d5"},
			{Name: "concetto_giuridico", Label: "ConcettoGiuridico", DisplayName: "Legal concept", Color: "#8c564b"},
			{Name: "sanzione", Label: "Sanzione", DisplayName: "Sanction", Color: "#c49c94"},
			{Name: "data", Label: "Data", DisplayName: "Date", Color: "#7f7f7f", IsDate: true},
		},
		RelationTypes: []RelationType{
			{Name: "abroga", Type: "ABROGA", Aliases: []string{"abrogates", "repeals", "abrogazione"}},
			{Name: "modifica", Type: "MODIFICA", Aliases: []string{"amends", "modifies", "sostituisce il testo"}},
			{Name: "sostituisce", Type: "SOSTITUISCE", Aliases: []string{"replaces", "supersedes"}},
			{Name: "rinvia", Type: "RINVIA_A", Aliases: []string{"richiama", "cita", "refers to", "cites"}},
			{Name: "attua", Type: "ATTUA", Aliases: []string{"implements", "in attuazione di", "recepisce"}},
			{Name: "deroga", Type: "DEROGA", Aliases: []string{"derogates", "in deroga a"}},
			{Name: "emana", Type: "EMANATO_DA", Aliases: []string{"emanato da", "issued by", "adottato da"}},
			{Name: "contiene", Type: "CONTIENE", Aliases: []string{"contains", "composto da", "part of", "fa parte di"}},
			{Name: "definisce", Type: "DEFINISCE", Aliases: []string{"defines", "definition of"}},
			{Name: "prevede", Type: "PREVEDE_SANZIONE", Aliases: []string{"punisce", "sanziona", "penalizes"}},
			{Name: "entra in vigore", Type: "IN_VIGORE_DAL", Aliases: []string{"in force from", "entrata in vigore", "effective from"}},
			{Name: "applica", Type: "SI_APPLICA_A", Aliases: []string{"applies to", "si applica"}},
		},
	}
}
