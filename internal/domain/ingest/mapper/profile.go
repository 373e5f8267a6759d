package mapper

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/repository"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/sniffer"
)

// Canonical field names shared by every record kind.
const (
	FieldDate        = "date"
	FieldMarket      = "market"
	FieldYear        = "year"
	FieldAmount      = "amount"
	FieldDescription = "description"
	FieldInstrument  = "instrument"
	FieldSequence    = "sequence"
	FieldName        = "name"
	FieldValue       = "value"
	FieldStartDate   = "start_date"
	FieldEndDate     = "end_date"
)

// Profile describes the columns a record kind reads. Aliases are matched
// against normalized header names.
type Profile struct {
	Required []string            `yaml:"required"`
	Optional []string            `yaml:"optional"`
	Aliases  map[string][]string `yaml:"aliases"`
}

// Profiles is keyed by record kind.
type Profiles map[repository.RecordKind]Profile

var qualificationAliases = map[string][]string{
	FieldDate:        {"date", "fecha"},
	FieldMarket:      {"market", "mercado"},
	FieldYear:        {"year", "ano", "anio"},
	FieldAmount:      {"amount", "monto", "factor", "factor_actualizado", "updated_factor"},
	FieldDescription: {"description", "descripcion"},
	FieldInstrument:  {"instrument", "instrumento"},
	FieldSequence:    {"sequence", "secuencia", "secuencia_evento"},
}

var qualificationProfile = Profile{
	Required: []string{FieldDate, FieldMarket, FieldYear, FieldAmount, FieldDescription},
	Optional: []string{FieldInstrument, FieldSequence},
	Aliases:  qualificationAliases,
}

// DefaultProfiles returns the column profiles for every record kind.
func DefaultProfiles() Profiles {
	return Profiles{
		repository.KindFactors: {
			Required: []string{FieldName, FieldValue, FieldStartDate},
			Optional: []string{FieldEndDate},
			Aliases: map[string][]string{
				FieldName:      {"name", "nombre", "nombre_factor", "factor_name"},
				FieldValue:     {"value", "valor", "valor_factor", "factor_value"},
				FieldStartDate: {"start_date", "fecha_inicio"},
				FieldEndDate:   {"end_date", "fecha_fin"},
			},
		},
		repository.KindAmounts:           qualificationProfile,
		repository.KindQualifications:    qualificationProfile,
		repository.KindPDFQualifications: qualificationProfile,
	}
}

// LoadProfiles reads profile overrides from a YAML file and merges them over
// the defaults. An empty path returns the defaults.
func LoadProfiles(path string) (Profiles, error) {
	profiles := DefaultProfiles()
	if path == "" {
		return profiles, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open header profiles: %w", err)
	}
	defer f.Close()

	return ReadProfiles(f, profiles)
}

// ReadProfiles merges YAML overrides from r into base. Aliases are appended,
// Required and Optional replace the base lists when given.
func ReadProfiles(r io.Reader, base Profiles) (Profiles, error) {
	var overrides map[repository.RecordKind]Profile
	if err := yaml.NewDecoder(r).Decode(&overrides); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse header profiles: %w", err)
	}

	merged := make(Profiles, len(base))
	for kind, p := range base {
		merged[kind] = p.clone()
	}

	for kind, o := range overrides {
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown record kind %q in header profiles", kind)
		}
		p := merged[kind]
		if len(o.Required) > 0 {
			p.Required = o.Required
		}
		if len(o.Optional) > 0 {
			p.Optional = o.Optional
		}
		for field, aliases := range o.Aliases {
			for _, a := range aliases {
				p.Aliases[field] = append(p.Aliases[field], sniffer.NormalizeHeader(a))
			}
		}
		merged[kind] = p
	}
	return merged, nil
}

func (p Profile) clone() Profile {
	out := Profile{
		Required: append([]string(nil), p.Required...),
		Optional: append([]string(nil), p.Optional...),
		Aliases:  make(map[string][]string, len(p.Aliases)),
	}
	for field, aliases := range p.Aliases {
		out.Aliases[field] = append([]string(nil), aliases...)
	}
	return out
}
