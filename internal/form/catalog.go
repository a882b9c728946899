// Package form holds the guided form: the field catalogue, the per-session
// collection state and the tool-call router that the live conversation
// drives.
package form

import (
	"strconv"
	"strings"

	"github.com/formvoice/formvoice/internal/validate"
)

// Field defines a single form field.
type Field struct {
	// ID is the voice-friendly identifier, e.g. "family_name_p1".
	ID string `json:"id"`
	// ExportID is the corresponding field name in the exported PDF form
	// data, e.g. "fam1".
	ExportID string `json:"export_id"`
	// Label is a short human-readable name for display.
	Label string `json:"label"`
	// Description explains what to enter; it is relayed to the model so
	// it can prompt the caller.
	Description string `json:"description"`

	Validator validate.Spec `json:"validator"`
	Examples  []string      `json:"examples,omitempty"`
	Required  bool          `json:"required"`

	// EnumValues maps integer choices to human-readable labels for
	// choice fields.
	EnumValues map[int]string `json:"enum_values,omitempty"`
}

// EnumDisplay returns the human-readable label for a choice value, or the
// raw value when the field has no enum mapping or the value is unknown.
func (f Field) EnumDisplay(value string) string {
	if len(f.EnumValues) == 0 {
		return value
	}
	idx, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return value
	}
	if label, ok := f.EnumValues[idx]; ok {
		return label
	}
	return value
}

// catalog lists the residence registration fields in collection order.
// Person 1 details first, then the move details.
var catalog = []Field{
	{
		ID:          "family_name_p1",
		ExportID:    "fam1",
		Label:       "Family name",
		Description: "Your full legal current family name including all name components. Example: Mueller, von Gräfenberg, López García",
		Validator:   validate.Spec{Type: "text"},
		Examples:    []string{"Mueller", "von Gräfenberg", "López García"},
		Required:    true,
	},
	{
		ID:          "first_name_p1",
		ExportID:    "vorn1",
		Label:       "First name(s)",
		Description: "Your first name(s) as officially registered. If multiple names, you can mark the primary one. Example: Maria, Johann, Maria-Luisa",
		Validator:   validate.Spec{Type: "text"},
		Examples:    []string{"Maria", "Johann", "Maria-Luisa"},
		Required:    true,
	},
	{
		ID:          "birth_date_p1",
		ExportID:    "gebdat1",
		Label:       "Date of birth",
		Description: "Your date of birth as 8 digits, day month year. Example: 15011990 for January 15, 1990",
		Validator:   validate.Spec{Type: "date_de"},
		Examples:    []string{"15011990", "01121985"},
		Required:    true,
	},
	{
		ID:          "birth_place_p1",
		ExportID:    "gebort1",
		Label:       "Place of birth",
		Description: "City, region/district; if born abroad, include country. Example: Berlin, München Bayern, São Paulo Brasilien",
		Validator:   validate.Spec{Type: "text"},
		Examples:    []string{"Berlin", "München, Bayern", "São Paulo, Brasilien"},
		Required:    true,
	},
	{
		ID:          "gender_p1",
		ExportID:    "geschl1",
		Label:       "Gender",
		Description: "Your gender (choose one: 0=Male, 1=Female, 2=No answer, 3=Diverse)",
		Validator:   validate.Spec{Type: "integer_choice", Config: map[string]any{"min": 0, "max": 3}},
		Examples:    []string{"0", "1", "3"},
		Required:    true,
		EnumValues: map[int]string{
			0: "M (Male / Männlich)",
			1: "W (Female / Weiblich)",
			2: "o.A. (No answer / ohne Angabe)",
			3: "D (Diverse)",
		},
	},
	{
		ID:       "family_status_p1",
		ExportID: "famst1",
		Label:    "Family status",
		Description: "Your legal family status (choose one): 0=single, 1=married, 2=widowed, 3=divorced, " +
			"4=registered partnership, 5=partner deceased, 6=partnership dissolved, 7=marriage annulled, " +
			"8=partner declared dead, 9=unknown",
		Validator: validate.Spec{Type: "integer_choice", Config: map[string]any{"min": 0, "max": 9}},
		Examples:  []string{"0", "1"},
		Required:  true,
		EnumValues: map[int]string{
			0: "LD (Single / ledig)",
			1: "VH (Married / verheiratet)",
			2: "VW (Widowed / verwitwet)",
			3: "GS (Divorced / geschieden)",
			4: "LP (Registered partnership / Lebenspartnerschaft)",
			5: "LV (Partner deceased / Lebenspartner verstorben)",
			6: "LA (Partnership dissolved / Lebenspartnerschaft aufgehoben)",
			7: "EA (Marriage annulled / Ehe aufgehoben)",
			8: "LE (Partner declared dead / Lebenspartner für tot erklärt)",
			9: "NB (Unknown / nicht bekannt)",
		},
	},
	{
		ID:          "nationality_p1",
		ExportID:    "staatsang1",
		Label:       "Nationality",
		Description: "Your nationality (if multiple nationalities, list all; if stateless, note 'stateless'). Example: German, German and Brazilian, Stateless",
		Validator:   validate.Spec{Type: "text"},
		Examples:    []string{"German", "German, Brazilian", "Stateless"},
		Required:    true,
	},
	{
		ID:       "religion_p1",
		ExportID: "rel1",
		Label:    "Religion",
		Description: "Your religious affiliation (choose one): 0=Roman Catholic, 1=Old Catholic, 8=Protestant, " +
			"9=Lutheran, 21=None (no public religious organization), 22=Other",
		Validator: validate.Spec{Type: "integer_choice", Config: map[string]any{"min": 0, "max": 22}},
		Examples:  []string{"0", "8", "21"},
		Required:  true,
		EnumValues: map[int]string{
			0:  "rk (Roman Catholic / Römisch-katholisch)",
			1:  "ak (Old Catholic / Altkatholisch)",
			8:  "ev (Protestant / Evangelisch)",
			9:  "lt (Lutheran / Evangelisch-lutherisch)",
			21: "oa (None / keiner öffentlich-rechtlichen Religionsgesellschaft angehörig)",
			22: "other (Other / Sonstiges)",
		},
	},
	{
		ID:          "move_in_date",
		ExportID:    "einzug",
		Label:       "Move-in date",
		Description: "Date you moved into the new residence as 8 digits, day month year. Example: 15012025",
		Validator:   validate.Spec{Type: "date_de"},
		Examples:    []string{"15012025", "01022025"},
		Required:    true,
	},
	{
		ID:          "new_street_address",
		ExportID:    "neuw.strasse",
		Label:       "New address (street)",
		Description: "Street name, house number, and floor/apartment if applicable. Example: Leopoldstraße 25a, Sonnenallee 5 3. Stock",
		Validator:   validate.Spec{Type: "text"},
		Examples:    []string{"Leopoldstraße 25 a", "Sonnenallee 5, 3. Stock"},
		Required:    true,
	},
	{
		ID:          "new_postal_code",
		ExportID:    "nw.plz",
		Label:       "Postal code",
		Description: "5-digit German postal code (PLZ). Example: 80802, 10115",
		Validator:   validate.Spec{Type: "postal_code_de", Config: map[string]any{"min_digits": 4, "max_digits": 5}},
		Examples:    []string{"80802", "10115"},
		Required:    true,
	},
	{
		ID:          "new_city",
		ExportID:    "nw.ort",
		Label:       "City",
		Description: "City or municipality name. Example: München, Berlin",
		Validator:   validate.Spec{Type: "text"},
		Examples:    []string{"München", "Berlin"},
		Required:    true,
	},
	{
		ID:       "housing_type",
		ExportID: "wohnung",
		Label:    "Housing type",
		Description: "Type of residence (choose one): 0=sole residence (only apartment in Germany), " +
			"1=main residence (primary residence), 2=secondary residence (additional apartment)",
		Validator: validate.Spec{Type: "integer_choice", Config: map[string]any{"min": 0, "max": 2}},
		Examples:  []string{"0", "1"},
		Required:  true,
		EnumValues: map[int]string{
			0: "alleinige Wohnung (Sole residence)",
			1: "Hauptwohnung (Main residence)",
			2: "Nebenwohnung (Secondary residence)",
		},
	},
}

// Catalog returns the ordered field list. The returned slice is shared;
// callers must not mutate it.
func Catalog() []Field { return catalog }

// FieldByID looks up a field by its voice identifier.
func FieldByID(id string) (Field, bool) {
	for _, f := range catalog {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// FieldByExportID looks up a field by its export identifier.
func FieldByExportID(id string) (Field, bool) {
	for _, f := range catalog {
		if f.ExportID == id {
			return f, true
		}
	}
	return Field{}, false
}
