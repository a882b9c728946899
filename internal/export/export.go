// Package export turns collected form answers into the completed
// registration document.
//
// Answers are keyed by voice field id and must be mapped onto the export
// field names used by the official registration form. When a template PDF
// is configured, [PDFFormFiller] fills its AcroForm fields directly; when
// no template is available, [FDFGenerator] writes an FDF (Forms Data
// Format) sidecar that any standard PDF tool can merge with the form
// later.
package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/formvoice/formvoice/internal/form"
)

// Transform maps answers keyed by voice field id onto export field names.
// Integer-choice values become ints; everything else stays a string.
// Unknown ids are skipped silently so a stale answer can never block an
// export.
func Transform(answers map[string]string) map[string]any {
	out := make(map[string]any, len(answers))
	for id, value := range answers {
		f, ok := form.FieldByID(id)
		if !ok {
			continue
		}
		if f.Validator.Type == "integer_choice" {
			if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				out[f.ExportID] = n
				continue
			}
		}
		out[f.ExportID] = value
	}
	return out
}

// Generator produces the export artifact from raw voice answers.
type Generator interface {
	Generate(answers map[string]string) ([]byte, error)
}

// Compile-time assertion that FDFGenerator satisfies Generator.
var _ Generator = (*FDFGenerator)(nil)

// FDFGenerator renders an FDF document carrying the transformed answers.
type FDFGenerator struct {
	// TemplateRef, when set, is embedded as the /F entry so PDF tools can
	// locate the form template to fill.
	TemplateRef string
}

// Generate transforms the answers and renders them as FDF. Field order
// follows the catalogue so output is deterministic.
func (g *FDFGenerator) Generate(answers map[string]string) ([]byte, error) {
	if len(answers) == 0 {
		return nil, fmt.Errorf("export: no answers to export")
	}
	data := Transform(answers)
	if len(data) == 0 {
		return nil, fmt.Errorf("export: no known fields among %d answers", len(answers))
	}

	var buf bytes.Buffer
	buf.WriteString("%FDF-1.2\n")
	buf.WriteString("1 0 obj\n<< /FDF << /Fields [\n")
	for _, f := range form.Catalog() {
		v, ok := data[f.ExportID]
		if !ok {
			continue
		}
		fmt.Fprintf(&buf, "<< /T (%s) /V (%s) >>\n", escapeFDF(f.ExportID), escapeFDF(fmt.Sprint(v)))
	}
	buf.WriteString("]")
	if g.TemplateRef != "" {
		fmt.Fprintf(&buf, " /F (%s)", escapeFDF(g.TemplateRef))
	}
	buf.WriteString(" >> >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
	return buf.Bytes(), nil
}

// escapeFDF escapes the characters with special meaning inside an FDF
// literal string.
func escapeFDF(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
