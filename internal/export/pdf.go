package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/formvoice/formvoice/internal/form"
)

// Compile-time assertion that PDFFormFiller satisfies Generator.
var _ Generator = (*PDFFormFiller)(nil)

// PDFFormFiller fills the AcroForm fields of the registration template PDF,
// producing the completed document itself rather than an FDF sidecar.
type PDFFormFiller struct {
	// TemplatePath is the registration form PDF whose fields get filled.
	TemplatePath string
}

// Generate loads the template PDF and fills its form fields with the
// transformed answers.
func (g *PDFFormFiller) Generate(answers map[string]string) ([]byte, error) {
	payload, err := fillPayload(answers)
	if err != nil {
		return nil, err
	}

	template, err := os.ReadFile(g.TemplatePath)
	if err != nil {
		return nil, fmt.Errorf("export: read template: %w", err)
	}

	var out bytes.Buffer
	conf := model.NewDefaultConfiguration()
	if err := api.FillForm(bytes.NewReader(template), bytes.NewReader(payload), &out, conf); err != nil {
		return nil, fmt.Errorf("export: fill form %q: %w", g.TemplatePath, err)
	}
	return out.Bytes(), nil
}

// fillField is one entry in the pdfcpu form-fill JSON.
type fillField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// fillPayload renders the transformed answers as the JSON document pdfcpu
// expects for form filling. Every value is written as a text field; the
// registration template uses text inputs throughout, with choice answers
// entered as their numeric code. Field order follows the catalogue so the
// payload is deterministic.
func fillPayload(answers map[string]string) ([]byte, error) {
	if len(answers) == 0 {
		return nil, fmt.Errorf("export: no answers to export")
	}
	data := Transform(answers)
	if len(data) == 0 {
		return nil, fmt.Errorf("export: no known fields among %d answers", len(answers))
	}

	var fields []fillField
	for _, f := range form.Catalog() {
		v, ok := data[f.ExportID]
		if !ok {
			continue
		}
		fields = append(fields, fillField{Name: f.ExportID, Value: fmt.Sprint(v)})
	}

	doc := map[string]any{
		"forms": []map[string]any{
			{"textfield": fields},
		},
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("export: marshal fill payload: %w", err)
	}
	return payload, nil
}
