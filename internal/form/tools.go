package form

import (
	"fmt"
	"strings"

	"github.com/formvoice/formvoice/pkg/provider/live"
)

// ToolDefinitions declares the tools exposed to the model. The names line
// up with the Router's dispatch table.
func ToolDefinitions() []live.ToolDefinition {
	stringProp := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	return []live.ToolDefinition{
		{
			Name:        string(toolGetNextFormField),
			Description: "Return metadata for the next form field to fill. Returns done=true when finished.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name: string(toolValidateFormField),
			Description: "Validate a value for the CURRENT field (from get_next_form_field). " +
				"Returns the validation result; an invalid value never advances the form.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"field_id": stringProp("The field_id of the CURRENT field you are validating"),
					"value":    stringProp("User-provided value to validate"),
				},
				"required": []string{"field_id", "value"},
			},
		},
		{
			Name: string(toolSaveFormField),
			Description: "Save the value for the CURRENT field and advance to the next. The value is " +
				"validated again before saving; always call after validate_form_field returns is_valid=true.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"field_id": stringProp("The field_id of the CURRENT field you are saving"),
					"value":    stringProp("Validated value to save"),
				},
				"required": []string{"field_id", "value"},
			},
		},
		{
			Name: string(toolUpdatePreviousField),
			Description: "Correct a field that was already completed. Only fields before the current " +
				"one can be updated; the form position does not change.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"field_id": stringProp("The field_id of the completed field to correct"),
					"value":    stringProp("The corrected value"),
				},
				"required": []string{"field_id", "value"},
			},
		},
		{
			Name:        string(toolGetAllAnswers),
			Description: "List every saved answer with its label and position, for review with the user.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name: string(toolGeneratePDF),
			Description: "Generate the filled registration document from the collected answers. " +
				"Call once, after every field has been collected and confirmed.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}

// SystemInstructions builds the conversation instructions for the live
// session. Field descriptions come from the catalogue so the prompt always
// matches the form definition.
func SystemInstructions() string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant guiding a user through completing a residence registration form.\n")
	b.WriteString("Always follow this loop: welcome -> get_next_form_field -> explain field -> " +
		"collect user reply -> validate_form_field -> if invalid, explain and ask again; " +
		"if valid, save_form_field and confirm to the user -> get_next_form_field -> repeat until done.\n")
	b.WriteString("Speak concisely, one question at a time. Reflect validation errors back with a short reason.\n")
	b.WriteString("Welcome the user directly without waiting for them to say hello first.\n")
	b.WriteString("If the user wants to change an earlier answer, use update_previous_field; " +
		"use get_all_answers to review what has been collected so far.\n")

	b.WriteString("\nAll fields to collect, in order:\n")
	for _, f := range Catalog() {
		fmt.Fprintf(&b, "- %s: %s\n", f.Label, f.Description)
	}

	b.WriteString("\nValidation rules:\n")
	b.WriteString("- Dates are 8 digits, day month year, no separators\n")
	b.WriteString("- Postal codes are 4 or 5 digits\n")
	b.WriteString("- Choice fields require the numeric index (e.g., 0, 1, 2)\n")
	b.WriteString("- All fields are required for form completion\n")
	b.WriteString("\nWhen every field is collected and validated, call generate_registration_pdf to create the final document.")
	return b.String()
}
