package form

import (
	"fmt"
	"log/slog"

	"github.com/formvoice/formvoice/internal/events"
	"github.com/formvoice/formvoice/internal/validate"
	"github.com/formvoice/formvoice/pkg/provider/live"
)

// toolName identifies a tool the model may invoke.
type toolName string

const (
	toolGetNextFormField    toolName = "get_next_form_field"
	toolValidateFormField   toolName = "validate_form_field"
	toolSaveFormField       toolName = "save_form_field"
	toolUpdatePreviousField toolName = "update_previous_field"
	toolGetAllAnswers       toolName = "get_all_answers"
	toolGeneratePDF         toolName = "generate_registration_pdf"
)

// ArtifactGenerator produces the export artifact from the collected
// answers. Satisfied by export.FDFGenerator.
type ArtifactGenerator interface {
	Generate(answers map[string]string) ([]byte, error)
}

// ArtifactStore persists a generated artifact and returns its location.
type ArtifactStore func(data []byte) (string, error)

// Router dispatches tool-call batches from the live session onto the form
// state. Each call is handled atomically: at most one state mutation, then
// exactly one event describing the change, then the structured response.
// Responses preserve batch order, one per call.
//
// Router shares the single-writer discipline of State: HandleBatch must be
// called from the session goroutine only.
type Router struct {
	state     *State
	emitter   *events.Emitter
	generator ArtifactGenerator
	store     ArtifactStore
	sessionID string
	log       *slog.Logger
}

// RouterOption configures optional Router behavior.
type RouterOption func(*Router)

// WithArtifactStore persists generated artifacts; the returned location is
// included in the tool response and the form_complete event.
func WithArtifactStore(store ArtifactStore) RouterOption {
	return func(r *Router) { r.store = store }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) RouterOption {
	return func(r *Router) { r.log = log }
}

// NewRouter creates a Router bound to one session's state.
func NewRouter(state *State, emitter *events.Emitter, generator ArtifactGenerator, sessionID string, opts ...RouterOption) *Router {
	r := &Router{
		state:     state,
		emitter:   emitter,
		generator: generator,
		sessionID: sessionID,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// HandleBatch processes a batch of tool calls in order and returns one
// response per call. Unknown tools produce a structured error payload
// rather than failing the batch.
func (r *Router) HandleBatch(calls []live.ToolCall) []live.ToolResponse {
	responses := make([]live.ToolResponse, 0, len(calls))
	for _, call := range calls {
		r.log.Info("tool call", "tool", call.Name, "session_id", r.sessionID)

		var payload map[string]any
		switch toolName(call.Name) {
		case toolGetNextFormField:
			payload = r.getNextFormField()
		case toolValidateFormField:
			payload = r.validateFormField(call.Args)
		case toolSaveFormField:
			payload = r.saveFormField(call.Args)
		case toolUpdatePreviousField:
			payload = r.updatePreviousField(call.Args)
		case toolGetAllAnswers:
			payload = r.getAllAnswers()
		case toolGeneratePDF:
			payload = r.generatePDF()
		default:
			r.log.Warn("unhandled tool", "tool", call.Name)
			payload = map[string]any{"error": fmt.Sprintf("Unhandled tool %s", call.Name)}
		}

		responses = append(responses, live.ToolResponse{
			ID:       call.ID,
			Name:     call.Name,
			Response: payload,
		})
	}
	return responses
}

// fieldPayload converts a field to the serializable shape the model sees.
func fieldPayload(f Field) map[string]any {
	examples := f.Examples
	if examples == nil {
		examples = []string{}
	}
	p := map[string]any{
		"field_id":    f.ID,
		"label":       f.Label,
		"description": f.Description,
		"field_type":  f.Validator.Type,
		"required":    f.Required,
		"examples":    examples,
	}
	if len(f.EnumValues) > 0 {
		choices := make(map[string]string, len(f.EnumValues))
		for k, v := range f.EnumValues {
			choices[fmt.Sprint(k)] = v
		}
		p["choices"] = choices
	}
	return p
}

func (r *Router) getNextFormField() map[string]any {
	field, ok := r.state.Current()
	if !ok {
		return map[string]any{"done": true}
	}

	r.emitter.Emit(events.Event{
		Type:      events.TypeFieldChanged,
		SessionID: r.sessionID,
		Data: map[string]any{
			"field_id":         field.ID,
			"label":            field.Label,
			"description":      field.Description,
			"examples":         field.Examples,
			"current_index":    r.state.CurrentIndex(),
			"progress_percent": r.state.ProgressPercent(),
		},
	})

	return map[string]any{"done": false, "field": fieldPayload(field)}
}

func (r *Router) validateFormField(args map[string]any) map[string]any {
	value := stringArg(args, "value")
	field, ok := r.state.Current()
	if !ok {
		return map[string]any{
			"is_valid": false,
			"message":  "No field to validate. Call get_next_form_field first.",
		}
	}

	isValid, message := validate.Check(field.Validator, field.Required, value)
	if !isValid {
		r.state.SetError(field.ID, message)
	}

	r.emitter.Emit(events.Event{
		Type:      events.TypeValidationResult,
		SessionID: r.sessionID,
		Data: map[string]any{
			"field_id": field.ID,
			"value":    value,
			"is_valid": isValid,
			"message":  message,
		},
	})

	return map[string]any{"is_valid": isValid, "message": message}
}

// saveFormField validates before recording: an invalid value is never
// stored and never advances the form.
func (r *Router) saveFormField(args map[string]any) map[string]any {
	value := stringArg(args, "value")
	field, ok := r.state.Current()
	if !ok {
		return map[string]any{
			"ok":      false,
			"message": "No field to save. Call get_next_form_field first.",
		}
	}

	if isValid, message := validate.Check(field.Validator, field.Required, value); !isValid {
		r.state.SetError(field.ID, message)
		r.emitter.Emit(events.Event{
			Type:      events.TypeValidationResult,
			SessionID: r.sessionID,
			Data: map[string]any{
				"field_id": field.ID,
				"value":    value,
				"is_valid": false,
				"message":  message,
			},
		})
		return map[string]any{"ok": false, "message": message}
	}

	r.state.RecordValue(field.ID, value)
	r.state.Advance()

	r.emitter.Emit(events.Event{
		Type:      events.TypeFieldSaved,
		SessionID: r.sessionID,
		Data: map[string]any{
			"field_id":         field.ID,
			"value":            value,
			"progress_percent": r.state.ProgressPercent(),
		},
	})

	return map[string]any{"ok": true, "progress_percent": r.state.ProgressPercent()}
}

func (r *Router) updatePreviousField(args map[string]any) map[string]any {
	fieldID := stringArg(args, "field_id")
	value := stringArg(args, "value")

	field, ok := FieldByID(fieldID)
	if ok {
		if isValid, message := validate.Check(field.Validator, field.Required, value); !isValid {
			return map[string]any{"ok": false, "message": message}
		}
	}

	if err := r.state.UpdatePrevious(fieldID, value); err != nil {
		return map[string]any{"ok": false, "message": err.Error()}
	}

	r.emitter.Emit(events.Event{
		Type:      events.TypeFieldUpdated,
		SessionID: r.sessionID,
		Data: map[string]any{
			"field_id":         fieldID,
			"value":            value,
			"progress_percent": r.state.ProgressPercent(),
		},
	})

	return map[string]any{"ok": true, "progress_percent": r.state.ProgressPercent()}
}

// getAllAnswers returns the saved answers in catalogue order with labels
// and indices. Read-only: no event is emitted.
func (r *Router) getAllAnswers() map[string]any {
	answers := r.state.Answers()
	list := make([]map[string]any, 0, len(answers))
	for i := 0; i < r.state.Len(); i++ {
		f := r.state.fields[i]
		v, ok := answers[f.ID]
		if !ok {
			continue
		}
		list = append(list, map[string]any{
			"index":    i,
			"field_id": f.ID,
			"label":    f.Label,
			"value":    v,
			"display":  f.EnumDisplay(v),
		})
	}
	return map[string]any{
		"answers":          list,
		"progress_percent": r.state.ProgressPercent(),
		"complete":         r.state.IsComplete(),
	}
}

func (r *Router) generatePDF() map[string]any {
	data, err := r.generator.Generate(r.state.Answers())
	if err != nil {
		r.log.Error("artifact generation failed", "error", err)
		return map[string]any{
			"ok":      false,
			"error":   err.Error(),
			"message": "Failed to generate the registration document. Please check all required fields are filled.",
		}
	}

	location := ""
	if r.store != nil {
		location, err = r.store(data)
		if err != nil {
			r.log.Error("artifact store failed", "error", err)
			return map[string]any{
				"ok":      false,
				"error":   err.Error(),
				"message": "The registration document could not be saved.",
			}
		}
	}

	r.emitter.Emit(events.Event{
		Type:      events.TypeFormComplete,
		SessionID: r.sessionID,
		Data: map[string]any{
			"pdf_location":   location,
			"pdf_size_bytes": len(data),
		},
	})

	resp := map[string]any{"ok": true, "pdf_size_bytes": len(data)}
	if location != "" {
		resp["pdf_location"] = location
		resp["message"] = fmt.Sprintf("Registration document generated and saved to %s", location)
	}
	return resp
}

// Correct applies a manual field correction from the web layer. It follows
// the same validation, rejection, and event path as the
// update_previous_field tool. Callers must serialise it with HandleBatch.
func (r *Router) Correct(fieldID, value string) error {
	payload := r.updatePreviousField(map[string]any{"field_id": fieldID, "value": value})
	if ok, _ := payload["ok"].(bool); !ok {
		message, _ := payload["message"].(string)
		return fmt.Errorf("correct %s: %s", fieldID, message)
	}
	return nil
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	if s, ok := args[key].(string); ok {
		return s
	}
	return ""
}
