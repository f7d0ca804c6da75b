package agent

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/iarabot/iara/pkg/logger"
	"github.com/iarabot/iara/pkg/store"
)

// Action kinds the model may emit. The set is closed: anything else is
// skipped, never executed partially.
const (
	ActionCreateTask     = "CREATE_TASK"
	ActionCreateHabit    = "CREATE_HABIT"
	ActionCreateReminder = "CREATE_REMINDER"
	ActionCreateFinance  = "CREATE_FINANCE"
	ActionCreateProject  = "CREATE_PROJECT"

	// actionSearch is model-internal. It must never reach the datastore,
	// but it is still stripped from the visible reply.
	actionSearch = "SEARCH"
)

// ActionRequest is a structured command embedded in model output.
type ActionRequest struct {
	Action string                 `json:"action"`
	Data   map[string]interface{} `json:"data"`
}

// ExtractEmbeddedCommand locates the first top-level brace-delimited
// substring in text, greedy-matched from the first '{' to the last '}'.
// This is a deliberately permissive heuristic: when the model emits two
// separate JSON fragments in one reply, the match spans both, and that is
// accepted as a known limitation.
//
// found reports whether a candidate substring exists; the span always
// covers it so callers can strip it from the visible text. cmd is nil when
// the substring is not valid JSON for an ActionRequest.
func ExtractEmbeddedCommand(text string) (cmd *ActionRequest, span [2]int, found bool) {
	start := strings.Index(text, "{")
	if start == -1 {
		return nil, span, false
	}
	end := strings.LastIndex(text, "}")
	if end <= start {
		return nil, span, false
	}
	span = [2]int{start, end + 1}

	var req ActionRequest
	if err := json.Unmarshal([]byte(text[start:end+1]), &req); err != nil {
		return nil, span, true
	}
	if req.Action == "" {
		return nil, span, true
	}
	return &req, span, true
}

// StripSpan removes text[span[0]:span[1]], keeping the surrounding text
// intact even when the match was spurious.
func StripSpan(text string, span [2]int) string {
	if span[0] < 0 || span[1] > len(text) || span[0] >= span[1] {
		return text
	}
	return text[:span[0]] + text[span[1]:]
}

// ActionStore is the write-only slice of the datastore the interpreter
// needs. Identifiers and timestamps are assigned by the store, never taken
// from the model payload.
type ActionStore interface {
	InsertTask(ctx context.Context, t store.Task) (string, error)
	InsertHabit(ctx context.Context, h store.Habit) (string, error)
	InsertReminder(ctx context.Context, r store.Reminder) (string, error)
	InsertFinanceEntry(ctx context.Context, e store.FinanceEntry) (string, error)
	InsertProject(ctx context.Context, p store.Project) (string, error)
}

// Interpreter validates and executes ActionRequests against the datastore.
type Interpreter struct {
	store ActionStore
	now   func() time.Time
}

func NewInterpreter(s ActionStore) *Interpreter {
	return &Interpreter{store: s, now: time.Now}
}

// Execute runs a recognized action exactly once. executed reports whether
// a datastore write was attempted: unrecognized kinds and the internal
// SEARCH pseudo-action are skipped silently.
func (in *Interpreter) Execute(ctx context.Context, cmd *ActionRequest) (executed bool, err error) {
	if cmd == nil || in.store == nil {
		return false, nil
	}

	kind := strings.ToUpper(strings.TrimSpace(cmd.Action))
	switch kind {
	case ActionCreateTask:
		var dueAt *time.Time
		if t, ok := timeField(cmd.Data, "data_limite", "prazo"); ok {
			dueAt = &t
		}
		_, err = in.store.InsertTask(ctx, store.Task{
			Description: stringField(cmd.Data, "descricao", ""),
			Priority:    stringField(cmd.Data, "prioridade", "media"),
			Status:      "pendente",
			DueAt:       dueAt,
		})
		return true, err

	case ActionCreateHabit:
		_, err = in.store.InsertHabit(ctx, store.Habit{
			Name:      stringField(cmd.Data, "nome", stringField(cmd.Data, "descricao", "")),
			Frequency: stringField(cmd.Data, "frequencia", "diaria"),
		})
		return true, err

	case ActionCreateReminder:
		dueAt, ok := timeField(cmd.Data, "data_hora", "quando")
		if !ok {
			// No usable timestamp from the model: default to tomorrow.
			dueAt = in.now().Add(24 * time.Hour)
		}
		_, err = in.store.InsertReminder(ctx, store.Reminder{
			Description: stringField(cmd.Data, "descricao", ""),
			DueAt:       dueAt,
			Importance:  stringField(cmd.Data, "importancia", "normal"),
		})
		return true, err

	case ActionCreateFinance:
		_, err = in.store.InsertFinanceEntry(ctx, store.FinanceEntry{
			Description: stringField(cmd.Data, "descricao", ""),
			Amount:      math.Abs(floatField(cmd.Data, "valor")),
			Kind:        stringField(cmd.Data, "tipo", "despesa"),
			Category:    stringField(cmd.Data, "categoria", "outros"),
			OccurredAt:  in.now(),
		})
		return true, err

	case ActionCreateProject:
		_, err = in.store.InsertProject(ctx, store.Project{
			Name:        stringField(cmd.Data, "nome", stringField(cmd.Data, "descricao", "")),
			Description: stringField(cmd.Data, "descricao", ""),
			Status:      "ativo",
		})
		return true, err

	case actionSearch:
		logger.DebugC("actions", "Skipping internal SEARCH action")
		return false, nil

	default:
		logger.WarnCF("actions", "Unrecognized action kind", map[string]interface{}{"action": cmd.Action})
		return false, nil
	}
}

func stringField(data map[string]interface{}, key, def string) string {
	if data == nil {
		return def
	}
	if v, ok := data[key].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func floatField(data map[string]interface{}, key string) float64 {
	if data == nil {
		return 0
	}
	switch v := data[key].(type) {
	case float64:
		return v
	case string:
		// Accept "50,00" as well as "50.00".
		normalized := strings.ReplaceAll(strings.TrimSpace(v), ",", ".")
		if f, err := strconv.ParseFloat(normalized, 64); err == nil {
			return f
		}
	}
	return 0
}

// timeField parses the first present key using the formats the model is
// asked to emit, most specific first.
func timeField(data map[string]interface{}, keys ...string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02 15:04",
		"2006-01-02",
	}
	for _, key := range keys {
		raw, ok := data[key].(string)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		raw = strings.TrimSpace(raw)
		for _, layout := range layouts {
			if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
