package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iarabot/iara/pkg/logger"
	"github.com/iarabot/iara/pkg/store"
	"github.com/iarabot/iara/pkg/utils"
)

// Bounds for each context section. The digest has to stay small enough to
// fit every prompt, so every query is capped.
const (
	contextTasksLimit     = 10
	contextProjectsLimit  = 5
	contextRemindersLimit = 10
	contextNotesLimit     = 3
	contextJournalLimit   = 3
	notePreviewChars      = 100
	journalPreviewChars   = 150
	financeWindowDays     = 30
	healthWindowDays      = 7
)

// ContextStore is the read-only slice of the datastore the builder needs.
type ContextStore interface {
	PendingTasks(ctx context.Context, limit int) ([]store.Task, error)
	ActiveProjects(ctx context.Context, limit int) ([]store.Project, error)
	UpcomingReminders(ctx context.Context, now time.Time, limit int) ([]store.Reminder, error)
	FinanceSummarySince(ctx context.Context, since time.Time) (store.FinanceSummary, error)
	HabitCountsSince(ctx context.Context, since time.Time) ([]store.HabitCount, error)
	HealthLogsSince(ctx context.Context, since time.Time) ([]store.HealthLog, error)
	RecentNotes(ctx context.Context, limit int) ([]store.Note, error)
	RecentJournalEntries(ctx context.Context, limit int) ([]store.JournalEntry, error)
}

// ContextBuilder assembles a point-in-time textual digest of the personal
// datastore for a single request. Snapshots are never cached or reused.
type ContextBuilder struct {
	store ContextStore
	now   func() time.Time
}

func NewContextBuilder(s ContextStore) *ContextBuilder {
	return &ContextBuilder{store: s, now: time.Now}
}

// Build runs every domain query concurrently and renders the sections in a
// fixed order (tasks, projects, reminders, finances, habits, health, notes,
// journal) so prompts are deterministic for the same underlying data. A
// failing domain is skipped; if nothing contributes, the result is "".
func (cb *ContextBuilder) Build(ctx context.Context) (out string) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("context", "Context build panicked", map[string]interface{}{"panic": fmt.Sprintf("%v", r)})
			out = ""
		}
	}()

	if cb.store == nil {
		return ""
	}

	now := cb.now()
	sections := make([]string, 8)

	jobs := []func() string{
		func() string { return cb.tasksSection(ctx) },
		func() string { return cb.projectsSection(ctx) },
		func() string { return cb.remindersSection(ctx, now) },
		func() string { return cb.financeSection(ctx, now) },
		func() string { return cb.habitsSection(ctx, now) },
		func() string { return cb.healthSection(ctx, now) },
		func() string { return cb.notesSection(ctx) },
		func() string { return cb.journalSection(ctx) },
	}

	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(slot int, run func() string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.WarnCF("context", "Context section panicked", map[string]interface{}{"panic": fmt.Sprintf("%v", r)})
					sections[slot] = ""
				}
			}()
			sections[slot] = run()
		}(i, job)
	}
	wg.Wait()

	var filled []string
	for _, s := range sections {
		if s != "" {
			filled = append(filled, s)
		}
	}
	if len(filled) == 0 {
		return ""
	}
	return strings.Join(filled, "\n\n")
}

func (cb *ContextBuilder) tasksSection(ctx context.Context) string {
	tasks, err := cb.store.PendingTasks(ctx, contextTasksLimit)
	if err != nil {
		logger.WarnCF("context", "Pending tasks query failed", map[string]interface{}{"error": err.Error()})
		return ""
	}
	if len(tasks) == 0 {
		return ""
	}
	lines := []string{"Tarefas pendentes:"}
	for _, t := range tasks {
		line := fmt.Sprintf("- [%s] %s", t.Priority, t.Description)
		if t.DueAt != nil {
			line += fmt.Sprintf(" (vence %s)", t.DueAt.Format("02/01"))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (cb *ContextBuilder) projectsSection(ctx context.Context) string {
	projects, err := cb.store.ActiveProjects(ctx, contextProjectsLimit)
	if err != nil {
		logger.WarnCF("context", "Active projects query failed", map[string]interface{}{"error": err.Error()})
		return ""
	}
	if len(projects) == 0 {
		return ""
	}
	lines := []string{"Projetos ativos:"}
	for _, p := range projects {
		line := "- " + p.Name
		if p.Description != "" {
			line += ": " + utils.SingleLine(p.Description)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (cb *ContextBuilder) remindersSection(ctx context.Context, now time.Time) string {
	reminders, err := cb.store.UpcomingReminders(ctx, now, contextRemindersLimit)
	if err != nil {
		logger.WarnCF("context", "Upcoming reminders query failed", map[string]interface{}{"error": err.Error()})
		return ""
	}
	if len(reminders) == 0 {
		return ""
	}
	lines := []string{"Próximos lembretes:"}
	for _, r := range reminders {
		lines = append(lines, fmt.Sprintf("- %s %s (%s)", r.DueAt.Format("02/01 15:04"), r.Description, r.Importance))
	}
	return strings.Join(lines, "\n")
}

func (cb *ContextBuilder) financeSection(ctx context.Context, now time.Time) string {
	summary, err := cb.store.FinanceSummarySince(ctx, now.AddDate(0, 0, -financeWindowDays))
	if err != nil {
		logger.WarnCF("context", "Finance summary query failed", map[string]interface{}{"error": err.Error()})
		return ""
	}
	if summary.Credits == 0 && summary.Debits == 0 {
		return ""
	}
	return fmt.Sprintf("Finanças (últimos %d dias): entradas R$ %.2f | saídas R$ %.2f | saldo R$ %.2f",
		financeWindowDays, summary.Credits, summary.Debits, summary.Net())
}

func (cb *ContextBuilder) habitsSection(ctx context.Context, now time.Time) string {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	counts, err := cb.store.HabitCountsSince(ctx, monthStart)
	if err != nil {
		logger.WarnCF("context", "Habit counts query failed", map[string]interface{}{"error": err.Error()})
		return ""
	}
	if len(counts) == 0 {
		return ""
	}
	lines := []string{"Hábitos este mês:"}
	for _, c := range counts {
		lines = append(lines, fmt.Sprintf("- %s: %dx", c.Name, c.Count))
	}
	return strings.Join(lines, "\n")
}

func (cb *ContextBuilder) healthSection(ctx context.Context, now time.Time) string {
	logs, err := cb.store.HealthLogsSince(ctx, now.AddDate(0, 0, -healthWindowDays))
	if err != nil {
		logger.WarnCF("context", "Health logs query failed", map[string]interface{}{"error": err.Error()})
		return ""
	}
	if len(logs) == 0 {
		return ""
	}
	lines := []string{fmt.Sprintf("Saúde (últimos %d dias):", healthWindowDays)}
	for _, l := range logs {
		var parts []string
		if l.SleepHours != nil {
			parts = append(parts, fmt.Sprintf("sono %.1fh", *l.SleepHours))
		}
		if l.Energy != nil {
			parts = append(parts, fmt.Sprintf("energia %d/10", *l.Energy))
		}
		if l.Weight != nil {
			parts = append(parts, fmt.Sprintf("peso %.1fkg", *l.Weight))
		}
		if len(parts) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", l.LoggedAt.Format("02/01"), strings.Join(parts, ", ")))
	}
	if len(lines) == 1 {
		return ""
	}
	return strings.Join(lines, "\n")
}

func (cb *ContextBuilder) notesSection(ctx context.Context) string {
	notes, err := cb.store.RecentNotes(ctx, contextNotesLimit)
	if err != nil {
		logger.WarnCF("context", "Recent notes query failed", map[string]interface{}{"error": err.Error()})
		return ""
	}
	if len(notes) == 0 {
		return ""
	}
	lines := []string{"Notas recentes:"}
	for _, n := range notes {
		preview := utils.Truncate(utils.SingleLine(n.Content), notePreviewChars)
		if n.Title != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", n.Title, preview))
		} else {
			lines = append(lines, "- "+preview)
		}
	}
	return strings.Join(lines, "\n")
}

func (cb *ContextBuilder) journalSection(ctx context.Context) string {
	entries, err := cb.store.RecentJournalEntries(ctx, contextJournalLimit)
	if err != nil {
		logger.WarnCF("context", "Journal entries query failed", map[string]interface{}{"error": err.Error()})
		return ""
	}
	if len(entries) == 0 {
		return ""
	}
	lines := []string{"Diário recente:"}
	for _, e := range entries {
		preview := utils.Truncate(utils.SingleLine(e.Content), journalPreviewChars)
		lines = append(lines, fmt.Sprintf("- %s: %s", e.CreatedAt.Format("02/01"), preview))
	}
	return strings.Join(lines, "\n")
}
