package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "iara.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertAndListPendingTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	due := time.Date(2026, 4, 1, 18, 0, 0, 0, time.UTC)
	id, err := s.InsertTask(ctx, Task{
		Description: "pagar aluguel",
		Priority:    "alta",
		Status:      "pendente",
		DueAt:       &due,
	})
	if err != nil {
		t.Fatalf("insert task: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated id")
	}
	if _, err := s.InsertTask(ctx, Task{Description: "feita", Priority: "media", Status: "concluida"}); err != nil {
		t.Fatalf("insert completed task: %v", err)
	}

	tasks, err := s.PendingTasks(ctx, 10)
	if err != nil {
		t.Fatalf("pending tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 pending task, got %d", len(tasks))
	}
	got := tasks[0]
	if got.Description != "pagar aluguel" || got.Priority != "alta" {
		t.Fatalf("unexpected task: %+v", got)
	}
	if got.DueAt == nil || !got.DueAt.Equal(due) {
		t.Fatalf("due at = %v, want %v", got.DueAt, due)
	}
}

func TestPendingTasksRespectsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		if _, err := s.InsertTask(ctx, Task{Description: "t", Priority: "media", Status: "pendente"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	tasks, err := s.PendingTasks(ctx, 10)
	if err != nil {
		t.Fatalf("pending tasks: %v", err)
	}
	if len(tasks) != 10 {
		t.Fatalf("expected limit of 10, got %d", len(tasks))
	}
}

func TestActiveProjectsExcludesOtherStatuses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertProject(ctx, Project{Name: "Mudança", Status: "ativo"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.InsertProject(ctx, Project{Name: "Antigo", Status: "arquivado"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	projects, err := s.ActiveProjects(ctx, 5)
	if err != nil {
		t.Fatalf("active projects: %v", err)
	}
	if len(projects) != 1 || projects[0].Name != "Mudança" {
		t.Fatalf("unexpected projects: %+v", projects)
	}
}

func TestUpcomingRemindersExcludesPast(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := s.InsertReminder(ctx, Reminder{Description: "passado", DueAt: now.Add(-time.Hour), Importance: "normal"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.InsertReminder(ctx, Reminder{Description: "amanhã", DueAt: now.Add(24 * time.Hour), Importance: "alta"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.InsertReminder(ctx, Reminder{Description: "daqui a pouco", DueAt: now.Add(time.Hour), Importance: "normal"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	reminders, err := s.UpcomingReminders(ctx, now, 10)
	if err != nil {
		t.Fatalf("upcoming reminders: %v", err)
	}
	if len(reminders) != 2 {
		t.Fatalf("expected 2 upcoming reminders, got %d", len(reminders))
	}
	// Soonest first.
	if reminders[0].Description != "daqui a pouco" {
		t.Fatalf("order wrong: %+v", reminders)
	}
}

func TestFinanceSummarySince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	entries := []FinanceEntry{
		{Description: "salário", Amount: 3000, Kind: "receita", Category: "salario", OccurredAt: now},
		{Description: "mercado", Amount: 250.50, Kind: "despesa", Category: "alimentacao", OccurredAt: now},
		{Description: "farmácia", Amount: 80, Kind: "despesa", Category: "saude", OccurredAt: now},
		{Description: "antiga", Amount: 999, Kind: "despesa", Category: "outros", OccurredAt: now.AddDate(0, -2, 0)},
	}
	for _, e := range entries {
		if _, err := s.InsertFinanceEntry(ctx, e); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	summary, err := s.FinanceSummarySince(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("finance summary: %v", err)
	}
	if summary.Credits != 3000 {
		t.Fatalf("credits = %v", summary.Credits)
	}
	if summary.Debits != 330.50 {
		t.Fatalf("debits = %v", summary.Debits)
	}
	if summary.Net() != 2669.50 {
		t.Fatalf("net = %v", summary.Net())
	}
}

func TestFinanceSummaryEmptyWindow(t *testing.T) {
	s := newTestStore(t)

	summary, err := s.FinanceSummarySince(context.Background(), time.Now().AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("finance summary: %v", err)
	}
	if summary.Credits != 0 || summary.Debits != 0 {
		t.Fatalf("expected zero summary, got %+v", summary)
	}
}

func TestHabitCountsIncludeZero(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	meditarID, err := s.InsertHabit(ctx, Habit{Name: "meditar", Frequency: "diaria"})
	if err != nil {
		t.Fatalf("insert habit: %v", err)
	}
	if _, err := s.InsertHabit(ctx, Habit{Name: "correr", Frequency: "diaria"}); err != nil {
		t.Fatalf("insert habit: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := s.LogHabitEntry(ctx, meditarID, now.Add(-time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("log entry: %v", err)
		}
	}
	// Older than the window; must not count.
	if _, err := s.LogHabitEntry(ctx, meditarID, now.AddDate(0, -1, 0)); err != nil {
		t.Fatalf("log entry: %v", err)
	}

	counts, err := s.HabitCountsSince(ctx, now.AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("habit counts: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("expected both habits, got %d", len(counts))
	}
	byName := map[string]int{}
	for _, c := range counts {
		byName[c.Name] = c.Count
	}
	if byName["meditar"] != 3 {
		t.Fatalf("meditar count = %d", byName["meditar"])
	}
	if byName["correr"] != 0 {
		t.Fatalf("correr count = %d", byName["correr"])
	}
}

func TestHealthLogOptionalFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	sleep := 7.5
	if _, err := s.InsertHealthLog(ctx, HealthLog{LoggedAt: now, SleepHours: &sleep}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	logs, err := s.HealthLogsSince(ctx, now.AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("health logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	got := logs[0]
	if got.SleepHours == nil || *got.SleepHours != 7.5 {
		t.Fatalf("sleep = %v", got.SleepHours)
	}
	if got.Energy != nil || got.Weight != nil {
		t.Fatalf("unset fields came back non-nil: %+v", got)
	}
}

func TestRecentNotesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"primeira", "segunda", "terceira", "quarta"} {
		if _, err := s.InsertNote(ctx, Note{Title: title, Content: "conteúdo"}); err != nil {
			t.Fatalf("insert note: %v", err)
		}
		// RFC3339 has second precision; keep insertion order observable.
		time.Sleep(1100 * time.Millisecond)
	}

	notes, err := s.RecentNotes(ctx, 3)
	if err != nil {
		t.Fatalf("recent notes: %v", err)
	}
	if len(notes) != 3 {
		t.Fatalf("expected 3 notes, got %d", len(notes))
	}
	if notes[0].Title != "quarta" {
		t.Fatalf("newest first violated: %+v", notes)
	}
}

func TestJournalRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertJournalEntry(ctx, JournalEntry{Content: "dia corrido, mas produtivo"}); err != nil {
		t.Fatalf("insert journal: %v", err)
	}

	entries, err := s.RecentJournalEntries(ctx, 3)
	if err != nil {
		t.Fatalf("recent entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Content != "dia corrido, mas produtivo" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if entries[0].CreatedAt.IsZero() {
		t.Fatalf("created at not set")
	}
}
