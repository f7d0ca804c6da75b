package session

import (
	"fmt"
	"sync"
	"testing"
)

func TestAppendAndHistory(t *testing.T) {
	m := NewManager(DefaultHistoryLimit)

	m.Append("whatsapp:5511999", Turn{Role: "user", Content: "oi"})
	m.Append("whatsapp:5511999", Turn{Role: "assistant", Content: "olá!"})

	history := m.History("whatsapp:5511999")
	if len(history) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(history))
	}
	if history[0].Role != "user" || history[1].Role != "assistant" {
		t.Fatalf("unexpected roles: %s, %s", history[0].Role, history[1].Role)
	}
}

func TestHistoryUnknownKeyIsEmpty(t *testing.T) {
	m := NewManager(DefaultHistoryLimit)
	if got := m.History("telegram:123"); len(got) != 0 {
		t.Fatalf("expected empty history, got %d turns", len(got))
	}
}

func TestHistoryIsBounded(t *testing.T) {
	m := NewManager(20)
	key := "whatsapp:5511999"

	for i := 0; i < 21; i++ {
		m.Append(key, Turn{Role: "user", Content: fmt.Sprintf("msg %d", i)})
	}

	history := m.History(key)
	if len(history) != 20 {
		t.Fatalf("expected history capped at 20, got %d", len(history))
	}
	// The oldest turn is dropped, not the newest.
	if history[0].Content != "msg 1" {
		t.Fatalf("expected oldest surviving turn to be msg 1, got %q", history[0].Content)
	}
	if history[19].Content != "msg 20" {
		t.Fatalf("expected newest turn to be msg 20, got %q", history[19].Content)
	}
}

func TestSessionsAreIsolatedByKey(t *testing.T) {
	m := NewManager(DefaultHistoryLimit)

	m.Append("whatsapp:a", Turn{Role: "user", Content: "mensagem do a"})
	m.Append("whatsapp:b", Turn{Role: "user", Content: "mensagem do b"})

	if got := m.History("whatsapp:a"); len(got) != 1 || got[0].Content != "mensagem do a" {
		t.Fatalf("session a polluted: %+v", got)
	}
	if got := m.History("whatsapp:b"); len(got) != 1 || got[0].Content != "mensagem do b" {
		t.Fatalf("session b polluted: %+v", got)
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	m := NewManager(DefaultHistoryLimit)
	m.Append("k", Turn{Role: "user", Content: "original"})

	history := m.History("k")
	history[0].Content = "mutated"

	if got := m.History("k"); got[0].Content != "original" {
		t.Fatalf("mutating the returned slice leaked into the session: %q", got[0].Content)
	}
}

func TestConcurrentAppends(t *testing.T) {
	m := NewManager(100)
	key := "whatsapp:shared"

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			m.Append(key, Turn{Role: "user", Content: fmt.Sprintf("c%d", n)})
		}(i)
	}
	wg.Wait()

	if got := m.Len(key); got != 50 {
		t.Fatalf("expected 50 turns after concurrent appends, got %d", got)
	}
}
