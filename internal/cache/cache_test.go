package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"chat-core/internal/message"
)

func newTestMessage(room, content string) *message.Message {
	return message.New("u1", "alice", room, content, time.Now())
}

func TestGetRecentMessagesUnknownRoom(t *testing.T) {
	c := New(5)
	got := c.GetRecentMessages("nowhere")
	if got == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(got) != 0 {
		t.Fatalf("expected no messages, got %d", len(got))
	}
}

func TestWindowKeepsMostRecent(t *testing.T) {
	c := New(5)
	for i := 0; i < 12; i++ {
		c.Add(newTestMessage("general", fmt.Sprintf("msg-%d", i)))
	}

	got := c.GetRecentMessages("general")
	if len(got) != 5 {
		t.Fatalf("window size: got %d, want 5", len(got))
	}
	for i, msg := range got {
		want := fmt.Sprintf("msg-%d", 7+i)
		if msg.Content != want {
			t.Errorf("message %d: got %q, want %q", i, msg.Content, want)
		}
	}
}

func TestWindowBelowCapacity(t *testing.T) {
	c := New(5)
	c.Add(newTestMessage("general", "only"))

	got := c.GetRecentMessages("general")
	if len(got) != 1 || got[0].Content != "only" {
		t.Fatalf("got %v, want a single message 'only'", got)
	}
}

func TestRoomNamesAreCaseInsensitive(t *testing.T) {
	c := New(5)
	c.Add(newTestMessage("General", "hi"))

	got := c.GetRecentMessages("gEnErAl")
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1", len(got))
	}
}

func TestPrimeReplacesAndTrims(t *testing.T) {
	c := New(5)
	c.Add(newTestMessage("general", "stale"))

	initial := make([]*message.Message, 0, 8)
	for i := 0; i < 8; i++ {
		initial = append(initial, newTestMessage("general", fmt.Sprintf("loaded-%d", i)))
	}
	c.Prime("general", initial)

	got := c.GetRecentMessages("general")
	if len(got) != 5 {
		t.Fatalf("window size after prime: got %d, want 5", len(got))
	}
	if got[0].Content != "loaded-3" || got[4].Content != "loaded-7" {
		t.Fatalf("unexpected window after prime: first %q, last %q", got[0].Content, got[4].Content)
	}

	c.Add(newTestMessage("general", "fresh"))
	got = c.GetRecentMessages("general")
	if got[len(got)-1].Content != "fresh" {
		t.Fatalf("last message after add: got %q, want 'fresh'", got[len(got)-1].Content)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	c := New(5)
	c.Add(newTestMessage("general", "a"))
	c.Add(newTestMessage("general", "b"))

	got := c.GetRecentMessages("general")
	got[0] = newTestMessage("general", "tampered")

	again := c.GetRecentMessages("general")
	if again[0].Content != "a" {
		t.Fatalf("cache window was mutated through the returned slice")
	}
}

func TestConcurrentAddSameRoom(t *testing.T) {
	const goroutines = 8
	const perGoroutine = 50

	c := New(30)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				c.Add(newTestMessage("busy", fmt.Sprintf("g%d-%d", g, i)))
			}
		}(g)
	}
	wg.Wait()

	got := c.GetRecentMessages("busy")
	if len(got) != 30 {
		t.Fatalf("window size: got %d, want 30", len(got))
	}
	for i, msg := range got {
		if msg == nil {
			t.Fatalf("nil message at index %d", i)
		}
	}
}

func TestConcurrentAddDistinctRooms(t *testing.T) {
	const rooms = 10
	const perRoom = 40

	c := New(5)
	var wg sync.WaitGroup
	for r := 0; r < rooms; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			room := fmt.Sprintf("room-%d", r)
			for i := 0; i < perRoom; i++ {
				c.Add(newTestMessage(room, fmt.Sprintf("msg-%d", i)))
			}
		}(r)
	}
	wg.Wait()

	for r := 0; r < rooms; r++ {
		room := fmt.Sprintf("room-%d", r)
		got := c.GetRecentMessages(room)
		if len(got) != 5 {
			t.Fatalf("%s window size: got %d, want 5", room, len(got))
		}
		// Per-room adds were sequential, so the tail is deterministic.
		for i, msg := range got {
			want := fmt.Sprintf("msg-%d", perRoom-5+i)
			if msg.Content != want {
				t.Errorf("%s message %d: got %q, want %q", room, i, msg.Content, want)
			}
		}
	}
}
