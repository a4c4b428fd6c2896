package store

import (
	"context"
	"errors"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/BTreeMap/PrimeBot/internal/models"
)

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}

func newSQLiteForTest(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(t.TempDir(), "nested", "primebot.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// backends returns every store that can run in this environment.
func backends(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewInMemoryStore() },
		"sqlite": func(t *testing.T) Store { return newSQLiteForTest(t) },
		"postgres": func(t *testing.T) Store {
			dsn := getenvOrSkip(t, "DATABASE_URL")
			s, err := NewPostgresStore(WithPostgresDSN(dsn))
			if err != nil {
				t.Skipf("Postgres not available: %v", err)
			}
			for _, table := range []string{"sessions", "pains", "preferences", "inbound_dedup", "outbox_messages"} {
				s.db.Exec("DELETE FROM " + table)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestSessionRoundTrip(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)

			got, err := s.GetSession("u1")
			if err != nil || got != nil {
				t.Fatalf("GetSession on empty store = %v, %v; want nil, nil", got, err)
			}

			sess := models.NewSession("u1")
			sess.Enter(models.ModeAwaitingPainDetails)
			sess.TempBodyPart = "ginocchio"
			sess.PendingPlanRequest = "voglio un piano"
			sess.Transcript = append(sess.Transcript,
				models.NewMessage(models.RoleUser, "ciao", nil),
				models.NewMessage(models.RoleAssistant, "vai qui", &models.Payload{
					Kind:       models.PayloadNavigation,
					Navigation: &models.NavigationAction{Label: "Profilo", Link: "/profile"},
				}),
			)
			if err := s.SaveSession(sess); err != nil {
				t.Fatalf("SaveSession: %v", err)
			}

			got, err = s.GetSession("u1")
			if err != nil {
				t.Fatalf("GetSession: %v", err)
			}
			if got.Mode != models.ModeAwaitingPainDetails || got.TempBodyPart != "ginocchio" || got.PendingPlanRequest != "voglio un piano" {
				t.Errorf("session fields not restored: %+v", got)
			}
			if len(got.Transcript) != 2 || got.Transcript[1].Payload == nil || got.Transcript[1].Payload.Navigation.Link != "/profile" {
				t.Errorf("transcript not restored: %+v", got.Transcript)
			}

			sess.ClearMode()
			if err := s.SaveSession(sess); err != nil {
				t.Fatalf("SaveSession overwrite: %v", err)
			}
			got, _ = s.GetSession("u1")
			if got.Mode != models.ModeNone {
				t.Errorf("Mode after overwrite = %q, want none", got.Mode)
			}

			if err := s.DeleteSession("u1"); err != nil {
				t.Fatalf("DeleteSession: %v", err)
			}
			if got, _ := s.GetSession("u1"); got != nil {
				t.Errorf("session still present after delete")
			}
		})
	}
}

func TestPainRepo(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			base := time.Now().Add(-time.Hour)

			added, err := s.AddPain("u1", models.PainRecord{Zone: "ginocchio", Source: models.PainSourceChat, AddedAt: base})
			if err != nil || !added {
				t.Fatalf("AddPain = %v, %v; want true", added, err)
			}
			added, err = s.AddPain("u1", models.PainRecord{Zone: "ginocchio", Source: models.PainSourceChat})
			if err != nil || added {
				t.Fatalf("duplicate AddPain = %v, %v; want false", added, err)
			}
			if _, err := s.AddPain("u1", models.PainRecord{Zone: "schiena", Description: "bassa", Source: models.PainSourceOnboarding, AddedAt: base.Add(time.Minute)}); err != nil {
				t.Fatalf("AddPain schiena: %v", err)
			}
			if _, err := s.AddPain("u2", models.PainRecord{Zone: "spalla", Source: models.PainSourceChat}); err != nil {
				t.Fatalf("AddPain u2: %v", err)
			}

			pains, err := s.ListPains("u1")
			if err != nil {
				t.Fatalf("ListPains: %v", err)
			}
			if len(pains) != 2 || pains[0].Zone != "ginocchio" || pains[1].Zone != "schiena" {
				t.Fatalf("ListPains = %+v", pains)
			}
			if pains[1].Description != "bassa" || pains[1].Source != models.PainSourceOnboarding {
				t.Errorf("pain fields not restored: %+v", pains[1])
			}

			removed, err := s.RemovePain("u1", "ginocchio")
			if err != nil || !removed {
				t.Fatalf("RemovePain = %v, %v", removed, err)
			}
			removed, _ = s.RemovePain("u1", "ginocchio")
			if removed {
				t.Error("RemovePain of missing zone reported true")
			}

			n, err := s.RemoveAllPains("u1")
			if err != nil || n != 1 {
				t.Fatalf("RemoveAllPains = %d, %v; want 1", n, err)
			}
			if pains, _ := s.ListPains("u2"); len(pains) != 1 {
				t.Errorf("other user's pains touched: %+v", pains)
			}
		})
	}
}

func TestPreferenceRepo(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			if p, err := s.GetPreferences("u1"); err != nil || p != nil {
				t.Fatalf("GetPreferences on empty = %v, %v", p, err)
			}
			in := models.Preferences{
				UserID:           "u1",
				Goal:             "massa muscolare",
				ExperienceLevel:  "intermedio",
				DaysPerWeek:      3,
				SessionDuration:  45,
				LimitationsAsked: true,
			}
			if err := s.SavePreferences(in); err != nil {
				t.Fatalf("SavePreferences: %v", err)
			}
			in.DaysPerWeek = 4
			in.TrainingLocation = "palestra"
			if err := s.SavePreferences(in); err != nil {
				t.Fatalf("SavePreferences update: %v", err)
			}
			got, err := s.GetPreferences("u1")
			if err != nil || got == nil {
				t.Fatalf("GetPreferences = %v, %v", got, err)
			}
			if got.DaysPerWeek != 4 || got.TrainingLocation != "palestra" || got.Goal != "massa muscolare" {
				t.Errorf("preferences = %+v", got)
			}
			if !got.LimitationsAsked || got.LimitationsAnswered {
				t.Errorf("limitation flags = %v/%v", got.LimitationsAsked, got.LimitationsAnswered)
			}
			if got.Equipment != "" {
				t.Errorf("Equipment = %q, want empty", got.Equipment)
			}
		})
	}
}

func TestDedupRepo(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			dup, err := s.IsDuplicate("m1")
			if err != nil || dup {
				t.Fatalf("IsDuplicate before record = %v, %v", dup, err)
			}
			fresh, err := s.RecordInbound("m1", "u1")
			if err != nil || !fresh {
				t.Fatalf("RecordInbound = %v, %v; want true", fresh, err)
			}
			fresh, err = s.RecordInbound("m1", "u1")
			if err != nil || fresh {
				t.Fatalf("second RecordInbound = %v, %v; want false", fresh, err)
			}
			if dup, _ := s.IsDuplicate("m1"); !dup {
				t.Error("IsDuplicate after record = false")
			}
			if err := s.MarkProcessed("m1"); err != nil {
				t.Errorf("MarkProcessed: %v", err)
			}
			if err := s.MarkProcessed("missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("MarkProcessed(missing) = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestDedupReleaseInbound(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			if _, err := s.RecordInbound("pending", "u1"); err != nil {
				t.Fatalf("RecordInbound: %v", err)
			}
			if _, err := s.RecordInbound("done", "u1"); err != nil {
				t.Fatalf("RecordInbound: %v", err)
			}
			if err := s.MarkProcessed("done"); err != nil {
				t.Fatalf("MarkProcessed: %v", err)
			}

			for _, id := range []string{"pending", "done", "missing"} {
				if err := s.ReleaseInbound(id); err != nil {
					t.Errorf("ReleaseInbound(%s): %v", id, err)
				}
			}
			if fresh, err := s.RecordInbound("pending", "u1"); err != nil || !fresh {
				t.Errorf("RecordInbound after release = %v, %v; want true", fresh, err)
			}
			if fresh, _ := s.RecordInbound("done", "u1"); fresh {
				t.Error("processed message was released")
			}
		})
	}
}

func TestOutboxLifecycle(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			now := time.Now()

			id1, err := s.EnqueueOutboxMessage("+391", OutboxKindReply, "ciao", "msg-1")
			if err != nil {
				t.Fatalf("Enqueue: %v", err)
			}
			again, err := s.EnqueueOutboxMessage("+391", OutboxKindReply, "ciao", "msg-1")
			if err != nil || again != id1 {
				t.Fatalf("dedupe Enqueue = %q, %v; want %q", again, err, id1)
			}
			id2, _ := s.EnqueueOutboxMessage("+392", OutboxKindReply, "salve", "")

			claimed, err := s.ClaimDueOutboxMessages(now.Add(time.Second), 10)
			if err != nil {
				t.Fatalf("Claim: %v", err)
			}
			if len(claimed) != 2 {
				t.Fatalf("claimed %d messages, want 2", len(claimed))
			}
			for _, m := range claimed {
				if m.Status != OutboxStatusSending || m.LockedAt == nil {
					t.Errorf("claimed message not locked: %+v", m)
				}
			}
			if more, _ := s.ClaimDueOutboxMessages(now.Add(time.Second), 10); len(more) != 0 {
				t.Errorf("re-claim returned %d messages", len(more))
			}

			if err := s.MarkOutboxMessageSent(id1); err != nil {
				t.Fatalf("MarkSent: %v", err)
			}
			// Sent messages no longer block the dedupe key.
			if id3, _ := s.EnqueueOutboxMessage("+391", OutboxKindReply, "ciao", "msg-1"); id3 == id1 {
				t.Error("dedupe matched a sent message")
			}

			retryAt := now.Add(time.Hour)
			if err := s.FailOutboxMessage(id2, "boom", retryAt); err != nil {
				t.Fatalf("Fail: %v", err)
			}
			if due, _ := s.ClaimDueOutboxMessages(now.Add(time.Minute), 10); containsID(due, id2) {
				t.Error("message claimed before its retry time")
			}
			due, _ := s.ClaimDueOutboxMessages(now.Add(2*time.Hour), 10)
			if !containsID(due, id2) {
				t.Fatal("message not claimable after retry time")
			}
			for _, m := range due {
				if m.ID == id2 && (m.Attempts != 1 || m.LastError != "boom") {
					t.Errorf("retry bookkeeping = %+v", m)
				}
			}

			if err := s.FailOutboxMessage(id2, "boom again", time.Time{}); err != nil {
				t.Fatalf("terminal Fail: %v", err)
			}
			if due, _ := s.ClaimDueOutboxMessages(now.Add(48*time.Hour), 10); containsID(due, id2) {
				t.Error("terminally failed message was claimed")
			}
		})
	}
}

func TestRequeueStaleSending(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			id, _ := s.EnqueueOutboxMessage("+391", OutboxKindReply, "ciao", "")
			lockTime := time.Now().Add(-time.Hour)
			if _, err := s.ClaimDueOutboxMessages(lockTime.Add(time.Second), 10); err != nil {
				t.Fatalf("Claim: %v", err)
			}
			n, err := s.RequeueStaleSendingMessages(time.Now().Add(-time.Minute))
			if err != nil || n != 1 {
				t.Fatalf("Requeue = %d, %v; want 1", n, err)
			}
			due, _ := s.ClaimDueOutboxMessages(time.Now(), 10)
			if !containsID(due, id) {
				t.Error("requeued message not claimable")
			}
		})
	}
}

func containsID(msgs []OutboxMessage, id string) bool {
	for _, m := range msgs {
		if m.ID == id {
			return true
		}
	}
	return false
}

func TestDetectDSNType(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"postgres://user@localhost/db", "postgres"},
		{"postgresql://localhost/db", "postgres"},
		{"host=localhost dbname=primebot sslmode=disable", "postgres"},
		{"/var/lib/primebot/state.db", "sqlite3"},
		{"file:state.db?_foreign_keys=on", "sqlite3"},
	}
	for _, tt := range tests {
		if got := DetectDSNType(tt.dsn); got != tt.want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New(): %v", err)
	}
	if _, ok := s.(*InMemoryStore); !ok {
		t.Errorf("New() = %T, want *InMemoryStore", s)
	}

	s, err = New(WithSQLiteDSN(filepath.Join(t.TempDir(), "x.db")))
	if err != nil {
		t.Fatalf("New(sqlite): %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("New(sqlite) = %T, want *SQLiteStore", s)
	}
}

func TestOutboxSenderRetriesThenFails(t *testing.T) {
	s := NewInMemoryStore()
	id, _ := s.EnqueueOutboxMessage("+391", OutboxKindReply, "ciao", "")

	calls := 0
	sender := NewOutboxSender(s, func(ctx context.Context, msg OutboxMessage) error {
		calls++
		return errors.New("transport down")
	}, WithMaxAttempts(2), WithBaseBackoff(time.Minute))
	clock := time.Now()
	sender.now = func() time.Time { return clock }

	sender.Poll(context.Background())
	msg := s.OutboxMessages()[0]
	if msg.Status != OutboxStatusQueued || msg.Attempts != 1 || msg.NextAttemptAt == nil {
		t.Fatalf("after first failure: %+v", msg)
	}
	if want := clock.Add(time.Minute); !msg.NextAttemptAt.Equal(want) {
		t.Errorf("NextAttemptAt = %v, want %v", msg.NextAttemptAt, want)
	}

	// Not yet due.
	sender.Poll(context.Background())
	if calls != 1 {
		t.Fatalf("send called %d times before backoff elapsed", calls)
	}

	clock = clock.Add(2 * time.Minute)
	sender.Poll(context.Background())
	msg = s.OutboxMessages()[0]
	if msg.ID != id || msg.Status != OutboxStatusFailed || msg.Attempts != 2 {
		t.Errorf("after final failure: %+v", msg)
	}
}

func TestOutboxSenderDelivers(t *testing.T) {
	s := NewInMemoryStore()
	s.EnqueueOutboxMessage("+391", OutboxKindReply, "primo", "")
	s.EnqueueOutboxMessage("+391", OutboxKindReply, "secondo", "")

	var bodies []string
	sender := NewOutboxSender(s, func(ctx context.Context, msg OutboxMessage) error {
		bodies = append(bodies, msg.Body)
		return nil
	})
	sender.Poll(context.Background())

	if len(bodies) != 2 || bodies[0] != "primo" || bodies[1] != "secondo" {
		t.Errorf("delivered %v, want enqueue order", bodies)
	}
	for _, m := range s.OutboxMessages() {
		if m.Status != OutboxStatusSent {
			t.Errorf("message %s status = %s", m.ID, m.Status)
		}
	}
}

func TestOutboxSenderRunStopsOnCancel(t *testing.T) {
	s := NewInMemoryStore()
	sender := NewOutboxSender(s, func(ctx context.Context, msg OutboxMessage) error { return nil }, WithPollInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sender.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
