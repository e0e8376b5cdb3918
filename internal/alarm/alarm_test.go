package alarm

import (
	"context"
	"errors"
	"testing"
	"time"

	llmmock "github.com/weny945/home-pi/pkg/provider/llm/mock"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreCreateGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fire := time.Now().Add(time.Hour).Truncate(time.Second)
	created, err := s.Create(ctx, Alarm{
		FireTime:  fire,
		Message:   "morning run",
		Theme:     "energetic",
		Cheerword: "Rise and shine!",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("Create returned zero id")
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.FireTime.Equal(fire) || got.Message != "morning run" ||
		got.Theme != "energetic" || got.Cheerword != "Rise and shine!" || !got.Active {
		t.Errorf("roundtrip mismatch: %+v", got)
	}

	if _, err := s.Get(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}

	// Rowids keep alarm ids small and sequential.
	next, err := s.Create(ctx, Alarm{FireTime: fire.Add(time.Hour)})
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if next.ID != created.ID+1 {
		t.Errorf("second id = %d, want %d", next.ID, created.ID+1)
	}
}

func TestStoreCreateRequiresFireTime(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create(context.Background(), Alarm{Message: "no time"}); err == nil {
		t.Error("Create accepted a zero fire time")
	}
}

func TestStoreListActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	later, _ := s.Create(ctx, Alarm{FireTime: now.Add(2 * time.Hour)})
	s.Create(ctx, Alarm{FireTime: now.Add(time.Hour)})
	cancelled, _ := s.Create(ctx, Alarm{FireTime: now.Add(3 * time.Hour)})
	if err := s.Deactivate(ctx, cancelled.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	list, err := s.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListActive returned %d alarms, want 2", len(list))
	}
	// Ordered by fire time: the one-hour alarm first.
	if list[1].ID != later.ID {
		t.Error("ListActive not ordered by fire time")
	}
}

func TestStoreDeactivateDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := s.Create(ctx, Alarm{FireTime: time.Now().Add(time.Hour)})
	if err := s.Deactivate(ctx, a.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	got, _ := s.Get(ctx, a.ID)
	if got.Active {
		t.Error("alarm still active after Deactivate")
	}

	if err := s.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Error("alarm still present after Delete")
	}
	if err := s.Delete(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestStoreClaimDue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	second, _ := s.Create(ctx, Alarm{FireTime: now.Add(-time.Minute), Message: "later"})
	first, _ := s.Create(ctx, Alarm{FireTime: now.Add(-2 * time.Minute), Message: "earlier"})
	s.Create(ctx, Alarm{FireTime: now.Add(time.Hour), Message: "future"})

	// Earliest overdue alarm claims first, one per call.
	a, err := s.ClaimDue(ctx, now)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if a == nil || a.ID != first.ID {
		t.Fatalf("claimed %+v, want the earliest overdue alarm", a)
	}
	if got, _ := s.Get(ctx, a.ID); got.Active {
		t.Error("claimed alarm still active")
	}

	a, err = s.ClaimDue(ctx, now)
	if err != nil {
		t.Fatalf("second ClaimDue: %v", err)
	}
	if a == nil || a.ID != second.ID {
		t.Fatalf("second claim = %+v, want the remaining overdue alarm", a)
	}

	a, err = s.ClaimDue(ctx, now)
	if err != nil {
		t.Fatalf("third ClaimDue: %v", err)
	}
	if a != nil {
		t.Errorf("claimed future alarm %+v", a)
	}
}

func TestSchedulerTickFires(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	var fired []Alarm
	sched := NewScheduler(SchedulerConfig{}, s, func(a Alarm) { fired = append(fired, a) }, nil)
	sched.now = func() time.Time { return now }

	s.Create(ctx, Alarm{FireTime: now.Add(-time.Second), Cheerword: "up!"})
	s.Create(ctx, Alarm{FireTime: now.Add(time.Hour)})

	sched.tick(ctx)
	if len(fired) != 1 || fired[0].Cheerword != "up!" {
		t.Fatalf("fired = %+v, want the one due alarm", fired)
	}
	sched.tick(ctx)
	if len(fired) != 1 {
		t.Errorf("alarm fired twice")
	}
}

func TestSchedulerSnooze(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	sched := NewScheduler(SchedulerConfig{SnoozeDuration: 5 * time.Minute}, s, func(Alarm) {}, nil)
	sched.now = func() time.Time { return now }

	snoozed, err := sched.Snooze(ctx, Alarm{Message: "meeting", Theme: "gentle", Cheerword: "soon"})
	if err != nil {
		t.Fatalf("Snooze: %v", err)
	}
	if snoozed.Message != "meeting" || snoozed.Cheerword != "soon" {
		t.Errorf("snoozed alarm lost fields: %+v", snoozed)
	}
	want := now.Add(5 * time.Minute).Unix()
	if snoozed.FireTime.Unix() != want {
		t.Errorf("snoozed fire time = %v, want %v", snoozed.FireTime.Unix(), want)
	}
	if list, _ := s.ListActive(ctx); len(list) != 1 {
		t.Error("snooze did not persist a new alarm")
	}
}

func TestCheerGenerator(t *testing.T) {
	ctx := context.Background()

	t.Run("model reply wins", func(t *testing.T) {
		client := &llmmock.Client{Replies: []string{`"Up and at 'em, champion!"`}}
		g := NewCheerGenerator(client, 0, nil)
		if got := g.Generate(ctx, "energetic", "gym"); got != "Up and at 'em, champion!" {
			t.Errorf("Generate = %q", got)
		}
	})

	t.Run("model error falls back to template", func(t *testing.T) {
		client := &llmmock.Client{Err: errors.New("offline")}
		g := NewCheerGenerator(client, 0, nil)
		if got := g.Generate(ctx, "gentle", ""); got != cheerTemplates["gentle"] {
			t.Errorf("Generate = %q, want gentle template", got)
		}
	})

	t.Run("empty reply falls back", func(t *testing.T) {
		client := &llmmock.Client{Replies: []string{"   "}, Fallback: " "}
		g := NewCheerGenerator(client, 0, nil)
		if got := g.Generate(ctx, "unknown-theme", ""); got != cheerTemplates[""] {
			t.Errorf("Generate = %q, want default template", got)
		}
	})

	t.Run("nil client uses templates", func(t *testing.T) {
		g := NewCheerGenerator(nil, 0, nil)
		if got := g.Generate(ctx, "", ""); got != cheerTemplates[""] {
			t.Errorf("Generate = %q", got)
		}
	})
}
