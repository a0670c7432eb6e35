package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cem-sucu/ia-familiale/internal/store"
	"github.com/cem-sucu/ia-familiale/internal/store/memory"
	"github.com/cem-sucu/ia-familiale/internal/trigger"
)

const testCircle = "cercle-1"

func newTestMachine(t *testing.T) (*Machine, *memory.Driver) {
	t.Helper()
	driver := memory.New()
	machine := NewMachine(driver, driver, trigger.NewDefaultRegistry(), nil)

	ctx := context.Background()
	for _, id := range []string{"moi", "maman", "papa"} {
		err := driver.CreateMember(ctx, &store.Member{
			ID:       id,
			Name:     id,
			State:    trigger.DefaultState,
			CircleID: testCircle,
		})
		if err != nil {
			t.Fatalf("CreateMember(%s) failed: %v", id, err)
		}
	}
	return machine, driver
}

func TestCreate_ImmediateTrigger(t *testing.T) {
	machine, _ := newTestMachine(t)
	sent := time.Date(2026, 3, 2, 15, 0, 0, 0, time.Local)
	machine.SetClock(func() time.Time { return sent })

	msg, err := machine.Create(context.Background(), "moi", "maman", testCircle, "Coucou", trigger.TriggerImmediate)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if msg.Status != store.StatusDelivered {
		t.Errorf("status = %q, want delivered", msg.Status)
	}
	if msg.DeliveredAt == nil || !msg.DeliveredAt.Equal(sent) {
		t.Errorf("delivered_at = %v, want %v", msg.DeliveredAt, sent)
	}
	if !msg.SentAt.Equal(sent) {
		t.Errorf("sent_at = %v, want %v", msg.SentAt, sent)
	}
}

func TestCreate_DeferredTrigger(t *testing.T) {
	machine, _ := newTestMachine(t)

	msg, err := machine.Create(context.Background(), "moi", "maman", testCircle, "Achète du pain", "arrivee_maison")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if msg.Status != store.StatusPending {
		t.Errorf("status = %q, want pending", msg.Status)
	}
	if msg.DeliveredAt != nil {
		t.Errorf("delivered_at = %v, want nil while pending", msg.DeliveredAt)
	}
}

func TestCreate_Validation(t *testing.T) {
	machine, driver := newTestMachine(t)
	ctx := context.Background()

	err := driver.CreateMember(ctx, &store.Member{ID: "voisin", Name: "voisin", CircleID: "autre-cercle"})
	if err != nil {
		t.Fatalf("CreateMember failed: %v", err)
	}

	tests := []struct {
		name      string
		recipient string
		text      string
		trigger   string
		wantErr   error
	}{
		{name: "empty text", recipient: "maman", text: "  ", trigger: trigger.TriggerImmediate, wantErr: ErrEmptyText},
		{name: "unknown trigger", recipient: "maman", text: "salut", trigger: "plus_tard", wantErr: ErrUnknownTrigger},
		{name: "recipient outside circle", recipient: "voisin", text: "salut", trigger: trigger.TriggerImmediate, wantErr: ErrRecipientOutside},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := machine.Create(ctx, "moi", tt.recipient, testCircle, tt.text, tt.trigger)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Create = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// Scenario from the product: A sends "Achète du pain" to B with trigger
// arrivee_maison at 15:00; B changes state to a_la_maison at 18:05; exactly
// one message is delivered, stamped 18:05.
func TestChangeState_DeliversPending(t *testing.T) {
	machine, driver := newTestMachine(t)
	ctx := context.Background()

	sent := time.Date(2026, 3, 2, 15, 0, 0, 0, time.Local)
	machine.SetClock(func() time.Time { return sent })
	msg, err := machine.Create(ctx, "moi", "maman", testCircle, "Achète du pain", "arrivee_maison")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// B sees nothing while the message is pending.
	visible, err := driver.ListVisibleMessages(ctx, "maman", testCircle)
	if err != nil {
		t.Fatalf("ListVisibleMessages failed: %v", err)
	}
	if len(visible) != 0 {
		t.Fatalf("recipient sees %d messages before delivery, want 0", len(visible))
	}

	arrived := time.Date(2026, 3, 2, 18, 5, 0, 0, time.Local)
	machine.SetClock(func() time.Time { return arrived })
	result, err := machine.ChangeState(ctx, "maman", trigger.StateAtHome)
	if err != nil {
		t.Fatalf("ChangeState failed: %v", err)
	}
	if result.DeliveredCount() != 1 {
		t.Fatalf("delivered count = %d, want 1", result.DeliveredCount())
	}

	got, err := driver.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if got.Status != store.StatusDelivered {
		t.Errorf("status = %q, want delivered", got.Status)
	}
	if got.DeliveredAt == nil || !got.DeliveredAt.Equal(arrived) {
		t.Errorf("delivered_at = %v, want %v", got.DeliveredAt, arrived)
	}

	visible, err = driver.ListVisibleMessages(ctx, "maman", testCircle)
	if err != nil {
		t.Fatalf("ListVisibleMessages failed: %v", err)
	}
	if len(visible) != 1 || visible[0].Text != "Achète du pain" {
		t.Errorf("recipient snapshot = %+v, want the delivered message", visible)
	}
}

func TestChangeState_Idempotent(t *testing.T) {
	machine, _ := newTestMachine(t)
	ctx := context.Background()

	if _, err := machine.Create(ctx, "moi", "maman", testCircle, "un", "arrivee_maison"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := machine.Create(ctx, "papa", "maman", testCircle, "deux", "arrivee_maison"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	first, err := machine.ChangeState(ctx, "maman", trigger.StateAtHome)
	if err != nil {
		t.Fatalf("first ChangeState failed: %v", err)
	}
	if first.DeliveredCount() != 2 {
		t.Errorf("first delivered count = %d, want 2", first.DeliveredCount())
	}

	second, err := machine.ChangeState(ctx, "maman", trigger.StateAtHome)
	if err != nil {
		t.Fatalf("second ChangeState failed: %v", err)
	}
	if second.DeliveredCount() != 0 {
		t.Errorf("second delivered count = %d, want 0 (each message delivered exactly once)", second.DeliveredCount())
	}
}

func TestChangeState_OnlyMatchingTrigger(t *testing.T) {
	machine, driver := newTestMachine(t)
	ctx := context.Background()

	home, err := machine.Create(ctx, "moi", "maman", testCircle, "à la maison", "arrivee_maison")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	work, err := machine.Create(ctx, "moi", "maman", testCircle, "en sortant", "depart_travail")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	result, err := machine.ChangeState(ctx, "maman", trigger.StateCommuting)
	if err != nil {
		t.Fatalf("ChangeState failed: %v", err)
	}
	if result.DeliveredCount() != 1 {
		t.Fatalf("delivered count = %d, want 1", result.DeliveredCount())
	}

	gotWork, _ := driver.GetMessage(ctx, work.ID)
	if gotWork.Status != store.StatusDelivered {
		t.Errorf("depart_travail message status = %q, want delivered", gotWork.Status)
	}
	gotHome, _ := driver.GetMessage(ctx, home.ID)
	if gotHome.Status != store.StatusPending {
		t.Errorf("arrivee_maison message status = %q, want still pending", gotHome.Status)
	}
}

func TestChangeState_CircleWideMessage(t *testing.T) {
	machine, driver := newTestMachine(t)
	ctx := context.Background()

	msg, err := machine.Create(ctx, "moi", "", testCircle, "Pensez au lait", "arrivee_maison")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// The sender's own state change must not release their circle-wide message.
	result, err := machine.ChangeState(ctx, "moi", trigger.StateAtHome)
	if err != nil {
		t.Fatalf("ChangeState failed: %v", err)
	}
	if result.DeliveredCount() != 0 {
		t.Fatalf("sender's own state change delivered %d, want 0", result.DeliveredCount())
	}

	result, err = machine.ChangeState(ctx, "papa", trigger.StateAtHome)
	if err != nil {
		t.Fatalf("ChangeState failed: %v", err)
	}
	if result.DeliveredCount() != 1 {
		t.Fatalf("delivered count = %d, want 1", result.DeliveredCount())
	}

	// Once delivered, the whole circle sees it.
	for _, member := range []string{"maman", "papa"} {
		visible, err := driver.ListVisibleMessages(ctx, member, testCircle)
		if err != nil {
			t.Fatalf("ListVisibleMessages(%s) failed: %v", member, err)
		}
		if len(visible) != 1 || visible[0].ID != msg.ID {
			t.Errorf("%s sees %d messages, want the circle-wide one", member, len(visible))
		}
	}
}

func TestEdit(t *testing.T) {
	machine, driver := newTestMachine(t)
	ctx := context.Background()

	msg, err := machine.Create(ctx, "moi", "maman", testCircle, "premiere version", "arrivee_maison")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	edited, err := machine.Edit(ctx, "moi", msg.ID, "deuxieme version")
	if err != nil {
		t.Fatalf("Edit failed: %v", err)
	}
	if edited.Text != "deuxieme version" {
		t.Errorf("text = %q, want deuxieme version", edited.Text)
	}
	if edited.ID != msg.ID || edited.Trigger != msg.Trigger || !edited.SentAt.Equal(msg.SentAt) {
		t.Error("edit must hold identifier, trigger, and sent timestamp")
	}

	// Editing by someone else is a typed rejection.
	if _, err := machine.Edit(ctx, "papa", msg.ID, "pirate"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("foreign Edit = %v, want ErrInvalidTransition", err)
	}
	got, _ := driver.GetMessage(ctx, msg.ID)
	if got.Text != "deuxieme version" {
		t.Errorf("rejected edit must not change the message, text = %q", got.Text)
	}
}

func TestEditAndCancel_TerminalStates(t *testing.T) {
	machine, driver := newTestMachine(t)
	ctx := context.Background()

	delivered, err := machine.Create(ctx, "moi", "maman", testCircle, "direct", trigger.TriggerImmediate)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	canceled, err := machine.Create(ctx, "moi", "maman", testCircle, "annulé", "arrivee_maison")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := machine.Cancel(ctx, "moi", canceled.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	for _, id := range []string{delivered.ID, canceled.ID} {
		if _, err := machine.Edit(ctx, "moi", id, "trop tard"); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Edit(%s) = %v, want ErrInvalidTransition", id, err)
		}
		if _, err := machine.Cancel(ctx, "moi", id); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Cancel(%s) = %v, want ErrInvalidTransition", id, err)
		}
	}

	got, _ := driver.GetMessage(ctx, delivered.ID)
	if got.Text != "direct" || got.Status != store.StatusDelivered {
		t.Errorf("delivered message changed by rejected transition: %+v", got)
	}
}

func TestCancel_HiddenFromRecipientForever(t *testing.T) {
	machine, driver := newTestMachine(t)
	ctx := context.Background()

	msg, err := machine.Create(ctx, "moi", "maman", testCircle, "oublie ça", "arrivee_maison")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := machine.Cancel(ctx, "moi", msg.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	// Even after the trigger fires, a canceled message is never delivered.
	result, err := machine.ChangeState(ctx, "maman", trigger.StateAtHome)
	if err != nil {
		t.Fatalf("ChangeState failed: %v", err)
	}
	if result.DeliveredCount() != 0 {
		t.Errorf("canceled message was delivered")
	}

	visible, err := driver.ListVisibleMessages(ctx, "maman", testCircle)
	if err != nil {
		t.Fatalf("ListVisibleMessages failed: %v", err)
	}
	if len(visible) != 0 {
		t.Errorf("recipient sees %d messages, want 0", len(visible))
	}

	// The sender still sees their own canceled message.
	own, err := driver.ListVisibleMessages(ctx, "moi", testCircle)
	if err != nil {
		t.Fatalf("ListVisibleMessages failed: %v", err)
	}
	if len(own) != 1 || own[0].Status != store.StatusCanceled {
		t.Errorf("sender snapshot = %+v, want the canceled message", own)
	}
}

// status = delivered ⇔ delivered-timestamp != nil, across every transition.
func TestStatusTimestampInvariant(t *testing.T) {
	machine, driver := newTestMachine(t)
	ctx := context.Background()

	if _, err := machine.Create(ctx, "moi", "maman", testCircle, "a", trigger.TriggerImmediate); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	pending, err := machine.Create(ctx, "moi", "maman", testCircle, "b", "arrivee_maison")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	toCancel, err := machine.Create(ctx, "moi", "maman", testCircle, "c", "depart_travail")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := machine.Edit(ctx, "moi", pending.ID, "b2"); err != nil {
		t.Fatalf("Edit failed: %v", err)
	}
	if _, err := machine.Cancel(ctx, "moi", toCancel.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if _, err := machine.ChangeState(ctx, "maman", trigger.StateAtHome); err != nil {
		t.Fatalf("ChangeState failed: %v", err)
	}

	all, err := driver.ListVisibleMessages(ctx, "moi", testCircle)
	if err != nil {
		t.Fatalf("ListVisibleMessages failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("sender sees %d messages, want 3", len(all))
	}
	for _, m := range all {
		delivered := m.Status == store.StatusDelivered
		stamped := m.DeliveredAt != nil
		if delivered != stamped {
			t.Errorf("message %s violates invariant: status=%s delivered_at=%v", m.ID, m.Status, m.DeliveredAt)
		}
	}
}
