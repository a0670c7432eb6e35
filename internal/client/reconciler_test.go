package client

import (
	"testing"
	"time"

	"github.com/cem-sucu/ia-familiale/internal/store"
)

func msgAt(id, status string, sentAt time.Time) *store.Message {
	return &store.Message{
		ID:       id,
		SenderID: "moi",
		Text:     "texte " + id,
		Trigger:  "arrivee_maison",
		Status:   status,
		SentAt:   sentAt,
	}
}

func TestSnapshotReplacesEverything(t *testing.T) {
	r := NewReconciler()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	r.ApplyPush(msgAt("a", store.StatusPending, base))
	r.ApplyLocal(msgAt("b", store.StatusPending, base.Add(time.Minute)))

	r.ApplySnapshot([]*store.Message{
		msgAt("c", store.StatusDelivered, base.Add(2*time.Minute)),
	})

	msgs := r.Messages()
	if len(msgs) != 1 || msgs[0].ID != "c" {
		t.Fatalf("after snapshot feed = %v, want only c", ids(msgs))
	}
}

func TestPushInsertsAndDeduplicates(t *testing.T) {
	r := NewReconciler()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	r.ApplyPush(msgAt("a", store.StatusPending, base))
	r.ApplyPush(msgAt("a", store.StatusPending, base))

	if r.Len() != 1 {
		t.Fatalf("duplicate push produced %d entries, want 1", r.Len())
	}
}

func TestPushNeverDowngradesDelivered(t *testing.T) {
	r := NewReconciler()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	delivered := msgAt("a", store.StatusDelivered, base)
	at := base.Add(time.Hour)
	delivered.DeliveredAt = &at
	r.ApplySnapshot([]*store.Message{delivered})

	// A stale push from before the delivery arrives late.
	r.ApplyPush(msgAt("a", store.StatusPending, base))

	msgs := r.Messages()
	if msgs[0].Status != store.StatusDelivered {
		t.Errorf("status = %q after stale push, want delivered", msgs[0].Status)
	}
	if msgs[0].DeliveredAt == nil {
		t.Error("delivered_at lost after stale push")
	}
}

func TestPushUpgradesPendingToDelivered(t *testing.T) {
	r := NewReconciler()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	r.ApplyPush(msgAt("a", store.StatusPending, base))

	delivered := msgAt("a", store.StatusDelivered, base)
	at := base.Add(time.Hour)
	delivered.DeliveredAt = &at
	r.ApplyPush(delivered)

	if got := r.Messages()[0].Status; got != store.StatusDelivered {
		t.Errorf("status = %q, want delivered", got)
	}
}

func TestLocalEchoIsReplacedByServerCopy(t *testing.T) {
	r := NewReconciler()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	local := msgAt("a", store.StatusPending, base)
	local.Text = "version locale"
	r.ApplyLocal(local)

	server := msgAt("a", store.StatusPending, base)
	server.Text = "version serveur"
	r.ApplyPush(server)

	if got := r.Messages()[0].Text; got != "version serveur" {
		t.Errorf("text = %q, want the server copy", got)
	}

	// A late local echo must not clobber the confirmed copy.
	r.ApplyLocal(local)
	if got := r.Messages()[0].Text; got != "version serveur" {
		t.Errorf("text = %q after late local echo, want the server copy", got)
	}
}

func TestMessagesSortedBySendTime(t *testing.T) {
	r := NewReconciler()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	r.ApplyPush(msgAt("late", store.StatusPending, base.Add(time.Hour)))
	r.ApplyPush(msgAt("early", store.StatusPending, base))
	r.ApplyPush(msgAt("middle", store.StatusPending, base.Add(30*time.Minute)))

	got := ids(r.Messages())
	want := []string{"early", "middle", "late"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestMessagesReturnsCopies(t *testing.T) {
	r := NewReconciler()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	r.ApplyPush(msgAt("a", store.StatusPending, base))

	r.Messages()[0].Text = "mutation"
	if got := r.Messages()[0].Text; got == "mutation" {
		t.Error("mutation of a returned message leaked into the reconciler")
	}
}

func ids(msgs []*store.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
