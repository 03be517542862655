package memory

import (
	"context"
	"testing"

	"github.com/tejaschuahan/job-scraper-bot/internal/publisher"
)

func TestPublisherStoresEvents(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), publisher.JobEvent{EventID: "e1", UserID: "42"})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), publisher.JobEvent{EventID: "e2", UserID: "7"})
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	events := pub.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].UserID != "42" || events[1].UserID != "7" {
		t.Fatalf("events not recorded correctly: %+v", events)
	}

	events[0].UserID = "modified"
	if pub.Events()[0].UserID == "modified" {
		t.Fatal("expected Events() to return a copy")
	}
}
