package browser

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

func TestTabsToClose_SelectsNewTabsRegardlessOfOrder(t *testing.T) {
	const (
		initial = proto.TargetTargetID("initial")
		session = proto.TargetTargetID("session")
		opened  = proto.TargetTargetID("opened")
	)
	snapshot := map[proto.TargetTargetID]bool{initial: true, session: true}

	// Chrome reports targets in whatever order it likes; both newest-first
	// and oldest-first enumerations must single out the opened tab.
	orders := [][]proto.TargetTargetID{
		{opened, session, initial},
		{initial, session, opened},
		{session, opened, initial},
	}
	for _, current := range orders {
		got := tabsToClose(current, session, snapshot)
		if len(got) != 1 || got[0] != opened {
			t.Errorf("tabsToClose(%v): got %v, want [%s]", current, got, opened)
		}
	}
}

func TestTabsToClose_NothingOpened(t *testing.T) {
	const (
		initial = proto.TargetTargetID("initial")
		session = proto.TargetTargetID("session")
	)
	snapshot := map[proto.TargetTargetID]bool{initial: true, session: true}

	got := tabsToClose([]proto.TargetTargetID{session, initial}, session, snapshot)
	if len(got) != 0 {
		t.Errorf("tabsToClose: got %v, want none when no tab was opened", got)
	}
}

func TestTabsToClose_NeverClosesOwnPage(t *testing.T) {
	const session = proto.TargetTargetID("session")

	// Empty snapshot (a failed snapshot degrades to closing everything
	// foreign); the session's own page must still survive.
	got := tabsToClose([]proto.TargetTargetID{session, "other"}, session, nil)
	if len(got) != 1 || got[0] != proto.TargetTargetID("other") {
		t.Errorf("tabsToClose: got %v, want [other]", got)
	}
}

func TestTabsToClose_MultipleNewTabs(t *testing.T) {
	const session = proto.TargetTargetID("session")
	snapshot := map[proto.TargetTargetID]bool{session: true}

	got := tabsToClose([]proto.TargetTargetID{"b", session, "a"}, session, snapshot)
	if len(got) != 2 {
		t.Fatalf("tabsToClose: got %v, want both new tabs", got)
	}
}
