package session

import "testing"

func TestMineActionItemsExtractsAllFourMarkers(t *testing.T) {
	text := "TODO: write tests\nregular line\nFIXME fix the race\nHACK: workaround for driver bug\nXXX revisit this"
	items := mineActionItems(text)
	if len(items) != 4 {
		t.Fatalf("expected 4 action items, got %d: %v", len(items), items)
	}
}

func TestAppendCappedStopsAtLimit(t *testing.T) {
	var list []string
	for i := 0; i < 10; i++ {
		list = appendCapped(list, "item", 5)
	}
	if len(list) != 5 {
		t.Fatalf("expected list capped at 5, got %d", len(list))
	}
}
