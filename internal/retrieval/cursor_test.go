package retrieval

import "testing"

func TestCursorRoundTrip(t *testing.T) {
	c := DecodeCursor(EncodeCursor(1700000000123, 42))
	if c == nil {
		t.Fatal("expected a decoded cursor")
	}
	if c.Epoch != 1700000000123 || c.ID != 42 {
		t.Errorf("got %+v", c)
	}
}

func TestDecodeCursorMalformedIsNil(t *testing.T) {
	for _, bad := range []string{"", "not-base64!!", "YWJj", EncodeCursor(0, 0), EncodeCursor(5, -1)} {
		if c := DecodeCursor(bad); c != nil {
			t.Errorf("expected nil for malformed cursor %q, got %+v", bad, c)
		}
	}
}
