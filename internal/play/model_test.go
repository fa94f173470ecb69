package play

import "testing"

func TestParseSource_Known(t *testing.T) {
	for _, src := range []Source{SourceDirect, SourceSearch, SourcePlaylist, SourceTipFeed, SourceArtistProfile} {
		if got := ParseSource(string(src)); got != src {
			t.Errorf("ParseSource(%q) = %q, want %q", src, got, src)
		}
	}
}

func TestParseSource_UnknownFoldsToOther(t *testing.T) {
	for _, raw := range []string{"", "widget", "DIRECT", "push_notification"} {
		if got := ParseSource(raw); got != SourceOther {
			t.Errorf("ParseSource(%q) = %q, want %q", raw, got, SourceOther)
		}
	}
}

func TestListenerKey(t *testing.T) {
	withUser := PlayEvent{UserID: "u1", SessionID: "s1"}
	if got := withUser.ListenerKey(); got != "u1" {
		t.Errorf("Expected user ID preferred, got %q", got)
	}

	anonymous := PlayEvent{SessionID: "s1"}
	if got := anonymous.ListenerKey(); got != "s1" {
		t.Errorf("Expected session fallback, got %q", got)
	}
}
