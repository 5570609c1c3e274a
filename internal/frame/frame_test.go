package frame

import "testing"

func TestSnapshot_NeedsReply(t *testing.T) {
	tests := []struct {
		name string
		msgs []ChatMessage
		want bool
	}{
		{"empty", nil, false},
		{"fresh frame", []ChatMessage{{Role: RoleUser, Content: "landing page"}}, true},
		{"answered", []ChatMessage{
			{Role: RoleUser, Content: "landing page"},
			{Role: RoleAssistant, Content: CodeReadyReply},
		}, false},
		{"assistant first", []ChatMessage{{Role: RoleAssistant, Content: "hi"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Snapshot{Messages: tt.msgs}
			if got := s.NeedsReply(); got != tt.want {
				t.Errorf("NeedsReply() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFrame_Markup(t *testing.T) {
	f := &Frame{}
	if f.HasMarkup() {
		t.Error("HasMarkup() = true for nil markup")
	}
	if f.MarkupOrEmpty() != "" {
		t.Errorf("MarkupOrEmpty() = %q, want empty", f.MarkupOrEmpty())
	}

	m := "<div>hi</div>"
	f.Markup = &m
	if !f.HasMarkup() {
		t.Error("HasMarkup() = false after setting markup")
	}
}

func TestFrame_MarkupOnSnapshotValue(t *testing.T) {
	m := "<p>x</p>"
	snapshot := func() Snapshot { return Snapshot{Frame: Frame{Markup: &m}} }

	if got := snapshot().Frame.MarkupOrEmpty(); got != m {
		t.Errorf("MarkupOrEmpty() = %q, want %q", got, m)
	}
	if !snapshot().Frame.HasMarkup() {
		t.Error("HasMarkup() = false on returned snapshot")
	}
}

func TestCloneMessages_Independent(t *testing.T) {
	orig := []ChatMessage{{Role: RoleUser, Content: "a"}}
	c := CloneMessages(orig)
	c[0].Content = "b"

	if orig[0].Content != "a" {
		t.Errorf("original mutated: %q", orig[0].Content)
	}
	if CloneMessages(nil) != nil {
		t.Error("CloneMessages(nil) should be nil")
	}
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if len(id) != 26 {
			t.Fatalf("len(NewID()) = %d, want 26", len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
