package flow

import "testing"

func TestParseActions(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantText  string
		wantCount int
	}{
		{"no directives", "Ciao! Come va?", "Ciao! Come va?", 0},
		{"path payload", "Guarda qui [ACTION:navigate:Profilo:/profile] ok", "Guarda qui ok", 1},
		{"json payload", `Salvo [ACTION:save_workout:Salva:{"name":"Push","tags":["a]b"]}] fatto`, "Salvo fatto", 1},
		{"two directives", "A [ACTION:navigate:Uno:/1]\n\n\n\nB [ACTION:navigate:Due:/2]", "A\n\nB", 2},
		{"malformed json dropped", `Prima [ACTION:save:Salva:{"name":}] dopo`, "Prima dopo", 0},
		{"unterminated left as is", "Testo [ACTION:navigate:Rotto:/x", "Testo [ACTION:navigate:Rotto:/x", 0},
		{"missing label", "Testo [ACTION:navigate] fine", "Testo fine", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, actions := ParseActions(tt.in)
			if text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
			if len(actions) != tt.wantCount {
				t.Errorf("actions = %+v, want %d", actions, tt.wantCount)
			}
		})
	}
}

func TestParseActionsPayload(t *testing.T) {
	_, actions := ParseActions(`[ACTION:save_workout:Salva piano:{"name":"Push","days":3}]`)
	if len(actions) != 1 {
		t.Fatalf("actions = %+v", actions)
	}
	a := actions[0]
	if a.Type != "save_workout" || a.Label != "Salva piano" || a.Path != "" {
		t.Errorf("action = %+v", a)
	}
	if a.Payload["name"] != "Push" || a.Payload["days"] != float64(3) {
		t.Errorf("payload = %+v", a.Payload)
	}
}

func TestMatchBrace(t *testing.T) {
	if n := matchBrace(`{"a":"}"} tail`); n != 9 {
		t.Errorf("matchBrace = %d, want 9", n)
	}
	if n := matchBrace(`{"a":{`); n != -1 {
		t.Errorf("matchBrace on open object = %d, want -1", n)
	}
}
