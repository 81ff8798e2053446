package reminders

import "testing"

func TestDecorateNoNotices(t *testing.T) {
	d := Decorator{}
	out := d.Decorate("hello")
	if len(out) != 1 || out[0] != "hello" {
		t.Fatalf("unexpected output: %v", out)
	}
}

func TestDecorateWithNotices(t *testing.T) {
	d := Decorator{Notices: []string{"2 todos pending", "  "}}
	out := d.Decorate("hello")
	if len(out) != 2 {
		t.Fatalf("expected blank notice to be skipped, got %v", out)
	}
	if out[1] != "<reminder>2 todos pending</reminder>" {
		t.Fatalf("unexpected notice: %q", out[1])
	}
}
