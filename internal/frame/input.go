package frame

// InputEvent is one unit of user input captured while a field is editable.
// The closed set matters: buffered input is replayed event by event after a
// transform resolves, and replay must see exactly what the user did.
type InputEvent interface {
	isInputEvent()
}

// KeyEvent is a single keystroke. Key uses DOM KeyboardEvent.key names
// ("a", "Enter", "Backspace").
type KeyEvent struct {
	Key   string
	Ctrl  bool
	Meta  bool
	Shift bool
}

func (KeyEvent) isInputEvent() {}

// TextInsert is a run of text entered as-is (typing, paste, IME commit).
type TextInsert struct {
	Text string
}

func (TextInsert) isInputEvent() {}

// modifier reports whether the event carries the platform command modifier.
func (k KeyEvent) modifier() bool {
	return k.Ctrl || k.Meta
}

// formatFor maps a command keystroke to a format mark, or "".
func formatFor(k KeyEvent) string {
	if !k.modifier() {
		return ""
	}
	switch k.Key {
	case "b", "B":
		return "bold"
	case "i", "I":
		return "italic"
	}
	return ""
}
