package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseClientMessageUserTurn(t *testing.T) {
	raw := []byte(`{"type":"user_turn","chat_id":"c1","user_input":"  how many projects are active?  "}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	turn, ok := msg.(UserTurn)
	if !ok {
		t.Fatalf("message type = %T, want UserTurn", msg)
	}
	if turn.ChatID != "c1" || turn.UserInput != "how many projects are active?" {
		t.Fatalf("unexpected user turn: %+v", turn)
	}
}

func TestParseClientMessageRejectsEmptyInput(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"user_turn","user_input":"   "}`)); err == nil {
		t.Fatalf("expected error for empty user_input")
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsInvalidJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{`)); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}

func TestStreamMessageOmitsEmptyFields(t *testing.T) {
	raw, err := json.Marshal(StreamMessage{Type: TypeDone, TurnID: "t1", Done: true})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if got, want := string(raw), `{"type":"done","turn_id":"t1","done":true}`; got != want {
		t.Fatalf("Marshal() = %s, want %s", got, want)
	}
}
