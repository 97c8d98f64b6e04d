package chessdto

import "testing"

func TestEnvelopeDecode(t *testing.T) {
	env, err := NewEnvelope(EventMakeMove, MakeMoveRequest{GameID: "g1", Move: "e4"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	var req MakeMoveRequest
	if err := env.Decode(&req); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if req.GameID != "g1" || req.Move != "e4" {
		t.Fatalf("unexpected payload %+v", req)
	}

	bare, _ := NewEnvelope(EventWaitingForOpponent, nil)
	if bare.Payload != nil {
		t.Fatalf("expected no payload, got %s", bare.Payload)
	}
	if err := bare.Decode(&req); err != nil {
		t.Fatalf("Decode empty: %v", err)
	}
}

func TestResultFor(t *testing.T) {
	if ResultFor("white") != "1-0" || ResultFor("black") != "0-1" || ResultFor("draw") != "1/2-1/2" {
		t.Fatalf("unexpected result mapping")
	}
}
