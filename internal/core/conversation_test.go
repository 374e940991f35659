package core

import (
	"testing"
	"time"
)

func TestConversationStatus_Transitions(t *testing.T) {
	terminal := []ConversationStatus{StatusConsensusReached, StatusMaxIterationsReached, StatusCancelled}

	for _, to := range terminal {
		if err := ValidateTransition(StatusActive, to); err != nil {
			t.Errorf("active -> %s should be allowed: %v", to, err)
		}
	}
	for _, from := range terminal {
		for _, to := range append(terminal, StatusActive) {
			err := ValidateTransition(from, to)
			if err == nil {
				t.Errorf("%s -> %s should be rejected", from, to)
				continue
			}
			if !HasCode(err, CodeInvalidTransition) {
				t.Errorf("expected %s, got %v", CodeInvalidTransition, err)
			}
		}
	}
	if ValidateTransition(StatusActive, StatusActive) == nil {
		t.Errorf("active -> active should be rejected")
	}
}

func TestConversationStatus_Label(t *testing.T) {
	cases := map[ConversationStatus]string{
		StatusConsensusReached:     "Consensus reached",
		StatusMaxIterationsReached: "Max iterations reached",
		StatusCancelled:            "Cancelled",
		ConversationStatus("odd"):  "Ended",
	}
	for status, want := range cases {
		if got := status.Label(); got != want {
			t.Errorf("%s.Label() = %q, want %q", status, got, want)
		}
	}
}

func TestVisibleMessagesAndInstructions(t *testing.T) {
	msgs := []*Message{
		{SenderID: "alice", Content: "be firm", IsPrivateInstruction: true},
		{SenderID: "alice", Content: "I propose Friday"},
		{SenderID: "bob", Content: "prefer mornings", IsPrivateInstruction: true},
		{SenderID: "alice", Content: "and no calls", IsPrivateInstruction: true},
	}

	visible := VisibleMessages(msgs)
	if len(visible) != 1 || visible[0].Content != "I propose Friday" {
		t.Fatalf("unexpected visible messages: %+v", visible)
	}

	got := InstructionsFrom(msgs, "alice")
	if len(got) != 2 || got[0] != "be firm" || got[1] != "and no calls" {
		t.Fatalf("unexpected instructions: %v", got)
	}
}

func TestFormatTimeout(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{60 * time.Second, "1 minute"},
		{300 * time.Second, "5 minutes"},
		{90 * time.Second, "90 seconds"},
		{30 * time.Second, "30 seconds"},
	}
	for _, tc := range cases {
		if got := FormatTimeout(tc.in); got != tc.want {
			t.Errorf("FormatTimeout(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
