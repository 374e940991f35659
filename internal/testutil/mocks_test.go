package testutil_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliagerman/mordecai-sub000/internal/core"
	"github.com/iliagerman/mordecai-sub000/internal/testutil"
)

var (
	_ core.Reasoner  = (*testutil.MockReasoner)(nil)
	_ core.Messenger = (*testutil.MockMessenger)(nil)
)

func TestMockReasoner_ScriptRepeatsLastReply(t *testing.T) {
	r := testutil.NewMockReasoner().Script("alice", "one", "two")
	ctx := context.Background()

	for _, want := range []string{"one", "two", "two"} {
		got, err := r.Invoke(ctx, "alice", "p")
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, got, want)
	}

	got, err := r.Invoke(ctx, "bob", "p")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got, testutil.DefaultReply)
	testutil.AssertLen(t, r.CallsFor("alice"), 3)
	testutil.AssertLen(t, r.Calls(), 4)
}

func TestMockReasoner_FailFor(t *testing.T) {
	r := testutil.NewMockReasoner().FailFor("alice", testutil.ErrTest)
	_, err := r.Invoke(context.Background(), "alice", "p")
	if !errors.Is(err, testutil.ErrTest) {
		t.Fatalf("expected ErrTest, got %v", err)
	}
}

func TestMockReasoner_DelayHonorsContext(t *testing.T) {
	r := testutil.NewMockReasoner().WithDelay(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Invoke(ctx, "alice", "p")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMockReasoner_Handle(t *testing.T) {
	r := testutil.NewMockReasoner().Handle(func(_ context.Context, userID, prompt string) (string, error) {
		return userID + ":" + prompt, nil
	})
	got, err := r.Invoke(context.Background(), "alice", "hi")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got, "alice:hi")
}

func TestMockMessenger(t *testing.T) {
	m := testutil.NewMockMessenger().SetAddress("alice", "chat:1").Unknown("ghost")
	ctx := context.Background()

	addr, ok, err := m.ResolveAddress(ctx, "alice")
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, ok, "alice resolves")
	testutil.AssertEqual(t, addr, "chat:1")

	addr, ok, _ = m.ResolveAddress(ctx, "bob")
	testutil.AssertTrue(t, ok, "bob resolves")
	testutil.AssertEqual(t, addr, testutil.AddressOf("bob"))

	_, ok, _ = m.ResolveAddress(ctx, "ghost")
	testutil.AssertFalse(t, ok, "ghost is unknown")

	testutil.AssertNoError(t, m.Send(ctx, "chat:1", "hello there"))
	testutil.AssertTrue(t, m.Received("chat:1", "hello"), "message recorded")
	testutil.AssertLen(t, m.MessagesTo("chat:1"), 1)

	m.FailSends(testutil.ErrTest)
	testutil.AssertError(t, m.Send(ctx, "chat:1", "again"))
	testutil.AssertLen(t, m.Sent(), 1)
}
