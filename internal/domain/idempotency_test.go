package domain

import (
	"errors"
	"testing"
	"time"
)

func TestCommandClaimNormalize(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	claim, err := CommandClaim{Key: " key-1 ", Method: " /wholesale.v1.OrderService/CreateOrder ", RequestHash: "h"}.Normalize(now)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if claim.Key != "key-1" || claim.Method != "/wholesale.v1.OrderService/CreateOrder" {
		t.Fatalf("claim was not trimmed: %+v", claim)
	}
	if !claim.ExpiresAt.Equal(now.Add(DefaultCommandTTL)) {
		t.Fatalf("expected default expiry, got %s", claim.ExpiresAt)
	}

	record := claim.Record(now)
	if record.State != CommandStateRunning || record.Settled() {
		t.Fatalf("new record must be running: %+v", record)
	}

	cases := map[string]struct {
		claim CommandClaim
		want  error
	}{
		"key":    {CommandClaim{Method: "m", RequestHash: "h"}, ErrIdempotencyKeyRequired},
		"method": {CommandClaim{Key: "k", RequestHash: "h"}, ErrIdempotencyMethodRequired},
		"hash":   {CommandClaim{Key: "k", Method: "m", RequestHash: "  "}, ErrIdempotencyRequestHashRequired},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := tc.claim.Normalize(now); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCommandRecordConflictWith(t *testing.T) {
	record := CommandRecord{Key: "k", Method: "/svc/TransitionOrder", RequestHash: "h1"}

	if err := record.ConflictWith(CommandClaim{Key: "k", Method: "/svc/TransitionOrder", RequestHash: "h1"}); !errors.Is(err, ErrIdempotencyKeyAlreadyExists) {
		t.Fatalf("same command: got %v", err)
	}
	if err := record.ConflictWith(CommandClaim{Key: "k", Method: "/svc/TransitionOrder", RequestHash: "h2"}); !errors.Is(err, ErrIdempotencyHashMismatch) {
		t.Fatalf("other body: got %v", err)
	}
	if err := record.ConflictWith(CommandClaim{Key: "k", Method: "/svc/AmendDocuments", RequestHash: "h1"}); !errors.Is(err, ErrIdempotencyHashMismatch) {
		t.Fatalf("other method: got %v", err)
	}
}

func TestCommandStateAndOutcome(t *testing.T) {
	if !CommandStateSettled.Valid() || !CommandStateRunning.Valid() || CommandState("done").Valid() {
		t.Fatal("unexpected command state validity")
	}
	if !(CommandOutcome{}).Succeeded() || (CommandOutcome{Code: 9}).Succeeded() {
		t.Fatal("only code 0 is a success")
	}

	record := CommandRecord{Outcome: CommandOutcome{Response: []byte("{}")}}
	clone := record.Clone()
	clone.Outcome.Response[0] = '['
	if string(record.Outcome.Response) != "{}" {
		t.Fatal("clone must not share the response buffer")
	}
}
