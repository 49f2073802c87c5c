// Copyright 2025 Certen Protocol
package consensusadapter

import (
	"context"
	"testing"
	"time"

	"github.com/certen/authority-core/pkg/consensusclient"
)

type recordingClient struct {
	submitted [][]consensusclient.Transaction
}

func (c *recordingClient) Submit(ctx context.Context, txs []consensusclient.Transaction, _ consensusclient.EpochStore) (consensusclient.BlockStatusReceiver, error) {
	c.submitted = append(c.submitted, txs)
	ch := make(chan consensusclient.BlockStatus, 1)
	ch <- consensusclient.BlockStatus{Kind: consensusclient.Sequenced}
	close(ch)
	return ch, nil
}

func TestReconfigStateAcceptsByDefault(t *testing.T) {
	r := newReconfigState()
	if !r.AcceptingUserCerts() {
		t.Fatalf("expected a fresh epoch to accept user certs")
	}
}

func TestRejectUserCertsFlipsState(t *testing.T) {
	r := newReconfigState()
	r.RejectUserCerts()
	if r.AcceptingUserCerts() {
		t.Fatalf("expected AcceptingUserCerts false after RejectUserCerts")
	}
}

func TestStartNewEpochResetsState(t *testing.T) {
	r := newReconfigState()
	r.RejectUserCerts()
	r.StartNewEpoch()
	if !r.AcceptingUserCerts() {
		t.Fatalf("expected StartNewEpoch to re-enable acceptance")
	}
}

func TestMaybeSendEndOfPublishSendsExactlyOnce(t *testing.T) {
	r := newReconfigState()
	client := &recordingClient{}
	self := mkAddr(5)

	// Still accepting: must not send.
	r.maybeSendEndOfPublish(self, client)
	if len(client.submitted) != 0 {
		t.Fatalf("expected no submission while still accepting certs")
	}

	r.RejectUserCerts()
	r.maybeSendEndOfPublish(self, client)
	r.maybeSendEndOfPublish(self, client)

	if len(client.submitted) != 1 {
		t.Fatalf("expected exactly one EndOfPublish submission, got %d", len(client.submitted))
	}
	got := client.submitted[0][0]
	if got[0] != 0xEF {
		t.Fatalf("expected EndOfPublish tag byte 0xEF, got 0x%x", got[0])
	}
}

func TestWithinAliveEpochCancelledByStartNewEpoch(t *testing.T) {
	r := newReconfigState()
	ctx, cancel := r.withinAliveEpoch(context.Background())
	defer cancel()

	r.StartNewEpoch()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected ctx to be cancelled after StartNewEpoch")
	}
}
