// Copyright 2025 Certen Protocol
package adminserver

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/certen/authority-core/pkg/consensusadapter"
	"github.com/certen/authority-core/pkg/consensusclient"
	"github.com/certen/authority-core/pkg/epoch"
	"github.com/certen/authority-core/pkg/objtype"
	"github.com/certen/authority-core/pkg/store"
)

type nopClient struct{}

func (nopClient) Submit(ctx context.Context, txs []consensusclient.Transaction, _ consensusclient.EpochStore) (consensusclient.BlockStatusReceiver, error) {
	ch := make(chan consensusclient.BlockStatus, 1)
	ch <- consensusclient.BlockStatus{Kind: consensusclient.Sequenced}
	close(ch)
	return ch, nil
}

type alwaysConnected struct{}

func (alwaysConnected) IsConnected(objtype.Address) bool     { return true }
func (alwaysConnected) IsLowPerforming(objtype.Address) bool { return false }

type nopQuiescer struct{}

func (nopQuiescer) Outstanding() []epoch.PendingCertificate { return nil }
func (nopQuiescer) Quiesce(ctx context.Context) error       { return nil }

func testServer(t *testing.T) (*Server, objtype.Address) {
	t.Helper()
	self := objtype.Address{0x01}
	committee := consensusadapter.Committee{
		Self:    self,
		Members: []consensusadapter.Validator{{ID: self, Stake: 1}},
	}
	adapter := consensusadapter.New(self, committee, nopClient{}, alwaysConnected{}, alwaysConnected{}, consensusadapter.DefaultProtocolConfig())

	path := filepath.Join(t.TempDir(), "authority.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	mgr := epoch.New(s, adapter, nopQuiescer{})
	return New(adapter, mgr, nil), self
}

func TestHandleSubmitAccepts(t *testing.T) {
	srv, _ := testServer(t)

	body, _ := json.Marshal(map[string]interface{}{
		"digest":    hex.EncodeToString(make([]byte, 32)),
		"wire":      "deadbeef",
		"gas_price": 100,
	})
	req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp submitResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Accepted {
		t.Fatalf("expected Accepted=true")
	}
}

func TestHandleSubmitRejectsInvalidDigest(t *testing.T) {
	srv, _ := testServer(t)

	body, _ := json.Marshal(map[string]interface{}{"digest": "not-hex", "wire": "x"})
	req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleSubmitBatchRequiresAtLeastOneTransaction(t *testing.T) {
	srv, _ := testServer(t)

	body, _ := json.Marshal(map[string]interface{}{
		"min_digest": hex.EncodeToString(make([]byte, 32)),
		"wire":       []string{},
	})
	req := httptest.NewRequest(http.MethodPost, "/submit_batch", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleOverloadReportsPendingCount(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/consensus/overload", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp overloadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Overloaded {
		t.Fatalf("expected not overloaded with no submissions yet")
	}
	if resp.Pending != 0 {
		t.Fatalf("pending = %d, want 0 with no submissions yet", resp.Pending)
	}
}

func TestHandleCloseEpochAdvancesEpoch(t *testing.T) {
	srv, self := testServer(t)

	body, _ := json.Marshal(map[string]interface{}{
		"next_epoch": 1,
		"committee":  map[string]uint64{hex.EncodeToString(self[:]): 1},
	})
	req := httptest.NewRequest(http.MethodPost, "/epoch/close", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestHandleCloseEpochWithoutManagerReturnsNotImplemented(t *testing.T) {
	self := objtype.Address{0x01}
	committee := consensusadapter.Committee{Self: self, Members: []consensusadapter.Validator{{ID: self, Stake: 1}}}
	adapter := consensusadapter.New(self, committee, nopClient{}, alwaysConnected{}, alwaysConnected{}, consensusadapter.DefaultProtocolConfig())
	srv := New(adapter, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/epoch/close", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", w.Code)
	}
}
