package gattc

import (
	"testing"

	"github.com/user/gattcore/att"
)

func TestMTUExchange(t *testing.T) {
	c, tr, rec := newTestConn(t)

	if err := c.ConfigureMTU(testApp, 100); err != nil {
		t.Fatalf("ConfigureMTU failed: %v", err)
	}
	want := []byte{att.OpExchangeMTURequest, 100, 0}
	if got := tr.lastSent(); len(got) != 3 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("request = %X, want %X", got, want)
	}

	// server agrees to 64
	c.Deliver([]byte{att.OpExchangeMTUResponse, 64, 0})

	if c.PayloadSize() != 64 {
		t.Errorf("payload size = %d, want 64", c.PayloadSize())
	}
	if len(rec.compl) != 1 {
		t.Fatalf("got %d completions, want 1", len(rec.compl))
	}
	e := rec.compl[0]
	if e.ev != EventMTUConfig || e.c.Status != StatusSuccess || e.c.MTU != 64 {
		t.Errorf("completion = %+v", e)
	}
	if len(tr.txLens) != 1 || tr.txLens[0] != 64 {
		t.Errorf("SetTxDataLength calls = %v, want [64]", tr.txLens)
	}
}

func TestMTUServerLargerThanRequested(t *testing.T) {
	c, tr, _ := newTestConn(t)

	if err := c.ConfigureMTU(testApp, 50); err != nil {
		t.Fatalf("ConfigureMTU failed: %v", err)
	}
	// server offers more than we asked for; the requested value stands
	c.Deliver([]byte{att.OpExchangeMTUResponse, 200, 0})

	if c.PayloadSize() != 50 {
		t.Errorf("payload size = %d, want 50", c.PayloadSize())
	}
	if len(tr.txLens) != 1 || tr.txLens[0] != 50 {
		t.Errorf("SetTxDataLength calls = %v, want [50]", tr.txLens)
	}
}

func TestMTUNeverDecreases(t *testing.T) {
	c, _, _ := newTestConn(t)

	if err := c.ConfigureMTU(testApp, 100); err != nil {
		t.Fatalf("ConfigureMTU failed: %v", err)
	}
	// a server value under the ATT minimum is ignored
	c.Deliver([]byte{att.OpExchangeMTUResponse, 10, 0})
	if c.PayloadSize() != 100 {
		t.Errorf("payload size = %d, want 100", c.PayloadSize())
	}
}

func TestMTUResponseTooShort(t *testing.T) {
	c, tr, rec := newTestConn(t)

	if err := c.ConfigureMTU(testApp, 100); err != nil {
		t.Fatalf("ConfigureMTU failed: %v", err)
	}
	c.Deliver([]byte{att.OpExchangeMTUResponse, 64})

	if len(rec.compl) != 1 || rec.compl[0].c.Status != StatusInvalidPDU {
		t.Fatalf("completions = %+v, want one Invalid PDU", rec.compl)
	}
	// the channel is still aligned with whatever stands
	if len(tr.txLens) != 1 {
		t.Errorf("SetTxDataLength calls = %v, want one", tr.txLens)
	}
}

func TestMTUSingleExchangePerConnection(t *testing.T) {
	c, _, rec := newTestConn(t)

	if err := c.ConfigureMTU(testApp, 100); err != nil {
		t.Fatalf("ConfigureMTU failed: %v", err)
	}
	c.Deliver([]byte{att.OpExchangeMTUResponse, 90, 0})
	if c.PayloadSize() != 90 {
		t.Fatalf("payload size = %d, want 90", c.PayloadSize())
	}

	// ATT allows one exchange per connection; a repeat could talk the
	// payload size back down and is refused outright
	if err := c.ConfigureMTU(testApp, 50); err == nil {
		t.Fatal("second MTU exchange accepted")
	}
	if c.PayloadSize() != 90 {
		t.Errorf("payload size = %d after refused exchange, want 90", c.PayloadSize())
	}
	if len(rec.compl) != 1 {
		t.Errorf("got %d completions, want 1", len(rec.compl))
	}
}

func TestMTURequestValidation(t *testing.T) {
	c, _, _ := newTestConn(t)
	if err := c.ConfigureMTU(testApp, 10); err == nil {
		t.Error("MTU below the ATT minimum accepted")
	}
	if err := c.ConfigureMTU(testApp, 1000); err == nil {
		t.Error("MTU above the ATT maximum accepted")
	}
}
