package gattc

import (
	"testing"
	"time"

	"github.com/user/gattcore/att"
)

// fakeTransport records every PDU the engine submits and plays back scripted
// send results (TxOK when the script runs out).
type fakeTransport struct {
	sent    [][]byte
	results []TxStatus
	txLens  []uint16
}

func (f *fakeTransport) Send(pdu []byte) TxStatus {
	f.sent = append(f.sent, append([]byte(nil), pdu...))
	if len(f.results) > 0 {
		r := f.results[0]
		f.results = f.results[1:]
		return r
	}
	return TxOK
}

func (f *fakeTransport) SetTxDataLength(mtu uint16) {
	f.txLens = append(f.txLens, mtu)
}

func (f *fakeTransport) lastSent() []byte {
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

type discDone struct {
	kind   DiscoveryKind
	status Status
}

type complEvent struct {
	id  ConnID
	ev  Event
	enc EncryptStatus
	c   Completion
}

// recorder captures every callback an app receives.
type recorder struct {
	disc     []DiscoveryRecord
	discDone []discDone
	compl    []complEvent
}

func (r *recorder) app() *App {
	return &App{
		OnDiscoveryResult: func(id ConnID, kind DiscoveryKind, rec DiscoveryRecord) {
			r.disc = append(r.disc, rec)
		},
		OnDiscoveryComplete: func(id ConnID, kind DiscoveryKind, status Status) {
			r.discDone = append(r.discDone, discDone{kind, status})
		},
		OnComplete: func(id ConnID, ev Event, enc EncryptStatus, c Completion) {
			r.compl = append(r.compl, complEvent{id, ev, enc, c})
		},
	}
}

const testApp AppID = 1

func newTestConn(t *testing.T, opts ...Option) (*Conn, *fakeTransport, *recorder) {
	t.Helper()
	tr := &fakeTransport{}
	c := NewConn(7, "AA:BB:CC:DD:EE:FF", tr, opts...)
	rec := &recorder{}
	if err := c.RegisterApp(testApp, rec.app()); err != nil {
		t.Fatalf("RegisterApp failed: %v", err)
	}
	return c, tr, rec
}

func TestCloseCancelsProcedures(t *testing.T) {
	c, _, rec := newTestConn(t)

	if err := c.ReadAttr(testApp, 0x0021); err != nil {
		t.Fatalf("ReadAttr failed: %v", err)
	}
	c.Close()

	if len(rec.compl) != 1 {
		t.Fatalf("got %d completions, want 1", len(rec.compl))
	}
	if rec.compl[0].c.Status != StatusLinkLost {
		t.Errorf("status = %s, want Link Lost", rec.compl[0].c.Status)
	}

	// the connection is gone; deliveries and new procedures are refused
	c.Deliver([]byte{0x0B, 0x01})
	if len(rec.compl) != 1 {
		t.Error("delivery after close produced a callback")
	}
	if err := c.ReadAttr(testApp, 0x0021); err == nil {
		t.Error("ReadAttr accepted on closed connection")
	}
}

func TestCancelDrainsLateResponse(t *testing.T) {
	c, tr, rec := newTestConn(t)

	if err := c.ReadAttr(testApp, 0x0021); err != nil {
		t.Fatalf("ReadAttr failed: %v", err)
	}
	c.Cancel(testApp)

	if len(rec.compl) != 1 || rec.compl[0].c.Status != StatusCancelled {
		t.Fatalf("completions = %+v, want one Cancelled", rec.compl)
	}

	// a second procedure queues behind the cancelled one's outstanding
	// request
	if err := c.WriteAttr(testApp, 0x0031, []byte{0x01}); err != nil {
		t.Fatalf("WriteAttr failed: %v", err)
	}
	if len(tr.sent) != 1 {
		t.Fatalf("write sent before the late response, queue depth broken")
	}

	// the late read response is drained without a callback and the queue
	// advances to the write
	c.Deliver([]byte{0x0B, 0x01, 0x02})
	if len(rec.compl) != 1 {
		t.Errorf("late response produced a callback: %+v", rec.compl)
	}
	if len(tr.sent) != 2 || tr.lastSent()[0] != att.OpWriteRequest {
		t.Errorf("queue did not advance after drain: %X", tr.sent)
	}
}

func TestResponseTimeout(t *testing.T) {
	tr := &fakeTransport{}
	c := NewConn(7, "peer", tr, WithResponseTimeout(5*time.Millisecond))

	// the timer fires on its own goroutine, so collect through a channel
	done := make(chan Status, 1)
	app := &App{
		OnComplete: func(id ConnID, ev Event, enc EncryptStatus, comp Completion) {
			done <- comp.Status
		},
	}
	if err := c.RegisterApp(testApp, app); err != nil {
		t.Fatalf("RegisterApp failed: %v", err)
	}
	if err := c.ReadAttr(testApp, 0x0021); err != nil {
		t.Fatalf("ReadAttr failed: %v", err)
	}

	select {
	case status := <-done:
		if status != StatusTimeout {
			t.Errorf("status = %s, want Timeout", status)
		}
	case <-time.After(time.Second):
		t.Fatal("no timeout completion")
	}
}

func TestOneProcedurePerApp(t *testing.T) {
	c, _, _ := newTestConn(t)

	if err := c.ReadAttr(testApp, 0x0021); err != nil {
		t.Fatalf("ReadAttr failed: %v", err)
	}
	if err := c.ReadAttr(testApp, 0x0022); err == nil {
		t.Error("second procedure accepted while the first is live")
	}
}

func TestQueueOrderAcrossApps(t *testing.T) {
	c, tr, _ := newTestConn(t)
	rec2 := &recorder{}
	if err := c.RegisterApp(2, rec2.app()); err != nil {
		t.Fatalf("RegisterApp failed: %v", err)
	}

	if err := c.ReadAttr(testApp, 0x0021); err != nil {
		t.Fatalf("ReadAttr failed: %v", err)
	}
	if err := c.ReadAttr(2, 0x0022); err != nil {
		t.Fatalf("second ReadAttr failed: %v", err)
	}

	// one outstanding request: only the first read is on the wire
	if len(tr.sent) != 1 {
		t.Fatalf("sent %d PDUs, want 1", len(tr.sent))
	}
	if tr.sent[0][0] != att.OpReadRequest || tr.sent[0][1] != 0x21 {
		t.Fatalf("first PDU = %X", tr.sent[0])
	}

	// first response releases the second request, in enqueue order
	c.Deliver([]byte{0x0B, 0xAA})
	if len(tr.sent) != 2 {
		t.Fatalf("sent %d PDUs after response, want 2", len(tr.sent))
	}
	if tr.sent[1][0] != att.OpReadRequest || tr.sent[1][1] != 0x22 {
		t.Errorf("second PDU = %X", tr.sent[1])
	}
}

func TestTransportFailureDropsAndAdvances(t *testing.T) {
	c, tr, rec := newTestConn(t)
	rec2 := &recorder{}
	if err := c.RegisterApp(2, rec2.app()); err != nil {
		t.Fatalf("RegisterApp failed: %v", err)
	}

	tr.results = []TxStatus{TxFailed, TxOK}

	if err := c.ReadAttr(testApp, 0x0021); err != nil {
		t.Fatalf("ReadAttr failed: %v", err)
	}
	// the first send failed: its procedure ended with Error
	if len(rec.compl) != 1 || rec.compl[0].c.Status != StatusError {
		t.Fatalf("completions = %+v, want one Error", rec.compl)
	}

	// the queue is free again
	if err := c.ReadAttr(2, 0x0022); err != nil {
		t.Fatalf("second ReadAttr failed: %v", err)
	}
	if len(tr.sent) != 2 {
		t.Errorf("second request not sent: %X", tr.sent)
	}
}

func TestCongestionIsTransparent(t *testing.T) {
	c, tr, rec := newTestConn(t)
	tr.results = []TxStatus{TxCongested}

	if err := c.ReadAttr(testApp, 0x0021); err != nil {
		t.Fatalf("ReadAttr failed: %v", err)
	}
	// no completion: the transport holds the PDU and the response timer runs
	if len(rec.compl) != 0 {
		t.Fatalf("congestion surfaced a completion: %+v", rec.compl)
	}
	c.Deliver([]byte{0x0B, 0xAA})
	if len(rec.compl) != 1 || rec.compl[0].c.Status != StatusSuccess {
		t.Errorf("completions = %+v, want one Success", rec.compl)
	}
}

func TestWriteCommandCongested(t *testing.T) {
	c, tr, rec := newTestConn(t)
	tr.results = []TxStatus{TxCongested}

	if err := c.WriteNoRsp(testApp, 0x0031, []byte{0x01}, SecurityNone); err != nil {
		t.Fatalf("WriteNoRsp failed: %v", err)
	}
	if len(rec.compl) != 1 || rec.compl[0].c.Status != StatusCongested {
		t.Fatalf("completions = %+v, want one Congested", rec.compl)
	}
}
