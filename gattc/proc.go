package gattc

import (
	"time"

	"github.com/user/gattcore/att"
	"github.com/user/gattcore/logger"
)

// operation is the top-level procedure class.
type operation uint8

const (
	opDiscovery operation = iota + 1
	opRead
	opWrite
	opConfig
)

// ReadKind selects a read procedure.
type ReadKind uint8

const (
	// ReadByUUID scans characteristic declarations for a matching UUID and
	// then reads the value of the first match.
	ReadByUUID ReadKind = iota + 1
	// ReadByType issues a Read By Type request with the caller's type UUID.
	ReadByType
	// ReadByHandle reads a single attribute, continuing with blob reads if
	// the value fills the payload.
	ReadByHandle
	// ReadPartial is a single blob read at a caller-supplied offset.
	ReadPartial
	// ReadMultiple reads several attributes in one round trip.
	ReadMultiple
)

// WriteKind selects a write procedure.
type WriteKind uint8

const (
	// WriteNoResponse is a Write Command (or Signed Write Command).
	WriteNoResponse WriteKind = iota + 1
	// WriteRequest is an acknowledged write, falling back to a prepared
	// long write when the value exceeds the payload.
	WriteRequest
	// WritePrepare queues fragments under application control; the
	// application decides when to execute.
	WritePrepare
)

// includeReadState tracks the resolution of an included service whose
// 128-bit UUID did not fit in the Read By Type record: the discovery loop is
// parked while a Read fetches the UUID from the included service handle.
type includeReadState struct {
	waiting   bool
	nextStart uint16
	parked    DiscoveryRecord
}

// procedure is the per-request control block. One exists per outstanding
// application request, from enqueue until its single completion callback.
type procedure struct {
	conn *Conn
	app  AppID

	op       operation
	discKind DiscoveryKind
	readKind ReadKind
	wrKind   WriteKind

	// current window for ranging procedures; also the target handle for
	// single-attribute reads
	start uint16
	end   uint16

	// UUID filter for UUID-scoped discovery and reads
	uuid att.UUID

	// long-read reassembly buffer, bounded by MaxAttrLen
	attrBuf []byte

	// write source and cursor
	wrHandle    uint16
	wrValue     []byte
	wrOffset    int
	startOffset uint16 // extra wire offset for application-driven prepares

	handles []uint16 // ReadMultiple targets

	// bytes in the last read response (read) or last prepared fragment
	// (write)
	counter int

	status Status

	// number of blob reads issued since the initial read; the NotLong
	// remap applies only while this is exactly 1
	blobsSent int

	includeRead includeReadState

	respTimer  *time.Timer
	retryCount int

	// payload size snapshot taken when the read procedure started and
	// refreshed after a mid-procedure MTU change, to recognize full
	// fragments across that change
	readReqMTU uint16

	done bool
}

func (p *procedure) id() ConnID {
	return ConnID{Conn: p.conn.index, App: p.app}
}

// endOperation fires the procedure's single completion callback and releases
// it. comp.Status is overwritten with status. Safe to call at most once;
// later calls are ignored.
func (c *Conn) endOperation(p *procedure, status Status, comp Completion) {
	if p == nil || p.done {
		return
	}
	p.done = true
	c.stopRespTimer(p)
	c.removeProcedure(p)

	comp.Status = status
	id := p.id()
	app := c.apps[p.app]
	if app == nil {
		logger.Warn(c.tag, "procedure for unregistered app %d ended: %s", p.app, status)
		return
	}

	switch p.op {
	case opDiscovery:
		kind := p.discKind
		if cb := app.OnDiscoveryComplete; cb != nil {
			c.enqueueCallback(func() { cb(id, kind, status) })
		}
	case opRead:
		if cb := app.OnComplete; cb != nil {
			enc := c.encryptStatus()
			if comp.Handle == 0 {
				comp.Handle = p.start
			}
			c.enqueueCallback(func() { cb(id, EventRead, enc, comp) })
		}
	case opWrite:
		if cb := app.OnComplete; cb != nil {
			enc := c.encryptStatus()
			if comp.Handle == 0 {
				comp.Handle = p.wrHandle
			}
			c.enqueueCallback(func() { cb(id, EventWrite, enc, comp) })
		}
	case opConfig:
		if cb := app.OnComplete; cb != nil {
			enc := c.encryptStatus()
			comp.MTU = c.payloadSize
			c.enqueueCallback(func() { cb(id, EventMTUConfig, enc, comp) })
		}
	}
}

func (c *Conn) removeProcedure(p *procedure) {
	for i, q := range c.procs {
		if q == p {
			c.procs = append(c.procs[:i], c.procs[i+1:]...)
			return
		}
	}
}

// newProcedure binds a fresh control block to the connection.
func (c *Conn) newProcedure(app AppID, op operation) *procedure {
	p := &procedure{conn: c, app: app, op: op, status: StatusSuccess}
	c.procs = append(c.procs, p)
	return p
}
