// Package dispatch implements the Dispatch Loop: the single entry
// point that validates an incoming CSBK PDU, routes it through the
// pure csbk parser, and hands the resulting Event to the trunking
// policy engine. One CSBK is fully processed before the next is
// accepted.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/hamradio-go/dmr-trunkctl/pkg/bitstream"
	"github.com/hamradio-go/dmr-trunkctl/pkg/csbk"
	"github.com/hamradio-go/dmr-trunkctl/pkg/logger"
	"github.com/hamradio-go/dmr-trunkctl/pkg/mbc"
	"github.com/hamradio-go/dmr-trunkctl/pkg/metrics"
	"github.com/hamradio-go/dmr-trunkctl/pkg/sitemodel"
	"github.com/hamradio-go/dmr-trunkctl/pkg/trunking"
)

// msDataSync is the synctype value signalling an MS Data sync
// pattern, used to disambiguate opcode 56 between BS_Dwn_Act and the
// ordinary TD_GRANT multi-item grant.
const msDataSync = 33

// PDU is one CSBK (or MBC continuation) as delivered by the PHY
// layer, plus the flags it reports alongside the bits.
type PDU struct {
	Bits                []byte
	CRCOK               bool
	IrrecoverableErrors int
	SyncType            byte
}

// Loop is the dispatch loop: it owns the site model, the Cap+
// reassembly buffers for both timeslots, and the policy controller
// that ultimately drives the tuner.
type Loop struct {
	store    *sitemodel.Store
	policy   *trunking.Controller
	capPlus  [2]mbc.ReassemblyBuffer
	dmrlaSet bool
	dmrlaN   uint8
	log      *logger.Logger
	metrics  *metrics.Collector
}

// New wires a dispatch Loop around an existing site model and policy
// controller. dmrlaSet/dmrlaN apply the dmr_dmrla_is_set/n operator
// override to site-identity decoding.
func New(store *sitemodel.Store, policy *trunking.Controller, dmrlaSet bool, dmrlaN uint8, log *logger.Logger) *Loop {
	return &Loop{store: store, policy: policy, dmrlaSet: dmrlaSet, dmrlaN: dmrlaN, log: log.WithComponent("dispatch")}
}

// WithMetrics attaches a metrics collector; decoded/rejected CSBK
// counts are recorded as Process runs. Safe to omit.
func (l *Loop) WithMetrics(m *metrics.Collector) *Loop {
	l.metrics = m
	return l
}

// Outcome summarizes what happened to one PDU, for diagnostics/tests.
type Outcome struct {
	Reason   string // "", "irrecoverable", "crc", "protected"
	Event    csbk.Event
	Decision trunking.Decision
}

// Process runs one PDU through the seven-step dispatch sequence.
func (l *Loop) Process(ctx context.Context, pdu PDU, now time.Time) Outcome {
	hdr := csbk.ParseHeader(pdu.Bits)

	forcedSeq := hdr.FID == csbk.FIDHyteraXPT && (hdr.Opcode == 0x0A || hdr.Opcode == 0x0B)
	if forcedSeq {
		hdr.Protect = false
	}

	if pdu.IrrecoverableErrors != 0 {
		l.countRejected("irrecoverable")
		return Outcome{Reason: "irrecoverable"}
	}

	if !pdu.CRCOK {
		l.countRejected("crc")
		return Outcome{Reason: "crc"}
	}

	if hdr.Protect {
		l.log.Info("Protected CSBK, not parsed", logger.Uint("opcode", uint(hdr.Opcode)))
		l.countRejected("protected")
		return Outcome{Reason: "protected"}
	}

	if l.metrics != nil {
		l.metrics.CSBKDecoded()
	}

	l.store.Sweep(now)
	l.store.NoteSite(now)

	if hdr.FID != csbk.FIDETSI {
		l.store.SetMFID(byte(hdr.FID))
	}

	return l.route(ctx, hdr, pdu, now)
}

func (l *Loop) countRejected(reason string) {
	if l.metrics != nil {
		l.metrics.CSBKRejected(reason)
	}
}

func (l *Loop) route(ctx context.Context, hdr csbk.Header, pdu PDU, now time.Time) Outcome {
	if hdr.FID == csbk.FIDCapacityPlusMax && hdr.Opcode == 0x3E {
		return l.routeCapPlusStatus(ctx, pdu, now)
	}

	opcode := hdr.Opcode
	if opcode == 56 && hdr.FID == csbk.FIDETSI && pdu.SyncType == msDataSync {
		r := bitstream.New(pdu.Bits)
		ev := csbk.BsDownActivation{
			Target: uint32(r.Uint(32, 24)),
			Source: uint32(r.Uint(56, 24)),
		}
		return Outcome{Event: ev}
	}

	ev := csbk.Parse(pdu.Bits, hdr.FID, opcode, l.dmrlaSet, l.dmrlaN)

	dec := l.policy.Apply(ctx, ev, now)
	l.recordDisplay(ev, now)
	return Outcome{Event: ev, Decision: dec}
}

func (l *Loop) routeCapPlusStatus(ctx context.Context, pdu PDU, now time.Time) Outcome {
	if len(pdu.Bits) < 19 {
		return Outcome{Reason: "irrecoverable"}
	}
	r := bitstream.New(pdu.Bits)
	fl := mbc.FragmentLength(r.Uint(16, 2))
	ts := 0
	if r.Bit(18) {
		ts = 1
	}

	buf := &l.capPlus[ts]
	complete := buf.Feed(fl, pdu.Bits)
	if !complete {
		return Outcome{Event: nil}
	}

	status := mbc.DecodeStatus(buf.Bits(), fl)
	l.store.StoreCapPlusBlock(ts+1, buf.Bits(), 0)
	if freq := l.store.ChannelFreq(uint16(status.RestLSN)); freq != 0 {
		l.store.SetCCFreq(freq)
	}
	l.store.SetRestChannel(status.RestLSN)

	ev := csbk.CapPlusStatus{
		RestLSN:        status.RestLSN,
		GroupBits:      status.GroupBits,
		GroupTargets:   status.GroupTargets,
		PrivateBits:    status.PrivateBits,
		PrivateTargets: status.PrivateTargets,
		DisplayStart:   status.DisplayStart,
		DisplayEnd:     status.DisplayEnd,
		FragmentLength: status.FragmentLength,
		Timeslot:       status.Timeslot,
	}
	dec := l.policy.Apply(ctx, ev, now)
	l.recordDisplay(ev, now)
	return Outcome{Event: ev, Decision: dec}
}

// recordDisplay writes a human-readable summary into sitemodel for
// grant and site-status events; it runs after the policy engine has
// made its decision. Other event types are not recorded here.
func (l *Loop) recordDisplay(ev csbk.Event, now time.Time) {
	switch e := ev.(type) {
	case csbk.ChannelGrant:
		kind := "Active Private Ch"
		switch e.Kind {
		case csbk.GrantTV, csbk.GrantBTV:
			kind = "Active Group Ch"
		case csbk.GrantPDSingle, csbk.GrantTDSingle, csbk.GrantPDDX, csbk.GrantPDMulti, csbk.GrantTDMulti:
			kind = "Active Data Ch"
		}
		l.store.NoteGrant(now, e.Slot, fmt.Sprintf("%s: %d TG: %d; ", kind, e.LPChanNum, e.Target), e.Target, e.Source)
	case csbk.XptSiteStatus:
		l.store.SetBranding("Hytera", "XPT ")
		l.store.SetSiteParms(fmt.Sprintf("Free LCN - %d ", e.FreeLCN))
		for i, status := range e.LSNStatus {
			if status == 0 {
				continue
			}
			lsn := i + int(e.Seq)*6 + 1
			l.store.NoteActive(now, int(e.Seq), fmt.Sprintf("XPT LSN:%d TG:%d; ", lsn, e.LSNTarget[i]))
		}
	case csbk.ConnectPlusNeighbors:
		l.store.SetBranding("Motorola", "Con+ ")
	case csbk.ConnectPlusGrant:
		l.store.SetBranding("Motorola", "Con+ ")
		l.store.NoteGrant(now, e.Slot, fmt.Sprintf("Active Ch: %d TG: %d; ", e.LCN, e.Group), e.Group, e.Source)
	}
}
