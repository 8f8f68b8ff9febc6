package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/hamradio-go/dmr-trunkctl/pkg/csbk"
	"github.com/hamradio-go/dmr-trunkctl/pkg/logger"
	"github.com/hamradio-go/dmr-trunkctl/pkg/sitemodel"
	"github.com/hamradio-go/dmr-trunkctl/pkg/trunking"
	"github.com/hamradio-go/dmr-trunkctl/pkg/tuner"
)

// setUint writes width bits of val MSB-first into bits[offset:], in
// the one-bit-per-byte representation pkg/bitstream expects.
func setUint(bits []byte, offset, width int, val uint64) {
	for i := 0; i < width; i++ {
		shift := uint(width - 1 - i)
		bits[offset+i] = byte((val >> shift) & 1)
	}
}

func grantPDU(opcode uint8, fid uint8, lpchannum uint16, lcn bool, emergency bool, target, source uint32) []byte {
	bits := make([]byte, 96)
	setUint(bits, 2, 6, uint64(opcode))
	setUint(bits, 8, 8, uint64(fid))
	setUint(bits, 16, 12, uint64(lpchannum))
	if lcn {
		bits[28] = 1
	}
	if emergency {
		bits[30] = 1
	}
	setUint(bits, 32, 24, uint64(target))
	setUint(bits, 56, 24, uint64(source))
	return bits
}

func clearPDU() []byte {
	bits := make([]byte, 96)
	setUint(bits, 2, 6, 46)
	return bits
}

func xptSiteStatusPDU(seq uint8, freeLCN uint8, lsn2TG uint8) []byte {
	bits := make([]byte, 96)
	setUint(bits, 8, 8, 0x68)
	setUint(bits, 2, 6, 0x0A)
	bits[1] = 1 // overwritten by seq below: bit 1 (pf) ends up set only for seq 1 or 3
	setUint(bits, 0, 2, uint64(seq))
	setUint(bits, 16, 4, uint64(freeLCN))
	setUint(bits, 20+1*2, 2, 3) // LSN2 status = 3 (active TG)
	setUint(bits, 32+1*8, 8, uint64(lsn2TG))
	return bits
}

// capPlusStatusPDU builds a single-block (fl=3) Capacity+ Channel
// Status PDU carrying one active group call, so a full PDU->Event->
// Apply pass can be exercised without a multi-block reassembly
// sequence (already covered at the mbc package level).
func capPlusStatusPDU(restLSN uint8, bankOne uint8, groupTG uint8) []byte {
	bits := make([]byte, 96)
	setUint(bits, 2, 6, 0x3E)
	setUint(bits, 8, 8, 0x10)
	setUint(bits, 16, 2, uint64(mbcFragmentSingle))
	setUint(bits, 20, 4, uint64(restLSN))
	setUint(bits, 24, 8, uint64(bankOne))
	setUint(bits, 32, 8, uint64(groupTG))
	return bits
}

// mbcFragmentSingle mirrors mbc.FragmentSingle without importing the
// mbc package just for a test fixture constant.
const mbcFragmentSingle = 3

func newHarness(cfg trunking.Config, groupMap map[uint32]sitemodel.GroupEntry, chanMap map[uint16]uint64) (*Loop, *sitemodel.Store, *tuner.Mock) {
	store := sitemodel.New(groupMap, chanMap)
	mock := &tuner.Mock{}
	log := logger.New(logger.Config{Level: "error"})
	ctrl := trunking.NewController(cfg, store, mock, log)
	return New(store, ctrl, false, 0, log), store, mock
}

func TestDispatch_TVGrant_TunesKnownChannel(t *testing.T) {
	cfg := trunking.Config{TrunkEnabled: true, TuneGroupCalls: true}
	loop, store, mock := newHarness(cfg,
		map[uint32]sitemodel.GroupEntry{3101: {Name: "DISP"}},
		map[uint16]uint64{12: 451_025_000})
	store.SetCCFreq(452_000_000)

	now := time.Now()
	pdu := PDU{Bits: grantPDU(49, 0, 12, false, false, 3101, 1234567), CRCOK: true}
	out := loop.Process(context.Background(), pdu, now)

	if out.Decision.Kind != trunking.Tune || out.Decision.Freq != 451_025_000 {
		t.Fatalf("decision = %+v, want Tune at 451025000", out.Decision)
	}
	snap := store.Snapshot()
	if !snap.IsTuned || snap.VCFreq[0] != 451_025_000 || snap.VCFreq[1] != 451_025_000 {
		t.Fatalf("snapshot = %+v, want tuned at 451025000 on both slots", snap)
	}
	if got := snap.ActiveChannel[0]; got != "Active Group Ch: 12 TG: 3101; " {
		t.Fatalf("ActiveChannel[0] = %q, want exact active-channel text", got)
	}
	if len(mock.FreqCalls) != 1 {
		t.Fatalf("expected exactly one tuner call, got %v", mock.FreqCalls)
	}
}

func TestDispatch_BlockListedTargetSkipsTune(t *testing.T) {
	cfg := trunking.Config{TrunkEnabled: true, TuneGroupCalls: true}
	loop, _, mock := newHarness(cfg,
		map[uint32]sitemodel.GroupEntry{3101: {Mode: "B"}},
		map[uint16]uint64{12: 451_025_000})

	pdu := PDU{Bits: grantPDU(49, 0, 12, false, false, 3101, 1234567), CRCOK: true}
	out := loop.Process(context.Background(), pdu, time.Now())

	if out.Decision.Kind != trunking.NoOp {
		t.Fatalf("decision = %+v, want NoOp for blocked target", out.Decision)
	}
	if len(mock.FreqCalls) != 0 {
		t.Fatalf("expected zero tuner calls, got %v", mock.FreqCalls)
	}
}

func TestDispatch_PClearAfterVoiceStops(t *testing.T) {
	cfg := trunking.Config{TrunkEnabled: true, HangTime: 5 * time.Second, TuneDataCalls: false}
	loop, store, mock := newHarness(cfg, nil, nil)
	store.SetCCFreq(452_000_000)

	now := time.Now()
	store.SetTunerState(now.Add(-10*time.Second), 451_025_000, true)

	out := loop.Process(context.Background(), PDU{Bits: clearPDU(), CRCOK: true}, now)
	if out.Decision.Kind != trunking.RetuneToCC || out.Decision.Freq != 452_000_000 {
		t.Fatalf("decision = %+v, want RetuneToCC at 452000000", out.Decision)
	}
	snap := store.Snapshot()
	if snap.IsTuned || snap.VCFreq[0] != 0 {
		t.Fatalf("expected untuned/zeroed vc_freq after clear, got %+v", snap)
	}
	if len(mock.FreqCalls) != 1 {
		t.Fatalf("expected one retune call, got %v", mock.FreqCalls)
	}
}

func TestDispatch_XptSiteStatus(t *testing.T) {
	cfg := trunking.Config{TrunkEnabled: true}
	loop, store, _ := newHarness(cfg, nil, nil)

	pdu := PDU{Bits: xptSiteStatusPDU(0, 3, 17), CRCOK: true}
	out := loop.Process(context.Background(), pdu, time.Now())

	ev, ok := out.Event.(csbk.XptSiteStatus)
	if !ok {
		t.Fatalf("event type = %T, want csbk.XptSiteStatus", out.Event)
	}
	if ev.FreeLCN != 3 {
		t.Fatalf("FreeLCN = %d, want 3", ev.FreeLCN)
	}
	if ev.LSNStatus[1] != 3 || ev.LSNTarget[1] != 17 {
		t.Fatalf("LSN2 = (status=%d target=%d), want (3, 17)", ev.LSNStatus[1], ev.LSNTarget[1])
	}

	snap := store.Snapshot()
	if snap.BrandingSub != "XPT " {
		t.Fatalf("BrandingSub = %q, want \"XPT \"", snap.BrandingSub)
	}
	if snap.SiteParms != "Free LCN - 3 " {
		t.Fatalf("SiteParms = %q, want \"Free LCN - 3 \"", snap.SiteParms)
	}
}

func TestDispatch_CapPlusStatus_TunesFirstActiveLSN(t *testing.T) {
	cfg := trunking.Config{TrunkEnabled: true, TuneGroupCalls: true}
	loop, store, mock := newHarness(cfg,
		map[uint32]sitemodel.GroupEntry{1: {Name: "DISP"}},
		map[uint16]uint64{1: 451_025_000})
	store.SetCCFreq(452_000_000)

	now := time.Now()
	// bank1=0x80 marks LSN1 active with TG 1; rest LSN 2 is left
	// unmapped so the rest-channel latch doesn't disturb cc_freq.
	pdu := PDU{Bits: capPlusStatusPDU(2, 0x80, 1), CRCOK: true}
	out := loop.Process(context.Background(), pdu, now)

	if out.Decision.Kind != trunking.Tune || out.Decision.Freq != 451_025_000 {
		t.Fatalf("decision = %+v, want exactly one Tune attempt to trunk_chan_map[1]", out.Decision)
	}
	if len(mock.FreqCalls) != 1 || mock.FreqCalls[0] != 451_025_000 {
		t.Fatalf("tuner.SetFreq calls = %v, want exactly one call to 451025000", mock.FreqCalls)
	}
}

func TestDispatch_ProtectedXptExceptionStillParses(t *testing.T) {
	cfg := trunking.Config{TrunkEnabled: true}
	loop, _, _ := newHarness(cfg, nil, nil)

	// seq 1 puts a one in bit 1, the pf position.
	pdu := PDU{Bits: xptSiteStatusPDU(1, 3, 17), CRCOK: true}
	out := loop.Process(context.Background(), pdu, time.Now())

	if out.Reason == "protected" {
		t.Fatalf("expected XPT pf exception to force pf=0 and parse normally, got Reason=%q", out.Reason)
	}
	if _, ok := out.Event.(csbk.XptSiteStatus); !ok {
		t.Fatalf("event type = %T, want csbk.XptSiteStatus despite bit 1 set", out.Event)
	}
}

func TestDispatch_IdempotentClearWhenUntuned(t *testing.T) {
	cfg := trunking.Config{TrunkEnabled: true, HangTime: 5 * time.Second}
	loop, store, mock := newHarness(cfg, nil, nil)
	store.SetCCFreq(452_000_000)

	out := loop.Process(context.Background(), PDU{Bits: clearPDU(), CRCOK: true}, time.Now())
	if out.Decision.Kind != trunking.NoOp {
		t.Fatalf("decision = %+v, want NoOp on idempotent clear", out.Decision)
	}
	if len(mock.FreqCalls) != 0 {
		t.Fatalf("expected zero tuner calls, got %v", mock.FreqCalls)
	}
}

func TestDispatch_CRCFailureIsANoOp(t *testing.T) {
	cfg := trunking.Config{TrunkEnabled: true, TuneGroupCalls: true}
	loop, _, mock := newHarness(cfg, nil, map[uint16]uint64{12: 451_025_000})

	pdu := PDU{Bits: grantPDU(49, 0, 12, false, false, 3101, 1234567), CRCOK: false}
	out := loop.Process(context.Background(), pdu, time.Now())

	if out.Reason != "crc" {
		t.Fatalf("Reason = %q, want \"crc\"", out.Reason)
	}
	if len(mock.FreqCalls) != 0 {
		t.Fatalf("expected no tuner calls on CRC failure, got %v", mock.FreqCalls)
	}
}
