// Package sitemodel holds the mutable, process-wide trunking site
// state: current control/voice frequencies, sync freshness, branding,
// and per-slot call bookkeeping. It is read by the policy engine and UI and
// written only by the dispatch loop and policy engine.
package sitemodel

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// staleAfter is how long a slot's active-channel string survives with
// no fresh activity or voice-channel sync before it is cleared.
const staleAfter = 3 * time.Second

// GroupEntry describes a configured talkgroup's display name and
// trunking mode override.
type GroupEntry struct {
	Name string
	Mode string // "", "A", "B", "DE", ...
}

// Store is the thread-safe site model. All reads/writes take the
// lock; callers never see a torn update.
type Store struct {
	mu sync.RWMutex

	ccFreq        uint64
	vcFreq        [2]uint64
	lastCCSync    time.Time
	lastVCSync    time.Time
	lastActive    time.Time
	activeChannel [2]string
	restChannel   uint8
	branding      string
	brandingSub   string
	siteParms     string
	dmrMFID       uint8
	isTuned       bool
	isConPlus     bool
	tgHold        uint32

	groupMap      map[uint32]GroupEntry
	trunkChanMap  map[uint16]uint64
	capPlusBits   [2][]byte
	capPlusBlocks [2]int
	lastTG        [2]uint32
	lastSrc       [2]uint32
}

// New creates an empty Store. groupMap and trunkChanMap are typically
// populated once at startup from persisted configuration and then
// treated as read-mostly.
func New(groupMap map[uint32]GroupEntry, trunkChanMap map[uint16]uint64) *Store {
	if groupMap == nil {
		groupMap = map[uint32]GroupEntry{}
	}
	if trunkChanMap == nil {
		trunkChanMap = map[uint16]uint64{}
	}
	return &Store{groupMap: groupMap, trunkChanMap: trunkChanMap}
}

// NoteSite records that a well-formed CSBK advanced CC sync, per the
// invariant that last_cc_sync advances on every well-formed CSBK.
func (s *Store) NoteSite(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCCSync = now
}

// NoteGrant records a channel grant's effect on slot state: the active
// channel string, last-active timestamp, and per-slot TG/source
// history used by the clear-reason heuristics in the policy engine.
func (s *Store) NoteGrant(now time.Time, slot int, text string, tg, src uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slotIndex(slot)
	s.activeChannel[i] = text
	s.lastActive = now
	s.lastTG[i] = tg
	s.lastSrc[i] = src
}

// NoteClear resets tuned state back to the control channel.
func (s *Store) NoteClear(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeChannel[0] = ""
	s.activeChannel[1] = ""
	s.vcFreq[0] = 0
	s.vcFreq[1] = 0
	s.isTuned = false
	s.capPlusBlocks[0] = 0
	s.capPlusBlocks[1] = 0
	s.lastCCSync = now
	s.lastVCSync = time.Time{}
}

// NoteActive sets lsn's free-text display string without touching
// tuned/frequency state, used by Cap+/XPT status broadcasts that
// report activity without granting a specific dispatch-loop channel.
func (s *Store) NoteActive(now time.Time, lsn int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lsn < 0 || lsn >= len(s.activeChannel) {
		return
	}
	s.activeChannel[lsn] = text
	s.lastActive = now
}

// SetTunerState latches the tuned frequency and flag following a
// policy-engine tune decision.
func (s *Store) SetTunerState(now time.Time, freq uint64, tuned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vcFreq[0] = freq
	s.vcFreq[1] = freq
	s.isTuned = tuned
	s.lastVCSync = now
}

// ResetVCSync zeroes last_vc_sync without touching tuned state or
// frequency, used for TG-hold preemption: falling the freshness gate
// open lets a held talkgroup's grant interrupt an in-progress call.
func (s *Store) ResetVCSync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastVCSync = time.Time{}
}

// Sweep applies the staleness rule: when now - last_active > 3s AND
// now - last_vc_sync > 3s, active_channel[*] is cleared.
func (s *Store) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastActive) > staleAfter && now.Sub(s.lastVCSync) > staleAfter {
		s.activeChannel[0] = ""
		s.activeChannel[1] = ""
	}
}

// SetMFID records the dialect feature-set ID for subsequent SLC/FLC
// interpretation, per the invariant that fid != 0 propagates.
func (s *Store) SetMFID(fid uint8) {
	if fid == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dmrMFID = fid
}

// SetBranding records a vendor dialect label for display purposes.
func (s *Store) SetBranding(branding, sub string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.branding = branding
	s.brandingSub = sub
}

// SetSiteParms records a free-text site-parameter summary line (e.g.
// Hytera XPT's "Free LCN - N").
func (s *Store) SetSiteParms(parms string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.siteParms = parms
}

// SetRestChannel records the current rest/control LSN for Cap+/XPT.
func (s *Store) SetRestChannel(rest uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restChannel = rest
}

// SetConPlus marks whether the site has been identified as Connect+.
func (s *Store) SetConPlus(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isConPlus = v
}

// SetTGHold sets or clears the operator talkgroup-hold override.
func (s *Store) SetTGHold(tg uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tgHold = tg
}

// SetCCFreq records the control-channel frequency, latched from a
// Cap+ rest LSN resolving against trunk_chan_map, or from the tuner's
// current frequency when an XPT site status arrives before any
// cc_freq is known.
func (s *Store) SetCCFreq(freq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ccFreq = freq
}

// StoreCapPlusBlock saves the reassembled Cap+ channel-status buffer
// for a slot and sets its block counter to blockNum, mirroring the original's
// cap_plus_csbk_bits/cap_plus_block_num pair.
func (s *Store) StoreCapPlusBlock(slot int, bits []byte, blockNum int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slotIndex(slot)
	s.capPlusBits[i] = bits
	s.capPlusBlocks[i] = blockNum
}

// Snapshot is a point-in-time read of Store fields, used by the
// policy engine and diagnostic/UI consumers without holding the lock
// across a longer operation.
type Snapshot struct {
	CCFreq        uint64
	VCFreq        [2]uint64
	LastCCSync    time.Time
	LastVCSync    time.Time
	LastActive    time.Time
	ActiveChannel [2]string
	RestChannel   uint8
	Branding      string
	BrandingSub   string
	SiteParms     string
	DMRMFID       uint8
	IsTuned       bool
	IsConPlus     bool
	TGHold        uint32
	LastTG        [2]uint32
	LastSrc       [2]uint32
}

// Snapshot copies the current field values out from under the lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		CCFreq:        s.ccFreq,
		VCFreq:        s.vcFreq,
		LastCCSync:    s.lastCCSync,
		LastVCSync:    s.lastVCSync,
		LastActive:    s.lastActive,
		ActiveChannel: s.activeChannel,
		RestChannel:   s.restChannel,
		Branding:      s.branding,
		BrandingSub:   s.brandingSub,
		SiteParms:     s.siteParms,
		DMRMFID:       s.dmrMFID,
		IsTuned:       s.isTuned,
		IsConPlus:     s.isConPlus,
		TGHold:        s.tgHold,
		LastTG:        s.lastTG,
		LastSrc:       s.lastSrc,
	}
}

// ChannelFreq resolves a logical physical channel number to a
// frequency via trunk_chan_map, returning 0 if unmapped.
func (s *Store) ChannelFreq(lpchannum uint16) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trunkChanMap[lpchannum]
}

// Summary renders a one-line human-readable status for logs and the
// dashboard footer: frequency in SI units and sync ages in relative
// time, e.g. "CC 452 MHz, VC 451.025 MHz, synced 3 seconds ago". The
// sync age is measured against the wall clock; now is not used.
func (snap Snapshot) Summary(now time.Time) string {
	cc := humanize.SI(float64(snap.CCFreq), "Hz")
	vc := humanize.SI(float64(snap.VCFreq[0]), "Hz")
	age := humanize.Time(snap.LastVCSync)
	if snap.LastVCSync.IsZero() {
		age = "never"
	}
	return fmt.Sprintf("CC %s, VC %s, synced %s", cc, vc, age)
}

// GroupEntryFor resolves a talkgroup's configured display/mode entry.
func (s *Store) GroupEntryFor(tg uint32) (GroupEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.groupMap[tg]
	return e, ok
}

func slotIndex(slot int) int {
	if slot == 2 {
		return 1
	}
	return 0
}
