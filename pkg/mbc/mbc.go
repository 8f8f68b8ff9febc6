// Package mbc reassembles Capacity+ Channel Status PDUs (CSBK opcode
// 0x3E) across a 2-bit fl fragment field acting as LCSS, and decodes
// the completed buffer into per-LSN group/private call activity.
package mbc

import "github.com/hamradio-go/dmr-trunkctl/pkg/bitstream"

// FragmentLength is the 2-bit fl field: fl=3 single, fl=2 initial,
// fl=0 appended, fl=1 final.
type FragmentLength uint8

const (
	FragmentSingle   FragmentLength = 3
	FragmentInitial  FragmentLength = 2
	FragmentAppended FragmentLength = 0
	FragmentFinal    FragmentLength = 1
)

// maxBlocks bounds cap_plus_block_num at 6 appended blocks per slot,
// matching the per-slot storage budget (80 + 6*56 = 416 bits).
const maxBlocks = 6

// ReassemblyBuffer accumulates a Capacity+ Channel Status PDU for one
// timeslot across its fl-tagged fragments. All block-offset arithmetic
// lives here so csbk/dispatch never touch raw bit offsets directly.
type ReassemblyBuffer struct {
	bits     []byte // one-bit-per-byte, grows to 80+6*56=416 bits
	blockNum int
}

// Reset clears the buffer, matching the fl∈{2,3} initial/single case.
func (b *ReassemblyBuffer) Reset() {
	b.bits = nil
	b.blockNum = 0
}

// Start begins a new message from an initial or single-block PDU. pdu
// must carry at least 80 bits; only the first 80 are retained.
func (b *ReassemblyBuffer) Start(pdu []byte) {
	b.bits = append([]byte(nil), pdu[:80]...)
	b.blockNum = 0
}

// Append attaches an appended or final continuation block. pdu's
// first 24 bits are the block's own CSBK-style header/fl and are
// skipped; bits 24-79 (56 bits) are the payload appended at the next
// 7-byte slot.
func (b *ReassemblyBuffer) Append(pdu []byte) {
	if b.blockNum >= maxBlocks {
		b.blockNum = maxBlocks
		return
	}
	payload := pdu[24:80]
	b.bits = append(b.bits, payload...)
	b.blockNum++
}

// IsComplete reports whether the buffer holds at least the 80-bit
// header block (true as soon as Start has been called).
func (b *ReassemblyBuffer) IsComplete() bool {
	return len(b.bits) >= 80
}

// Bits returns the assembled buffer.
func (b *ReassemblyBuffer) Bits() []byte {
	return b.bits
}

// Feed drives the buffer through one PDU arrival per the §4.D
// assembly rules, returning true once fl signals a decodable
// (complete) message.
func (b *ReassemblyBuffer) Feed(fl FragmentLength, pdu []byte) bool {
	switch fl {
	case FragmentInitial, FragmentSingle:
		b.Reset()
		b.Start(pdu)
	case FragmentAppended, FragmentFinal:
		b.Append(pdu)
	}
	return fl == FragmentFinal || fl == FragmentSingle
}

// Status is the decoded Capacity+ Channel Status PDU.
type Status struct {
	RestLSN        uint8
	Timeslot       uint8
	FragmentLength uint8
	GroupBits      [16]bool
	GroupTargets   [16]uint16
	PrivateBits    [16]bool
	PrivateTargets [16]uint16
	DisplayStart   int
	DisplayEnd     int
}

// DecodeStatus decodes a completed ReassemblyBuffer per §4.D. bits
// must be the buffer returned by Bits() after Feed reported complete.
func DecodeStatus(bits []byte, fl FragmentLength) Status {
	r := bitstream.New(bits)

	ts := uint8(0)
	if r.Bit(18) {
		ts = 1
	}
	restLSN := uint8(r.Uint(20, 4))

	var groupBits [16]bool
	var groupTargets [16]uint16

	groupTally := 0
	bankOne := uint8(r.Uint(24, 8))
	for i := 0; i < 8; i++ {
		if r.Bit(24 + i) {
			groupBits[i] = true
			groupTally++
		}
	}

	bankTwoOff := 32 + groupTally*8
	bankTwo := uint8(r.Uint(bankTwoOff, 8))
	if bankTwo != 0 {
		for i := 0; i < 8; i++ {
			if r.Bit(bankTwoOff + i) {
				groupBits[i+8] = true
				groupTally++
			}
		}
	}

	var privateBits [16]bool
	var privateTargets [16]uint16

	pdFlagOff := 40 + groupTally*8
	pdFlag := uint8(r.Uint(pdFlagOff, 8))
	pdB2 := 0
	if (fl == FragmentFinal || fl == FragmentSingle) && pdFlag != 0 {
		k := 0
		presenceOff := 48 + groupTally*8
		for i := 0; i < 8; i++ {
			if r.Bit(presenceOff + i) {
				privateBits[i] = true
				targetOff := 56 + k*16 + groupTally*8
				privateTargets[i] = uint16(r.Uint(targetOff, 16))
				k++
			}
		}
		pdB2 = k
	}

	pdFlag2Off := 56 + groupTally*8 + pdB2*16
	pdFlag2 := uint8(r.Uint(pdFlag2Off, 8))
	if (fl == FragmentFinal || fl == FragmentSingle) && pdFlag2 != 0 {
		k := 0
		presenceOff := 64 + groupTally*8 + pdB2*16
		for i := 0; i < 8; i++ {
			if r.Bit(presenceOff + i) {
				privateBits[i+8] = true
				targetOff := 64 + k*16 + groupTally*8 + pdB2*16
				privateTargets[i+8] = uint16(r.Uint(targetOff, 16))
				k++
			}
		}
	}

	k := 0
	for i := 0; i < 16; i++ {
		if groupBits[i] {
			groupTargets[i] = uint16(r.Uint(32+k*8, 8))
			k++
		}
	}

	start, end := displayWindow(bankOne, bankTwo, restLSN)

	return Status{
		RestLSN:        restLSN,
		Timeslot:       ts,
		FragmentLength: uint8(fl),
		GroupBits:      groupBits,
		GroupTargets:   groupTargets,
		PrivateBits:    privateBits,
		PrivateTargets: privateTargets,
		DisplayStart:   start,
		DisplayEnd:     end,
	}
}

// displayWindow picks a [start,end) window covering any active bank
// plus the bank containing restLSN, snapped to 4-LSN boundaries.
func displayWindow(bankOne, bankTwo uint8, restLSN uint8) (int, int) {
	start := 0
	switch {
	case bankOne&0xF0 != 0:
		start = 0
	case restLSN < 5:
		start = 0
	case bankOne&0xF != 0:
		start = 4
	case restLSN > 4 && restLSN < 9:
		start = 4
	case bankTwo&0xF0 != 0:
		start = 8
	case restLSN > 8 && restLSN < 13:
		start = 8
	case bankTwo&0xF != 0:
		start = 12
	case restLSN > 12:
		start = 12
	}

	end := 16
	switch {
	case bankTwo&0xF != 0:
		end = 16
	case restLSN > 12:
		end = 16
	case bankTwo&0xF0 != 0:
		end = 12
	case restLSN > 9 && restLSN < 13:
		end = 12
	case bankOne&0xF != 0:
		end = 8
	case restLSN > 4 && restLSN < 9:
		end = 8
	case bankOne&0xF0 != 0:
		end = 4
	case restLSN < 5:
		end = 4
	}

	return start, end
}
