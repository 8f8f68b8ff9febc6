// Package csbk decodes 96-bit DMR Control Signalling Blocks (and their
// MBC/multi-block extensions) into typed Events. Parsing is pure: it
// never mutates site state and never drives a tuner.
package csbk

import (
	"github.com/hamradio-go/dmr-trunkctl/pkg/bitstream"
	"github.com/hamradio-go/dmr-trunkctl/pkg/gwid"
)

// Header is the common 16-bit CSBK preamble shared by every opcode.
type Header struct {
	LastBlock bool
	Protect   bool
	Opcode    uint8
	FID       FID
}

// ParseHeader reads lb/pf/opcode/fid from bits 0-15. For Hytera XPT
// opcodes 0x0A/0x0B, bits 0-1 carry a 2-bit sequence number instead of
// lb/pf; callers performing the pf exception must force Protect=false
// themselves (see pkg/dispatch), since Parse has no synctype/exception
// context of its own.
func ParseHeader(bits []byte) Header {
	r := bitstream.New(bits)
	return Header{
		LastBlock: r.Bit(0),
		Protect:   r.Bit(1),
		Opcode:    uint8(r.Uint(2, 6)),
		FID:       FID(r.Uint(8, 8)),
	}
}

// Parse decodes a CSBK/MBC PDU into an Event. bits must carry at least
// 96 bits; a grant with lpchannum==0xFFF needs 176 bits (the appended
// MBC absolute-parameters block) to resolve AbsParams, but still
// returns a ChannelGrant with AbsParams==nil if the extra bits are
// absent. dmrlaOverrideSet/N apply the dmr_dmrla_is_set/n config
// override to site-identity decoding.
func Parse(bits []byte, fid FID, opcode uint8, dmrlaOverrideSet bool, dmrlaOverrideN uint8) Event {
	r := bitstream.New(bits)

	if opcode >= 48 && opcode <= 56 {
		return parseChannelGrant(r, fid, opcode)
	}

	if fid != FIDETSI {
		if ev, ok := parseDialect(r, fid, opcode); ok {
			return ev
		}
	}

	switch opcode {
	case 4:
		return UnitToUnitVoiceRequest{Target: uint32(r.Uint(32, 24)), Source: uint32(r.Uint(56, 24))}
	case 5:
		return UnitToUnitVoiceAnswer{Target: uint32(r.Uint(32, 24)), Source: uint32(r.Uint(56, 24))}
	case 7:
		return ChannelTiming{}
	case 25:
		return parseAloha(r, fid, dmrlaOverrideSet, dmrlaOverrideN)
	case 28:
		return parseAhoy(r)
	case 30:
		return Ackvitation{}
	case 31:
		return Rand{}
	case 33:
		return Acknowledgement{}
	case 38:
		return Nack{Target: uint32(r.Uint(32, 24)), Source: uint32(r.Uint(56, 24))}
	case 40:
		return parseBroadcast(r, fid, dmrlaOverrideSet, dmrlaOverrideN)
	case 42:
		return parseMaint(r)
	case 46:
		return Clear{FID: fid}
	case 47:
		return parseProtect(r)
	case 57:
		return Move{}
	case 61:
		return parsePreamble(r, fid)
	default:
		return Unknown{FID: fid, Opcode: opcode}
	}
}

func parseChannelGrant(r bitstream.Reader, fid FID, opcode uint8) Event {
	var kind GrantKind
	switch opcode {
	case 48:
		kind = GrantPV
	case 49:
		kind = GrantTV
	case 50:
		kind = GrantBTV
	case 51:
		kind = GrantPDSingle
	case 52:
		kind = GrantTDSingle
	case 53:
		kind = GrantPVDX
	case 54:
		kind = GrantPDDX
	case 55:
		kind = GrantPDMulti
	case 56:
		kind = GrantTDMulti
	}

	lpchannum := uint16(r.Uint(16, 12))
	lcn := r.Bit(28)
	emergency := r.Bit(30)
	target := uint32(r.Uint(32, 24))
	source := uint32(r.Uint(56, 24))
	srcLabel, tgtLabel, _ := gwid.ClassifyPair(source, target)

	g := ChannelGrant{
		Kind:        kind,
		FID:         fid,
		LPChanNum:   lpchannum,
		Slot:        slotOf(lcn),
		Target:      target,
		Source:      source,
		Emergency:   emergency,
		SourceLabel: srcLabel,
		TargetLabel: tgtLabel,
	}

	if lpchannum == 0xFFF && r.Len() >= 176 {
		cdeftype := uint8(r.Uint(112, 4))
		g.CdefType = cdeftype
		if cdeftype == 0 {
			txInt := uint16(r.Uint(130, 10))
			txStep := uint16(r.Uint(140, 13))
			rxInt := uint16(r.Uint(153, 10))
			rxStep := uint16(r.Uint(163, 13))
			g.AbsParams = &AbsoluteChannelParams{
				LPChanNum: uint16(r.Uint(118, 12)),
				TxIntMHz:  txInt,
				TxStep:    txStep,
				RxIntMHz:  rxInt,
				RxStep:    rxStep,
				TxFreqHz:  uint64(txInt)*1_000_000 + uint64(txStep)*125,
				RxFreqHz:  uint64(rxInt)*1_000_000 + uint64(rxStep)*125,
			}
		} else {
			raw := r.Uint(118, 58)
			g.UnknownCdef = &raw
		}
	}

	return g
}

func slotOf(lcn bool) int {
	if lcn {
		return 2
	}
	return 1
}

func parseAloha(r bitstream.Reader, fid FID, dmrlaOverrideSet bool, dmrlaOverrideN uint8) Event {
	site := decodeSiteID(r, fid, dmrlaOverrideSet, dmrlaOverrideN)
	return Aloha{
		Site:                 site,
		Category:             Category(r.Uint(54, 2)),
		RegistrationRequired: r.Bit(35),
		Version:              uint8(r.Uint(19, 3)),
		Mask:                 uint8(r.Uint(24, 5)),
		TargetMS:             uint32(r.Uint(56, 24)),
	}
}

func parseAhoy(r bitstream.Reader) Event {
	target := uint32(r.Uint(32, 24))
	source := uint32(r.Uint(56, 24))
	srcLabel, tgtLabel, _ := gwid.ClassifyPair(source, target)
	return Ahoy{
		ServiceOpt:      uint8(r.Uint(16, 7)),
		ServiceFlag:     r.Bit(23),
		AlsFlag:         r.Bit(24),
		GroupFlag:       r.Bit(25),
		UdtBlocksFollow: uint8(r.Uint(26, 2)),
		ServiceKind:     uint8(r.Uint(28, 4)),
		Target:          target,
		Source:          source,
		SourceLabel:     srcLabel,
		TargetLabel:     tgtLabel,
	}
}

func parseBroadcast(r bitstream.Reader, fid FID, dmrlaOverrideSet bool, dmrlaOverrideN uint8) Event {
	rawType := uint8(r.Uint(16, 5))
	var subtype BroadcastSubtype
	switch rawType {
	case 0:
		subtype = BroadcastAnnWDTSCC
	case 1:
		subtype = BroadcastCallTimer
	case 2:
		subtype = BroadcastVoteNow
	case 3:
		subtype = BroadcastLocalTime
	case 4:
		subtype = BroadcastMassReg
	case 5:
		subtype = BroadcastChanFreq
	case 6:
		subtype = BroadcastAdjacentSite
	case 7:
		subtype = BroadcastGenSiteParams
	case 0x1E, 0x1F:
		subtype = BroadcastMfrSpecific
	default:
		subtype = BroadcastReserved
	}

	b := Broadcast{
		Subtype: subtype,
		RawType: rawType,
	}
	if subtype == BroadcastAnnWDTSCC || subtype == BroadcastAdjacentSite || subtype == BroadcastGenSiteParams {
		b.Site = decodeSiteID(r, fid, dmrlaOverrideSet, dmrlaOverrideN)
		b.Category = Category(r.Uint(54, 2))
	}
	if r.Len() >= 96 {
		b.LPChanNum = uint16(r.Uint(80, 12) & 0xFFF)
	}
	return b
}

func parseMaint(r bitstream.Reader) Event {
	rawKind := uint8(r.Uint(28, 3))
	kind := MaintReserved
	if rawKind == 0 {
		kind = MaintDisconnect
	}
	target := uint32(r.Uint(32, 24))
	source := uint32(r.Uint(56, 24))
	srcLabel, tgtLabel, _ := gwid.ClassifyPair(source, target)
	return Maint{
		Kind:        kind,
		RawKind:     rawKind,
		Target:      target,
		Source:      source,
		SourceLabel: srcLabel,
		TargetLabel: tgtLabel,
	}
}

func parseProtect(r bitstream.Reader) Event {
	rawKind := uint8(r.Uint(28, 3))
	var kind ProtectKind
	switch rawKind {
	case 0:
		kind = ProtectDisPTT
	case 1:
		kind = ProtectEnPTT
	case 2:
		kind = ProtectIllegallyParks
	case 3:
		kind = ProtectEnPTTOneMS
	default:
		kind = ProtectDisPTT
	}
	target := uint32(r.Uint(32, 24))
	source := uint32(r.Uint(56, 24))
	srcLabel, tgtLabel, _ := gwid.ClassifyPair(source, target)
	return Protect{
		Kind:        kind,
		RawKind:     rawKind,
		GroupFlag:   r.Bit(31),
		Target:      target,
		Source:      source,
		SourceLabel: srcLabel,
		TargetLabel: tgtLabel,
	}
}

func parsePreamble(r bitstream.Reader, fid FID) Event {
	p := Preamble{
		ContentIsData: r.Bit(16),
		GroupFlag:     r.Bit(17),
		Blocks:        uint8(r.Uint(24, 8)),
	}

	if fid == FIDHyteraXPT || fid == FIDCapacityPlusMax {
		p.Target = uint32(r.Uint(40, 16))
		p.Source = uint32(r.Uint(64, 16))
		if fid == FIDHyteraXPT && !p.GroupFlag {
			hash := crc8(r.Slice(40, 16))
			p.TargetHash = &hash
		}
		if fid == FIDCapacityPlusMax {
			rest := uint8(r.Uint(20, 4))
			p.RestLSN = &rest
		}
		return p
	}

	p.Target = uint32(r.Uint(32, 24))
	p.Source = uint32(r.Uint(56, 24))
	return p
}
