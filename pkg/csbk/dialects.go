package csbk

import "github.com/hamradio-go/dmr-trunkctl/pkg/bitstream"

// parseDialect handles the FID-specific opcode overlaps: Connect+
// (0x06), Capacity+/Max (0x10), and Hytera XPT (0x68). ok is false
// when the (fid, opcode) pair isn't one of the known dialect opcodes,
// so the caller falls through to the ETSI-common dispatch (vendors
// still use some ETSI-common opcodes unmodified, e.g. P_CLEAR).
func parseDialect(r bitstream.Reader, fid FID, opcode uint8) (Event, bool) {
	switch fid {
	case FIDConnectPlus:
		return parseConnectPlus(r, opcode)
	case FIDCapacityPlusMax:
		return parseCapacityPlus(r, opcode)
	case FIDHyteraXPT:
		return parseHyteraXPT(r, opcode)
	default:
		return nil, false
	}
}

func parseConnectPlus(r bitstream.Reader, opcode uint8) (Event, bool) {
	switch opcode {
	case 0x01:
		var ids [5]uint8
		for i := range ids {
			ids[i] = uint8(r.Uint(18+i*8, 6))
		}
		return ConnectPlusNeighbors{IDs: ids}, true
	case 0x03:
		lcn := uint8(r.Uint(64, 4))
		slot := 1
		if r.Bit(68) {
			slot = 2
		}
		return ConnectPlusGrant{
			Source: uint32(r.Uint(16, 24)),
			Group:  uint32(r.Uint(40, 24)),
			LCN:    lcn,
			Slot:   slot,
		}, true
	default:
		return nil, false
	}
}

func parseCapacityPlus(r bitstream.Reader, opcode uint8) (Event, bool) {
	switch opcode {
	case 0x3A:
		var raw [10]byte
		for i := range raw {
			raw[i] = byte(r.Uint(i*8, 8))
		}
		return CapPlusUnknown{Raw: raw}, true
	case 0x3B:
		var entries [6]struct {
			Site uint8
			Rest uint8
		}
		for i := range entries {
			off := 32 + i*8
			entries[i].Site = uint8(r.Uint(off, 4))
			entries[i].Rest = uint8(r.Uint(off+4, 4))
		}
		return CapPlusAdjacent{Entries: entries}, true
	case 0x3E:
		// This opcode is only ever decoded from a fully reassembled
		// buffer by mbc.DecodeStatus (see pkg/mbc); a lone 96-bit
		// PDU carrying fl alone isn't decodable on its own.
		return nil, false
	case 41:
		var raw [8]byte
		for i := range raw {
			raw[i] = byte(r.Uint(i*8, 8))
		}
		return MotoDataAnnounce{Raw: raw}, true
	default:
		return nil, false
	}
}

func parseHyteraXPT(r bitstream.Reader, opcode uint8) (Event, bool) {
	switch opcode {
	case 0x0A:
		seq := uint8(r.Uint(0, 2))
		freeLCN := uint8(r.Uint(16, 4))
		var status [6]uint8
		var target [6]uint16
		for i := range status {
			status[i] = uint8(r.Uint(20+i*2, 2))
			target[i] = uint16(r.Uint(32+i*8, 8))
		}
		return XptSiteStatus{
			FreeLCN:   freeLCN,
			Seq:       seq,
			LSNStatus: status,
			LSNTarget: target,
		}, true
	case 0x0B:
		seq := uint8(r.Uint(0, 2))
		var entries [4]struct {
			SiteID    uint8
			Reserved1 uint8
			FreeLCN   uint8
			Reserved2 uint8
		}
		for i := range entries {
			off := 16 + i*16
			entries[i].SiteID = uint8(r.Uint(off, 5))
			entries[i].Reserved1 = uint8(r.Uint(off+5, 3))
			entries[i].FreeLCN = uint8(r.Uint(off+8, 4))
			entries[i].Reserved2 = uint8(r.Uint(off+12, 4))
		}
		return XptAdjacent{Seq: seq, Entries: entries}, true
	default:
		return nil, false
	}
}
