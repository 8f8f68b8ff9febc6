package csbk

import "github.com/hamradio-go/dmr-trunkctl/pkg/bitstream"

// LocationModel is the 2-bit DMRLA (DMR Location Area) model carried
// in C_ALOHA_SYS_PARMS and C_BCAST system-identity fields.
type LocationModel uint8

const (
	ModelTiny  LocationModel = 0
	ModelSmall LocationModel = 1
	ModelLarge LocationModel = 2
	ModelHuge  LocationModel = 3
)

func (m LocationModel) String() string {
	switch m {
	case ModelTiny:
		return "Tiny"
	case ModelSmall:
		return "Small"
	case ModelLarge:
		return "Large"
	case ModelHuge:
		return "Huge"
	default:
		return "Unknown"
	}
}

// netSiteBits returns the (net, site) bit widths for a DMRLA model.
func (m LocationModel) netSiteBits() (netBits, siteBits int) {
	switch m {
	case ModelTiny:
		return 9, 3
	case ModelSmall:
		return 7, 5
	case ModelLarge:
		return 4, 8
	case ModelHuge:
		return 2, 10
	default:
		return 9, 3
	}
}

// Category is the 2-bit site category field.
type Category uint8

const (
	CategoryReserved Category = 0
	CategoryA        Category = 1
	CategoryB        Category = 2
	CategoryAB       Category = 3
)

func (c Category) String() string {
	switch c {
	case CategoryA:
		return "A"
	case CategoryB:
		return "B"
	case CategoryAB:
		return "AB"
	default:
		return "Res"
	}
}

// SiteID is the decomposed 16-bit system code shared by
// C_ALOHA_SYS_PARMS and C_BCAST.
type SiteID struct {
	Model     LocationModel
	N         uint8 // sub-site bit width; 0 under the Motorola CapMax override
	Net       uint16
	Site      uint16
	SuperSite uint16 // (site>>n)+1; equal to Site when N is 0
	SubSite   uint16 // (site & ((1<<n)-1))+1; equal to Site when N is 0
	IsCapMax  bool
}

// decodeSiteID reads the model/net/site fields starting at the header
// offset used by both C_ALOHA_SYS_PARMS (bit 40) and C_BCAST (bit 40),
// applying the FID 0x10 CapMax override (n=0) and any operator
// dmrla_n override passed in by the caller.
func decodeSiteID(r bitstream.Reader, fid FID, dmrlaOverrideSet bool, dmrlaOverrideN uint8) SiteID {
	model := LocationModel(r.Uint(40, 2))
	netBits, siteBits := model.netSiteBits()

	var net, site uint16
	switch model {
	case ModelTiny:
		net = uint16(r.Uint(42, netBits))
		site = uint16(r.Uint(51, siteBits))
	case ModelSmall:
		net = uint16(r.Uint(42, netBits))
		site = uint16(r.Uint(49, siteBits))
	case ModelLarge:
		net = uint16(r.Uint(42, netBits))
		site = uint16(r.Uint(46, siteBits))
	case ModelHuge:
		net = uint16(r.Uint(42, netBits))
		site = uint16(r.Uint(44, siteBits))
	}

	n := uint8(siteBits)
	isCapMax := fid == FIDCapacityPlusMax
	if isCapMax {
		n = 0
	}
	if dmrlaOverrideSet {
		n = dmrlaOverrideN
	}

	var superSite, subSite uint16
	if n == 0 {
		superSite = site
		subSite = site
	} else {
		mask := uint16(1<<n) - 1
		superSite = (site >> n) + 1
		subSite = (site & mask) + 1
	}

	return SiteID{
		Model:     model,
		N:         n,
		Net:       net,
		Site:      site,
		SuperSite: superSite,
		SubSite:   subSite,
		IsCapMax:  isCapMax,
	}
}
