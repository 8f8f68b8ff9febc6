package mbc

import "testing"

func bitsFromBytes(bs ...byte) []byte {
	out := make([]byte, 0, len(bs)*8)
	for _, b := range bs {
		for i := 7; i >= 0; i-- {
			out = append(out, (b>>uint(i))&1)
		}
	}
	return out
}

func TestReassemblyBuffer_SingleBlock(t *testing.T) {
	var b ReassemblyBuffer
	pdu := bitsFromBytes(0xBA, 0x10, 0xC1, 0x3B, 0x61, 0x11, 0x51, 0x00, 0x00, 0x00, 0x3D, 0xD6)
	complete := b.Feed(FragmentSingle, pdu)
	if !complete {
		t.Fatalf("single-block fl=3 must report complete")
	}
	if len(b.Bits()) != 80 {
		t.Fatalf("expected 80 bits retained, got %d", len(b.Bits()))
	}
}

func TestReassemblyBuffer_InitialThenFinal(t *testing.T) {
	var b ReassemblyBuffer
	initial := bitsFromBytes(0x00, 0x08, 0x21, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00)
	if complete := b.Feed(FragmentInitial, initial); complete {
		t.Fatalf("fl=2 initial block must not report complete")
	}
	if b.blockNum != 0 {
		t.Fatalf("initial block resets blockNum, got %d", b.blockNum)
	}

	final := bitsFromBytes(0x00, 0x00, 0x00, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x00, 0x00, 0x00)
	if complete := b.Feed(FragmentFinal, final); !complete {
		t.Fatalf("fl=1 final block must report complete")
	}
	if got, want := len(b.Bits()), 80+56; got != want {
		t.Fatalf("assembled buffer length = %d, want %d", got, want)
	}
}

func TestReassemblyBuffer_CapsBlockNum(t *testing.T) {
	var b ReassemblyBuffer
	b.Start(bitsFromBytes(0, 0, 0, 0, 0, 0, 0, 0, 0, 0))
	appended := bitsFromBytes(0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1, 1)
	for i := 0; i < 10; i++ {
		b.Append(appended)
	}
	if b.blockNum != maxBlocks {
		t.Fatalf("blockNum = %d, want capped at %d", b.blockNum, maxBlocks)
	}
}

func TestDecodeStatus_NoActivity(t *testing.T) {
	bits := make([]byte, 80)
	// rest_lsn=5 at bits 20-23: 0101
	bits[20], bits[21], bits[22], bits[23] = 0, 1, 0, 1
	status := DecodeStatus(bits, FragmentSingle)
	if status.RestLSN != 5 {
		t.Fatalf("RestLSN = %d, want 5", status.RestLSN)
	}
	for i, on := range status.GroupBits {
		if on {
			t.Fatalf("GroupBits[%d] unexpectedly set", i)
		}
	}
}

func TestDecodeStatus_GroupActivityOnLSN1(t *testing.T) {
	bits := make([]byte, 88)
	bits[24] = 1 // bank one bit 0 -> LSN1 active
	// TG value 17 at bits 32-39 (8 bits): 00010001
	tg := []byte{0, 0, 0, 1, 0, 0, 0, 1}
	copy(bits[32:40], tg)
	status := DecodeStatus(bits, FragmentSingle)
	if !status.GroupBits[0] {
		t.Fatalf("expected LSN1 group activity")
	}
	if status.GroupTargets[0] != 17 {
		t.Fatalf("GroupTargets[0] = %d, want 17", status.GroupTargets[0])
	}
}
