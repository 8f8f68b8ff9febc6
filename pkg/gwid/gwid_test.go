package gwid

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		id    uint32
		label string
		ok    bool
	}{
		{0xFFFEC0, "PSTNI", true},
		{0xFFFECB, "DISPATI", true},
		{0xFFFED7, "TATTSI", true},
		{0xFFFFFD, "ALLMSIDL", true},
		{0xFFFFFF, "ALLMSID", true},
		{0x123456, "", false},
	}
	for _, tt := range tests {
		label, ok := Classify(tt.id)
		if ok != tt.ok || label != tt.label {
			t.Errorf("Classify(%#x) = (%q, %v), want (%q, %v)", tt.id, label, ok, tt.label, tt.ok)
		}
	}
}

func TestClassifyPair(t *testing.T) {
	srcLabel, tgtLabel, any := ClassifyPair(0xFFFEC0, 1234)
	if !any || srcLabel != "PSTNI" || tgtLabel != "" {
		t.Fatalf("ClassifyPair mismatch: %q %q %v", srcLabel, tgtLabel, any)
	}

	_, _, any = ClassifyPair(111, 222)
	if any {
		t.Fatalf("expected no match for ordinary subscriber ids")
	}
}
