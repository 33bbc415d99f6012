package validate

import (
	"strings"
	"testing"
)

func TestConvertInscriptionID(t *testing.T) {
	txid := strings.Repeat("ab", 32)

	cases := []struct {
		name      string
		id        string
		wantTxid  string
		wantIndex uint32
		wantErr   bool
	}{
		{"index zero", txid + "i0", txid, 0, false},
		{"double digit index", txid + "i12", txid, 12, false},
		{"large index", txid + "i4294967295", txid, 4294967295, false},
		{"missing suffix", txid, "", 0, true},
		{"empty index", txid + "i", "", 0, true},
		{"non-numeric index", txid + "ix", "", 0, true},
		{"short txid", "abci0", "", 0, true},
		{"non-hex txid", strings.Repeat("zz", 32) + "i0", "", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotTxid, gotIndex, err := ConvertInscriptionID(tc.id)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.id)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gotTxid != tc.wantTxid || gotIndex != tc.wantIndex {
				t.Errorf("got (%s, %d), want (%s, %d)", gotTxid, gotIndex, tc.wantTxid, tc.wantIndex)
			}
		})
	}
}

func TestParseBitmapContent(t *testing.T) {
	cases := []struct {
		content string
		want    int64
		ok      bool
	}{
		{"0.bitmap", 0, true},
		{"792000.bitmap", 792000, true},
		{" 42.bitmap \n", 42, true},
		{"0042.bitmap", 0, false},
		{"7.100.bitmap", 0, false},
		{"-1.bitmap", 0, false},
		{".bitmap", 0, false},
		{"bitmap", 0, false},
		{"42.bitmaps", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseBitmapContent(tc.content)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseBitmapContent(%q) = (%d, %v), want (%d, %v)",
				tc.content, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseParcelContent(t *testing.T) {
	cases := []struct {
		content    string
		wantParcel int64
		wantBitmap int64
		ok         bool
	}{
		{"7.100.bitmap", 7, 100, true},
		{"0.0.bitmap", 0, 0, true},
		{"100.bitmap", 0, 0, false},
		{"7.0100.bitmap", 0, 0, false},
		{"+7.100.bitmap", 0, 0, false},
		{"a.100.bitmap", 0, 0, false},
		{"7.100.bitmaps", 0, 0, false},
	}
	for _, tc := range cases {
		p, n, ok := ParseParcelContent(tc.content)
		if ok != tc.ok || p != tc.wantParcel || n != tc.wantBitmap {
			t.Errorf("ParseParcelContent(%q) = (%d, %d, %v), want (%d, %d, %v)",
				tc.content, p, n, ok, tc.wantParcel, tc.wantBitmap, tc.ok)
		}
	}
}
