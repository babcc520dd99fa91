package asset

import (
	"errors"
	"testing"
)

func TestNormalizeSymbol(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr error
	}{
		{"BTC", "BTC", nil},
		{"btc", "BTC", nil},
		{"  eth ", "ETH", nil},
		{"1INCH", "1INCH", nil},
		{"", "", ErrEmptySymbol},
		{"   ", "", ErrEmptySymbol},
		{"BTC-USD", "", ErrInvalidSymbol},
		{"btc usd", "", ErrInvalidSymbol},
		{"VERYLONGSYMBOL", "", ErrInvalidSymbol},
	}

	for _, tc := range cases {
		got, err := NormalizeSymbol(tc.in)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("NormalizeSymbol(%q): got err %v, want %v", tc.in, err, tc.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeSymbol(%q): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
