//go:build go1.18

package domain

import (
	"strings"
	"testing"
)

// FuzzParseWorkerID checks that parsing never panics and that accepted ids
// never contain the payload delimiter.
func FuzzParseWorkerID(f *testing.F) {
	f.Add("")
	f.Add("DRV00009")
	f.Add("BC000123")
	f.Add("DRV|00009")
	f.Add("'; DROP TABLE workers;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseWorkerID(input)
		if err != nil {
			return
		}
		if strings.Contains(string(id), "|") {
			t.Errorf("accepted worker id with delimiter: %q", id)
		}
		again, err := ParseWorkerID(id.String())
		if err != nil || again != id {
			t.Errorf("round trip changed id %q", id)
		}
	})
}
