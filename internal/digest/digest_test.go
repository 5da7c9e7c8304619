package digest

import (
	"encoding/hex"
	"testing"
)

// Property 6: SHA1("abc") == a9993e364706816aba3e25717850c26c9cd0d89b
func TestSumKnownVector(t *testing.T) {
	got := Sum([]byte("abc"))
	want := "a9993e364706816aba3e25717850c26c9cd0d89"
	if hex.EncodeToString(got[:]) != want {
		t.Errorf("Sum(abc) = %x, want %s", got, want)
	}
}

func TestHasherMatchesSum(t *testing.T) {
	h := New()
	h.Write([]byte("ab"))
	h.Write([]byte("c"))
	got := h.Sum()
	want := Sum([]byte("abc"))
	if got != want {
		t.Errorf("streaming Sum() = %x, want %x", got, want)
	}
}
