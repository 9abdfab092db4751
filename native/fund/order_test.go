package fund

import (
	"testing"

	"ringfund/crypto"
)

func addr(last byte) crypto.Address {
	buf := make([]byte, 20)
	buf[19] = last
	return crypto.NewAddress(crypto.RingPrefix, buf)
}

func names(order []crypto.Address) []byte {
	out := make([]byte, len(order))
	for i, a := range order {
		out[i] = a.Bytes()[19]
	}
	return out
}

func defaultedSet(lasts ...byte) func(crypto.Address) bool {
	set := make(map[byte]bool, len(lasts))
	for _, l := range lasts {
		set[l] = true
	}
	return func(a crypto.Address) bool { return set[a.Bytes()[19]] }
}

func TestReorderSuffixDelaysLeadingDefaulter(t *testing.T) {
	order := []crypto.Address{addr(1), addr(2), addr(3)}
	// Cycle 1 paid out to addr(1); addr(2) defaulted.
	out := reorderSuffix(order, 1, defaultedSet(2))
	if got := string(names(out)); got != string([]byte{1, 3, 2}) {
		t.Fatalf("unexpected order: %v", names(out))
	}
}

func TestReorderSuffixMovesConsecutiveBlock(t *testing.T) {
	order := []crypto.Address{addr(1), addr(2), addr(3), addr(4), addr(5)}
	out := reorderSuffix(order, 1, defaultedSet(2, 3))
	if got := string(names(out)); got != string([]byte{1, 4, 2, 3, 5}) {
		t.Fatalf("unexpected order: %v", names(out))
	}
}

func TestReorderSuffixLeavesPrefixAlone(t *testing.T) {
	order := []crypto.Address{addr(1), addr(2), addr(3)}
	// addr(1) already received a payout; marking it defaulted must not move it.
	out := reorderSuffix(order, 1, defaultedSet(1, 3))
	if got := string(names(out)); got != string([]byte{1, 2, 3}) {
		t.Fatalf("prefix moved: %v", names(out))
	}
}

func TestReorderSuffixNoEligible(t *testing.T) {
	order := []crypto.Address{addr(1), addr(2), addr(3)}
	out := reorderSuffix(order, 1, defaultedSet(2, 3))
	if got := string(names(out)); got != string([]byte{1, 2, 3}) {
		t.Fatalf("order changed with no eligible participant: %v", names(out))
	}
}

func TestReorderSuffixNonLeadingDefaulterStays(t *testing.T) {
	order := []crypto.Address{addr(1), addr(2), addr(3), addr(4)}
	// Next head addr(2) is eligible; defaulter addr(3) is not leading and
	// keeps its slot until its own turn comes up.
	out := reorderSuffix(order, 1, defaultedSet(3))
	if got := string(names(out)); got != string([]byte{1, 2, 3, 4}) {
		t.Fatalf("unexpected order: %v", names(out))
	}
}

func TestRemoveFromSuffixKeepsPrefix(t *testing.T) {
	order := []crypto.Address{addr(1), addr(2), addr(3)}
	out := removeFromSuffix(order, 1, addr(3))
	if got := string(names(out)); got != string([]byte{1, 2}) {
		t.Fatalf("unexpected order: %v", names(out))
	}
	order = []crypto.Address{addr(1), addr(2), addr(3)}
	out = removeFromSuffix(order, 1, addr(1))
	if got := string(names(out)); got != string([]byte{1, 2, 3}) {
		t.Fatalf("prefix entry removed: %v", names(out))
	}
}
