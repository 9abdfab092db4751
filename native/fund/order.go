package fund

import "ringfund/crypto"

// reorderSuffix applies the defaulter-delay rule to the unawarded suffix of
// the beneficiary order. The maximal leading run of this-cycle defaulters is
// moved as one contiguous block to immediately after the first eligible
// (non-defaulting) participant; everyone else keeps their relative order.
// Participants ahead of start (already awarded) are never touched.
func reorderSuffix(order []crypto.Address, start int, defaulted func(crypto.Address) bool) []crypto.Address {
	if start < 0 || start >= len(order) {
		return order
	}
	suffix := order[start:]
	run := 0
	for run < len(suffix) && defaulted(suffix[run]) {
		run++
	}
	if run == 0 || run == len(suffix) {
		// Nothing to move, or nobody eligible to move past.
		return order
	}
	block := append([]crypto.Address(nil), suffix[:run]...)
	rest := suffix[run:]
	out := make([]crypto.Address, 0, len(suffix))
	out = append(out, rest[0])
	out = append(out, block...)
	out = append(out, rest[1:]...)
	copy(order[start:], out)
	return order
}

// removeFromSuffix drops the address from the unawarded suffix of the order.
// Occurrences inside the awarded prefix (a past beneficiary) are preserved.
func removeFromSuffix(order []crypto.Address, start int, target crypto.Address) []crypto.Address {
	if start < 0 {
		start = 0
	}
	out := order[:0]
	for i, addr := range order {
		if i >= start && addr.Equal(target) {
			continue
		}
		out = append(out, addr)
	}
	return out
}
