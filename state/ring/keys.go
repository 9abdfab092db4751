package ring

import (
	"encoding/binary"

	"ringfund/crypto"
)

// Key layout. Every record lives under the "ring/" namespace; per-term records
// carry the big-endian term id so range scans stay ordered.
const (
	keyNextTermID = "ring/term/next"
	keyTermIndex  = "ring/term/index"

	prefixTerm            = "ring/term/"
	prefixCollateral      = "ring/collateral/"
	prefixPosition        = "ring/collateral/pos/"
	prefixFund            = "ring/fund/"
	prefixParticipant     = "ring/fund/part/"
	prefixYield           = "ring/yield/"
	prefixYieldPosition   = "ring/yield/pos/"
	prefixAccount         = "ring/account/"
	prefixMembership      = "ring/member/terms/"
	prefixExpulsionByAddr = "ring/member/expulsions/"
)

func u64be(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func termKey(id uint64) []byte {
	return append([]byte(prefixTerm), u64be(id)...)
}

func collateralKey(id uint64) []byte {
	return append([]byte(prefixCollateral), u64be(id)...)
}

func positionKey(id uint64, addr crypto.Address) []byte {
	key := append([]byte(prefixPosition), u64be(id)...)
	return append(key, addr.Bytes()...)
}

func fundKey(id uint64) []byte {
	return append([]byte(prefixFund), u64be(id)...)
}

func participantKey(id uint64, addr crypto.Address) []byte {
	key := append([]byte(prefixParticipant), u64be(id)...)
	return append(key, addr.Bytes()...)
}

func yieldKey(id uint64) []byte {
	return append([]byte(prefixYield), u64be(id)...)
}

func yieldPositionKey(id uint64, addr crypto.Address) []byte {
	key := append([]byte(prefixYieldPosition), u64be(id)...)
	return append(key, addr.Bytes()...)
}

func accountKey(addr crypto.Address) []byte {
	return append([]byte(prefixAccount), addr.Bytes()...)
}

func membershipKey(addr crypto.Address) []byte {
	return append([]byte(prefixMembership), addr.Bytes()...)
}

func expulsionKey(addr crypto.Address) []byte {
	return append([]byte(prefixExpulsionByAddr), addr.Bytes()...)
}
