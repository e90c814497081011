package engine

import (
	"fmt"

	"github.com/google/uuid"
)

const maxNicknameLen = 64

// randomNickname returns a random "NoNick<decimal>" identifier truncated to
// fit maxRandomNicknameLen bytes, used when no nickname is configured.
// spec.md §3 specifies the NoNick<unsigned decimal> form truncated to 15
// bytes (not the full 64-byte buffer capacity); the first four bytes of a
// fresh UUID supply the decimal suffix's entropy.
func randomNickname() string {
	const maxRandomNicknameLen = 15
	id := uuid.New()
	n := uint32(id[0])<<24 | uint32(id[1])<<16 | uint32(id[2])<<8 | uint32(id[3])
	s := fmt.Sprintf("NoNick%d", n)
	if len(s) > maxRandomNicknameLen {
		s = s[:maxRandomNicknameLen]
	}
	return s
}
