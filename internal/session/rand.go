package session

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

func randomUint64() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("session: read random uint64: %w", err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func randomUint32() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("session: read random uint32: %w", err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
