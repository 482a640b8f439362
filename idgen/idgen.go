// Package idgen provides the identifier strategies used by pagefind.
//
// Frame identities, request correlation ids and operation tokens each have
// different requirements (entropy, length, sortability), so every
// constructor that mints ids accepts a Generator and the strategy is chosen
// at startup.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// Hex returns a Generator producing n crypto-random bytes, hex encoded.
// Hex(16) is a 128-bit frame identity.
func Hex(n int) Generator {
	return func() string {
		buf := make([]byte, n)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		return hex.EncodeToString(buf)
	}
}

// NanoID returns a Generator that produces base-36 IDs of the given length.
// Used for request correlation ids, which only need to be unique among the
// calls in flight.
func NanoID(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i := range buf {
			buf[i] = alphabet[int(buf[i])%len(alphabet)]
		}
		return string(buf)
	}
}

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
// Time-sortable, so a host can order operation tokens without a clock.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequence returns a deterministic Generator "<prefix>1", "<prefix>2", ...
// Not safe for concurrent use; intended for tests.
func Sequence(prefix string) Generator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

var (
	// FrameID mints 128-bit frame identities.
	FrameID Generator = Hex(16)
	// RequestID mints correlation ids for discovery rounds and RPC calls.
	RequestID Generator = NanoID(16)
	// OpToken mints operation tokens attached to host results.
	OpToken Generator = UUIDv7()
)
