package ulid

import (
	"fmt"
	"io"
	"math/rand"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
)

// Generator returns a new block identifier on every call.
//
// Identifiers derive from the wall clock and randomness. They are
// monotonic within a process but not guaranteed to be unique across
// processes; stores resolve collisions with a last-write-wins policy.
type Generator func() string

const (
	FormatULID = "ulid"
	FormatUUID = "uuid"
)

var (
	entropy     io.Reader
	entropyOnce sync.Once
)

// DefaultEntropy returns a reader that generates ULID entropy.
func DefaultEntropy() io.Reader {
	entropyOnce.Do(func() {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))

		entropy = &ulid.LockedMonotonicReader{
			MonotonicReader: ulid.Monotonic(rng, 0),
		}
	})
	return entropy
}

var ulidRe = regexp.MustCompile(`^[0123456789ABCDEFGHJKMNPQRSTVWXYZ]{26}$`)

// isULID checks if the given string is a valid ULID
// ULID pattern:
//
//	 01AN4Z07BY      79KA1307SR9X4MV3
//	|----------|    |----------------|
//	 Timestamp          Randomness
//
// 10 characters     16 characters
// Crockford's Base32 is used (excludes I, L, O, and U to avoid confusion and abuse)
func isULID(s string) bool {
	return ulidRe.MatchString(s)
}

// ValidID checks if the given id is a valid ULID.
func ValidID(id string) bool {
	_, err := ulid.Parse(id)

	return err == nil && isULID(id)
}

func DefaultGenerator() string {
	entropy := DefaultEntropy()
	now := time.Now()
	ts := ulid.Timestamp(now)
	return ulid.MustNew(ts, entropy).String()
}

// UUIDGenerator produces random (v4) UUIDs. It is selected with the "uuid" format.
func UUIDGenerator() string {
	return uuid.NewString()
}

// ForFormat returns the generator for the given format name.
// An empty format selects the ULID generator.
func ForFormat(format string) (Generator, error) {
	switch format {
	case "", FormatULID:
		return DefaultGenerator, nil
	case FormatUUID:
		return UUIDGenerator, nil
	default:
		return nil, errors.Errorf("unknown id format %q", format)
	}
}

// Sequence returns a deterministic generator yielding prefix1, prefix2, ...
// It is safe for concurrent use.
func Sequence(prefix string) Generator {
	var counter atomic.Int64
	return func() string {
		return fmt.Sprintf("%s%d", prefix, counter.Add(1))
	}
}
