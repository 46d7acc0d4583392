package idgen

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/forbearing/godm/value"
)

// objectIDCounter is the process-wide 3-byte rolling counter component of
// a generated ObjectID, seeded randomly so two processes starting at the
// same second still diverge.
var objectIDCounter = newObjectIDCounterSeed()

func newObjectIDCounterSeed() uint32 {
	var b [3]byte
	_, _ = rand.Read(b[:])
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// ObjectIDGenerator implements the ObjectId strategy: a 12-byte
// document-store-native id (4-byte unix seconds + 5-byte random +
// 3-byte counter), rendered as 24 lowercase hex characters. This mirrors
// the classic BSON ObjectId layout. The odm facade uses this generator for
// every alias configured with the ObjectId strategy, document-store aliases
// included; the driver's bson.NewObjectID is not used (see DESIGN.md).
type ObjectIDGenerator struct {
	random5 func() ([5]byte, error) // overridable in tests
}

func (g *ObjectIDGenerator) Generate(_ context.Context, supplied value.Value) (value.Value, error) {
	if !supplied.IsNull() {
		return supplied, nil
	}

	var out [12]byte

	sec := uint32(time.Now().Unix())
	out[0] = byte(sec >> 24)
	out[1] = byte(sec >> 16)
	out[2] = byte(sec >> 8)
	out[3] = byte(sec)

	randGen := g.random5
	if randGen == nil {
		randGen = defaultRandom5
	}
	rnd, err := randGen()
	if err != nil {
		return value.Value{}, errors.Wrap(err, "idgen: objectid random component")
	}
	copy(out[4:9], rnd[:])

	c := atomic.AddUint32(&objectIDCounter, 1) & 0x00FFFFFF
	out[9] = byte(c >> 16)
	out[10] = byte(c >> 8)
	out[11] = byte(c)

	return value.String(hex.EncodeToString(out[:])), nil
}

func defaultRandom5() ([5]byte, error) {
	var b [5]byte
	_, err := rand.Read(b[:])
	return b, err
}
