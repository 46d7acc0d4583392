package idgen

import (
	"context"
	"sync"
	"time"

	"github.com/forbearing/godm/odmerr"
	"github.com/forbearing/godm/value"
)

const (
	snowflakeTimestampBits = 41
	snowflakeDatacenterBits = 5
	snowflakeMachineBits    = 5
	snowflakeSequenceBits   = 12

	snowflakeMaxDatacenter = -1 ^ (-1 << snowflakeDatacenterBits)
	snowflakeMaxMachine    = -1 ^ (-1 << snowflakeMachineBits)
	snowflakeMaxSequence   = -1 ^ (-1 << snowflakeSequenceBits)

	snowflakeMachineShift    = snowflakeSequenceBits
	snowflakeDatacenterShift = snowflakeSequenceBits + snowflakeMachineBits
	snowflakeTimestampShift  = snowflakeSequenceBits + snowflakeMachineBits + snowflakeDatacenterBits

	// maxClockRegressionMillis is the largest backward clock jump absorbed
	// by reusing the last timestamp; anything larger is Fatal, per spec.md
	// §4.2.
	maxClockRegressionMillis = 5
)

// DefaultEpoch is the reference instant snowflake timestamps are measured from.
// Defaults to 2020-01-01T00:00:00Z; override via SnowflakeGenerator.Epoch
// before the first Generate call.
var DefaultEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// SnowflakeGenerator implements the Snowflake{machine_id, datacenter_id}
// strategy: a 41-bit millisecond timestamp since Epoch, a 10-bit node id
// (5 bits datacenter + 5 bits machine), and a 12-bit per-millisecond
// sequence. The sequence resets every millisecond; if it's exhausted
// within a millisecond the generator busy-waits for the next one. A
// clock regression smaller than 5ms is absorbed by reusing the last
// timestamp; a larger regression is Fatal.
type SnowflakeGenerator struct {
	MachineID    int64
	DatacenterID int64
	Epoch        time.Time // zero value means DefaultEpoch

	mu        sync.Mutex
	lastMilli int64
	sequence  int64

	// nowFunc is overridable in tests; production callers never set it.
	nowFunc func() time.Time
}

// NewSnowflakeGenerator validates machineID/datacenterID against their
// 5-bit ranges before returning a generator.
func NewSnowflakeGenerator(datacenterID, machineID int64) (*SnowflakeGenerator, error) {
	if datacenterID < 0 || datacenterID > snowflakeMaxDatacenter {
		return nil, odmerr.NewConfigError("idgen: datacenter_id out of range [0,31]")
	}
	if machineID < 0 || machineID > snowflakeMaxMachine {
		return nil, odmerr.NewConfigError("idgen: machine_id out of range [0,31]")
	}
	return &SnowflakeGenerator{MachineID: machineID, DatacenterID: datacenterID}, nil
}

func (g *SnowflakeGenerator) now() time.Time {
	if g.nowFunc != nil {
		return g.nowFunc()
	}
	return time.Now()
}

func (g *SnowflakeGenerator) epoch() time.Time {
	if g.Epoch.IsZero() {
		return DefaultEpoch
	}
	return g.Epoch
}

func (g *SnowflakeGenerator) Generate(_ context.Context, supplied value.Value) (value.Value, error) {
	if !supplied.IsNull() {
		return supplied, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	millis := g.now().Sub(g.epoch()).Milliseconds()

	if millis < g.lastMilli {
		regression := g.lastMilli - millis
		if regression > maxClockRegressionMillis {
			return value.Value{}, odmerr.NewFatal("idgen: clock regressed more than tolerance", nil)
		}
		// absorb the small regression by reusing the last timestamp.
		millis = g.lastMilli
	}

	if millis == g.lastMilli {
		g.sequence = (g.sequence + 1) & snowflakeMaxSequence
		if g.sequence == 0 {
			// sequence exhausted within this millisecond: busy-wait for
			// the clock to advance.
			for millis <= g.lastMilli {
				millis = g.now().Sub(g.epoch()).Milliseconds()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastMilli = millis

	id := (millis << snowflakeTimestampShift) |
		(g.DatacenterID << snowflakeDatacenterShift) |
		(g.MachineID << snowflakeMachineShift) |
		g.sequence

	return value.Int64(id), nil
}

// DecodeSnowflakeTimestamp extracts the millisecond timestamp (relative to
// epoch) encoded in a snowflake id, useful for tests asserting monotonicity
// and for debugging.
func DecodeSnowflakeTimestamp(id int64, epoch time.Time) time.Time {
	millis := id >> snowflakeTimestampShift
	return epoch.Add(time.Duration(millis) * time.Millisecond)
}
