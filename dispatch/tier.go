package dispatch

import "fmt"

// Tier is the numeric representation used for pixel deltas.
type Tier uint8

const (
	// TierAuto lets the estimated precision pick the tier. SelectTier never
	// returns it.
	TierAuto Tier = iota
	TierNative
	TierExtended
	TierArbitrary
)

var tierNames = [...]string{
	TierAuto:      "auto",
	TierNative:    "native",
	TierExtended:  "extended",
	TierArbitrary: "arbitrary",
}

func (t Tier) String() string {
	if int(t) < len(tierNames) {
		return tierNames[t]
	}
	return fmt.Sprintf("Tier(%d)", t)
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler, so tiers can be given
// by name on the command line.
func (t *Tier) UnmarshalText(b []byte) error {
	for i, name := range tierNames {
		if string(b) == name {
			*t = Tier(i)
			return nil
		}
	}
	return fmt.Errorf("dispatch: unknown tier %q", b)
}

// SelectTier maps a required bit count to a tier: up to 64 bits runs on
// float64, up to crossover on the extended-range float, and anything
// beyond on arbitrary precision.
func SelectTier(bits, crossover uint) Tier {
	switch {
	case bits <= 64:
		return TierNative
	case bits <= crossover:
		return TierExtended
	default:
		return TierArbitrary
	}
}
