package bigfloat

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// ErrCorrupt is returned when a serialised Float is inconsistent.
var ErrCorrupt = errors.New("bigfloat: corrupt encoding")

// wireFloat is the CBOR form of a Float: [prec, native, wide]. Native values
// travel as a float64, wide ones as big.Float's gob encoding; both are exact.
type wireFloat struct {
	_      struct{} `cbor:",toarray"`
	Prec   uint
	Native float64
	Wide   []byte
}

// MarshalCBOR implements cbor.Marshaler.
func (x Float) MarshalCBOR() ([]byte, error) {
	w := wireFloat{Prec: x.prec, Native: x.f}
	if x.wide != nil {
		b, err := x.wide.GobEncode()
		if err != nil {
			return nil, fmt.Errorf("bigfloat: gob encode: %w", err)
		}
		w.Native = 0
		w.Wide = b
	}
	return cbor.Marshal(w)
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (x *Float) UnmarshalCBOR(data []byte) error {
	var w wireFloat
	if err := cbor.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Prec <= NativeLimit {
		if len(w.Wide) != 0 {
			return fmt.Errorf("%w: wide payload at %d bits", ErrCorrupt, w.Prec)
		}
		*x = Float{prec: w.Prec, f: w.Native}
		return nil
	}
	if len(w.Wide) == 0 {
		return fmt.Errorf("%w: missing wide payload at %d bits", ErrCorrupt, w.Prec)
	}
	z := new(big.Float)
	if err := z.GobDecode(w.Wide); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if z.Prec() != w.Prec {
		z.SetPrec(w.Prec)
	}
	*x = Float{prec: w.Prec, wide: z}
	return nil
}
