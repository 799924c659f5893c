package perturb

import "github.com/marben/perturb_mandel/bigfloat"

// IterateArbitrary iterates one pixel with deltas at the precision of dcRe
// and dcIm. It is the fallback for depths where even the extended exponent
// range leaves too few mantissa bits, and is by far the slowest tier.
func IterateArbitrary(o *Orbit, dcRe, dcIm bigfloat.Float, maxIter uint32, tauSq float64) Result {
	res := Result{MaxIterations: maxIter}
	if o.Len() == 0 {
		res.Glitched = true
		return res
	}
	_, refEscaped := o.Escaped()
	prec := max(dcRe.Prec(), dcIm.Prec())
	bailout := bigfloat.New(escapeRadiusSq, prec)

	dzRe, dzIm := bigfloat.Zero(prec), bigfloat.Zero(prec)
	m := 0
	for n := uint32(0); n < maxIter; {
		if refEscaped && m >= o.Len() {
			res.Glitched = true
		}
		ref := o.At(m)
		refRe, refIm := bigfloat.New(ref.Re, prec), bigfloat.New(ref.Im, prec)

		zRe := refRe.Add(dzRe)
		zIm := refIm.Add(dzIm)
		zSq := zRe.Mul(zRe).Add(zIm.Mul(zIm))
		if zSq.Cmp(bailout) > 0 {
			res.Iterations, res.Escaped = n, true
			return res
		}

		refSq := float64(ref.Re*ref.Re) + float64(ref.Im*ref.Im)
		if refSq > glitchFloor && zSq.Less(bigfloat.New(float64(tauSq*refSq), prec)) {
			res.Glitched = true
		}

		if zSq.Less(dzRe.Mul(dzRe).Add(dzIm.Mul(dzIm))) {
			dzRe, dzIm = zRe, zIm
			m = 0
			continue
		}

		re := refRe.Mul(dzRe).Sub(refIm.Mul(dzIm)).MulFloat64(2).
			Add(dzRe.Mul(dzRe).Sub(dzIm.Mul(dzIm))).
			Add(dcRe)
		im := refRe.Mul(dzIm).Add(refIm.Mul(dzRe)).MulFloat64(2).
			Add(dzRe.Mul(dzIm).MulFloat64(2)).
			Add(dcIm)
		dzRe, dzIm = re, im
		m++
		n++
	}
	res.Iterations = maxIter
	return res
}
