package perturb

import "github.com/marben/perturb_mandel/extfloat"

// IterateExtended iterates one pixel with extended-range deltas. Its
// operation order matches IterateNative step for step.
func IterateExtended(o *Orbit, dcRe, dcIm extfloat.Float, maxIter uint32, tauSq float64) Result {
	res := Result{MaxIterations: maxIter}
	if o.Len() == 0 {
		res.Glitched = true
		return res
	}
	_, refEscaped := o.Escaped()
	bailout := extfloat.FromFloat64(escapeRadiusSq)

	var dzRe, dzIm extfloat.Float
	m := 0
	for n := uint32(0); n < maxIter; {
		if refEscaped && m >= o.Len() {
			res.Glitched = true
		}
		ref := o.At(m)
		refRe, refIm := extfloat.FromFloat64(ref.Re), extfloat.FromFloat64(ref.Im)

		zRe := refRe.Add(dzRe)
		zIm := refIm.Add(dzIm)
		zSq := extfloat.NormSq(zRe, zIm)
		if zSq.Cmp(bailout) > 0 {
			res.Iterations, res.Escaped = n, true
			return res
		}

		refSq := float64(ref.Re*ref.Re) + float64(ref.Im*ref.Im)
		if refSq > glitchFloor && zSq.Less(extfloat.FromFloat64(float64(tauSq*refSq))) {
			res.Glitched = true
		}

		if zSq.Less(extfloat.NormSq(dzRe, dzIm)) {
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
