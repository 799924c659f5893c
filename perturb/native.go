package perturb

// IterateNative iterates one pixel with float64 deltas.
//
// The explicit float64 conversions force every product to round on its
// own. Fused multiply-adds would break bit-for-bit agreement with the
// extended and arbitrary tiers.
func IterateNative(o *Orbit, dcRe, dcIm float64, maxIter uint32, tauSq float64) Result {
	res := Result{MaxIterations: maxIter}
	if o.Len() == 0 {
		res.Glitched = true
		return res
	}
	_, refEscaped := o.Escaped()

	var dzRe, dzIm float64
	m := 0
	for n := uint32(0); n < maxIter; {
		if refEscaped && m >= o.Len() {
			res.Glitched = true
		}
		ref := o.At(m)

		zRe := ref.Re + dzRe
		zIm := ref.Im + dzIm
		zSq := float64(zRe*zRe) + float64(zIm*zIm)
		if zSq > escapeRadiusSq {
			res.Iterations, res.Escaped = n, true
			return res
		}

		refSq := float64(ref.Re*ref.Re) + float64(ref.Im*ref.Im)
		if refSq > glitchFloor && zSq < float64(tauSq*refSq) {
			res.Glitched = true
		}

		if zSq < float64(dzRe*dzRe)+float64(dzIm*dzIm) {
			dzRe, dzIm = zRe, zIm
			m = 0
			continue
		}

		// δz' = 2·Zₘ·δz + δz² + δc
		re := 2*(float64(ref.Re*dzRe)-float64(ref.Im*dzIm)) + (float64(dzRe*dzRe) - float64(dzIm*dzIm)) + dcRe
		im := 2*(float64(ref.Re*dzIm)+float64(ref.Im*dzRe)) + 2*float64(dzRe*dzIm) + dcIm
		dzRe, dzIm = re, im
		m++
		n++
	}
	res.Iterations = maxIter
	return res
}
