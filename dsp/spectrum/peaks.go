package spectrum

// Peak is one spectral maximum found by PickPeaks.
type Peak struct {
	// Bin is the refined (fractional) bin position of the maximum.
	Bin float64
	// Height is the magnitude at the integer maximum.
	Height float64
}

// PeakOptions bounds the peak search.
type PeakOptions struct {
	// LowBin and HighBin restrict the search to [LowBin, HighBin].
	LowBin, HighBin int
	// MinHeightRatio rejects peaks below this fraction of the in-band max.
	MinHeightRatio float64
	// MinProminenceRatio rejects peaks whose rise above the surrounding
	// valleys is below this fraction of the in-band max.
	MinProminenceRatio float64
	// MinSpacingBins is the minimum distance between accepted peaks.
	MinSpacingBins int
	// MaxPeaks caps the number of accepted peaks (strongest first).
	MaxPeaks int
}

// PickPeaks scans mags for local maxima inside the configured band and
// returns the strongest ones, strongest first. Results are appended into
// dst[:0] so steady-state callers do not allocate. Peak positions are
// refined to fractional bins by parabolic interpolation over the maximum
// and its two neighbors.
func PickPeaks(dst []Peak, mags []float64, opts PeakOptions) []Peak {
	dst = dst[:0]

	lo, hi := opts.LowBin, opts.HighBin
	if lo < 1 {
		lo = 1
	}
	if hi >= len(mags)-1 {
		hi = len(mags) - 2
	}
	if hi < lo {
		return dst
	}

	bandMax := 0.0
	for k := lo; k <= hi; k++ {
		if mags[k] > bandMax {
			bandMax = mags[k]
		}
	}
	if bandMax <= 0 {
		return dst
	}

	minHeight := opts.MinHeightRatio * bandMax
	minProm := opts.MinProminenceRatio * bandMax

	// Collect local maxima passing the height and prominence gates.
	for k := lo; k <= hi; k++ {
		m := mags[k]
		if m < minHeight || m <= mags[k-1] || m < mags[k+1] {
			continue
		}

		if prominence(mags, k, lo, hi) < minProm {
			continue
		}

		dst = append(dst, Peak{Bin: refineBin(mags, k), Height: m})
	}

	sortPeaksByHeight(dst)

	// Enforce spacing: a peak too close to a stronger accepted one is dropped.
	if opts.MinSpacingBins > 0 {
		kept := dst[:0]
		for _, p := range dst {
			ok := true
			for _, q := range kept {
				d := p.Bin - q.Bin
				if d < 0 {
					d = -d
				}
				if d < float64(opts.MinSpacingBins) {
					ok = false
					break
				}
			}
			if ok {
				kept = append(kept, p)
			}
		}
		dst = kept
	}

	if opts.MaxPeaks > 0 && len(dst) > opts.MaxPeaks {
		dst = dst[:opts.MaxPeaks]
	}

	return dst
}

// prominence measures how far mags[k] rises above the higher of the two
// valleys separating it from stronger spectrum inside the band.
func prominence(mags []float64, k, lo, hi int) float64 {
	peak := mags[k]

	leftValley := peak
	for i := k - 1; i >= lo; i-- {
		if mags[i] < leftValley {
			leftValley = mags[i]
		}
		if mags[i] > peak {
			break
		}
	}

	rightValley := peak
	for i := k + 1; i <= hi; i++ {
		if mags[i] < rightValley {
			rightValley = mags[i]
		}
		if mags[i] > peak {
			break
		}
	}

	valley := leftValley
	if rightValley > valley {
		valley = rightValley
	}

	return peak - valley
}

// refineBin fits a parabola through the maximum and its neighbors and
// returns the fractional bin of the vertex.
func refineBin(mags []float64, k int) float64 {
	ym1, y0, y1 := mags[k-1], mags[k], mags[k+1]

	denom := ym1 - 2*y0 + y1
	if denom == 0 {
		return float64(k)
	}

	delta := 0.5 * (ym1 - y1) / denom
	if delta > 0.5 {
		delta = 0.5
	}
	if delta < -0.5 {
		delta = -0.5
	}

	return float64(k) + delta
}

// sortPeaksByHeight sorts in place, descending. Peak counts are small
// (tens), so insertion sort avoids pulling in sort and its interface
// allocations on the analysis path.
func sortPeaksByHeight(peaks []Peak) {
	for i := 1; i < len(peaks); i++ {
		p := peaks[i]
		j := i - 1
		for j >= 0 && peaks[j].Height < p.Height {
			peaks[j+1] = peaks[j]
			j--
		}
		peaks[j+1] = p
	}
}
