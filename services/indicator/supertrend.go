package indicator

// supertrend derives upper/lower bands from the (high+low)/2 baseline
// plus/minus multiplier*ATR and flips direction when the close crosses
// the active band. The band in force is the lower band while bullish and
// the upper band while bearish.
type supertrend struct {
	multiplier float64

	prevClose float64
	upper     float64 // final upper band
	lower     float64 // final lower band
	bullish   bool
	ready     bool
}

func newSupertrend(multiplier float64) *supertrend {
	return &supertrend{multiplier: multiplier}
}

// update consumes the candle plus the current ATR value and returns the
// active band, the trend direction, and whether the direction flipped on
// this candle. Undefined until ATR is defined.
func (s *supertrend) update(high, low, closePx float64, atrValue Value) (band Value, bullish, changed bool) {
	av, ok := atrValue.Float()
	if !ok {
		s.prevClose = closePx
		return Undefined(), false, false
	}

	basis := (high + low) / 2
	rawUpper := basis + s.multiplier*av
	rawLower := basis - s.multiplier*av

	if !s.ready {
		s.upper = rawUpper
		s.lower = rawLower
		s.bullish = closePx > basis
		s.ready = true
		s.prevClose = closePx
		return s.activeBand(), s.bullish, false
	}

	// Bands only ratchet in the trend direction: the upper band can
	// move down, the lower band up, unless price closed beyond them.
	if rawUpper < s.upper || s.prevClose > s.upper {
		s.upper = rawUpper
	}
	if rawLower > s.lower || s.prevClose < s.lower {
		s.lower = rawLower
	}

	wasBullish := s.bullish
	if s.bullish && closePx < s.lower {
		s.bullish = false
	} else if !s.bullish && closePx > s.upper {
		s.bullish = true
	}
	s.prevClose = closePx

	return s.activeBand(), s.bullish, s.bullish != wasBullish
}

func (s *supertrend) activeBand() Value {
	if s.bullish {
		return Defined(s.lower)
	}
	return Defined(s.upper)
}
