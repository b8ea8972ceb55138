package field

// AnimationState is the phase of the demo press.
type AnimationState int

const (
	AnimIdle AnimationState = iota
	AnimPressing
	AnimHolding
	AnimReleasing
)

func (s AnimationState) String() string {
	switch s {
	case AnimIdle:
		return "idle"
	case AnimPressing:
		return "pressing"
	case AnimHolding:
		return "holding"
	case AnimReleasing:
		return "releasing"
	default:
		return "unknown"
	}
}

// Animation returns the demo phase.
func (f *Field) Animation() AnimationState { return f.anim }

func (f *Field) animate(dt float64) {
	f.timer -= dt
	switch f.anim {
	case AnimIdle:
		if f.timer <= 0 {
			if len(f.points) == 0 {
				return
			}
			f.center = f.rng.Intn(len(f.points))
			f.intensity = 0
			f.anim = AnimPressing
			f.timer = f.params.Press.Seconds()
		}
	case AnimPressing:
		if press := f.params.Press.Seconds(); press > 0 {
			f.intensity = clamp01(1 - f.timer/press)
		}
		if f.timer <= 0 {
			f.intensity = 1
			f.anim = AnimHolding
			f.timer = f.params.Hold.Seconds()
		}
	case AnimHolding:
		if f.timer <= 0 {
			f.anim = AnimReleasing
			f.timer = f.params.Release.Seconds()
		}
	case AnimReleasing:
		if release := f.params.Release.Seconds(); release > 0 {
			f.intensity = clamp01(f.timer / release)
		}
		if f.timer <= 0 {
			f.clearPress()
			f.anim = AnimIdle
			f.timer = f.dwell()
		}
	}
}

// dwell is a random idle time in [DwellMin, DwellMax).
func (f *Field) dwell() float64 {
	lo, hi := f.params.DwellMin.Seconds(), f.params.DwellMax.Seconds()
	if hi <= lo {
		return lo
	}
	return lo + f.rng.Float64()*(hi-lo)
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
