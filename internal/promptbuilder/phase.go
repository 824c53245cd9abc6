package promptbuilder

import "math"

// Phase is the narrative arc position used to vary choice and plot-twist
// guidance across the adventure.
type Phase string

const (
	PhaseExposition Phase = "exposition"
	PhaseRising     Phase = "rising"
	PhaseTrials     Phase = "trials"
	PhaseClimax     Phase = "climax"
	PhaseReturn     Phase = "return"
)

var phaseFractions = []float64{0.1, 0.4, 0.7, 0.9, 1.0}
var phaseOrder = []Phase{PhaseExposition, PhaseRising, PhaseTrials, PhaseClimax, PhaseReturn}

// PhaseFor maps chapter n to its narrative phase by a fixed monotone
// partition of [1, storyLength].
func PhaseFor(chapterNumber, storyLength int) Phase {
	for i, frac := range phaseFractions {
		boundary := int(math.Ceil(frac * float64(storyLength)))
		if chapterNumber <= boundary {
			return phaseOrder[i]
		}
	}
	return PhaseReturn
}

// emitsPlotTwistGuidance reports whether plot-twist guidance is emitted for
// the phase: only Rising, Trials, and Climax.
func emitsPlotTwistGuidance(p Phase) bool {
	return p == PhaseRising || p == PhaseTrials || p == PhaseClimax
}
