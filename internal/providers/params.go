// -----------------------------------------------------------------------
// Parameter normalization - permissive nearest-supported-value policy
// -----------------------------------------------------------------------

package providers

import (
	"github.com/ternarybob/backlot/internal/models"
)

// NormalizeParams clamps caller-supplied parameters to the provider's
// declared constraints. A slightly invalid request degrades gracefully
// to the nearest supported value instead of failing outright.
func NormalizeParams(params models.GenerationParams, constraints models.ProviderConstraints) models.GenerationParams {
	params.DurationSeconds = nearestDuration(params.DurationSeconds, constraints)
	params.AspectRatio = nearestString(params.AspectRatio, constraints.SupportedAspectRatios, constraints.DefaultAspectRatio)
	params.Resolution = nearestString(params.Resolution, constraints.SupportedResolutions, constraints.DefaultResolution)
	return params
}

// nearestDuration picks the numerically closest supported duration.
// Zero or negative requests fall back to the declared default, then to
// the first supported value.
func nearestDuration(requested int, constraints models.ProviderConstraints) int {
	supported := constraints.SupportedDurations
	if len(supported) == 0 {
		return requested
	}

	if requested <= 0 {
		if constraints.DefaultDuration > 0 {
			return constraints.DefaultDuration
		}
		return supported[0]
	}

	best := supported[0]
	for _, candidate := range supported {
		if abs(candidate-requested) < abs(best-requested) {
			best = candidate
		}
	}
	return best
}

// nearestString returns the requested value when supported, otherwise
// the declared default, otherwise the first supported value.
func nearestString(requested string, supported []string, fallback string) string {
	if len(supported) == 0 {
		return requested
	}

	for _, candidate := range supported {
		if candidate == requested {
			return requested
		}
	}

	if fallback != "" {
		return fallback
	}
	return supported[0]
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
