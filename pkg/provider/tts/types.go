package tts

import "slices"

// VoiceProfile selects a voice and delivery for one synthesis call.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// SpeedFactor adjusts speaking rate (0.5–2.0, 1.0 = default). Zero means 1.0.
	SpeedFactor float64
}

// Voice is one entry of a provider's static voice catalogue.
type Voice struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Gender      string   `json:"gender"`
	ResourceIDs []string `json:"compatibleResourceIds"`
}

// CompatibleWith reports whether v can be used with the model resourceID.
func (v Voice) CompatibleWith(resourceID string) bool {
	return slices.Contains(v.ResourceIDs, resourceID)
}
