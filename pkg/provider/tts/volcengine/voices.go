package volcengine

import (
	"fmt"

	"github.com/MrWong99/newscast/pkg/provider/tts"
	"github.com/MrWong99/newscast/pkg/types"
)

// Resource IDs select the backend speech model.
const (
	ResourceSeedTTS1 = "seed-tts-1.0"
	ResourceSeedTTS2 = "seed-tts-2.0"

	// ResourceLegacy is the character-billed model id used by older accounts.
	ResourceLegacy = "volc.service_type.10029"
)

// catalog is the static voice reference data. A voice may only be used with
// the resource ids it lists.
var catalog = []tts.Voice{
	{ID: "zh_female_cancan_mars_bigtts", DisplayName: "灿灿", Gender: "female", ResourceIDs: []string{ResourceSeedTTS1, ResourceLegacy}},
	{ID: "zh_female_shuangkuaisisi_moon_bigtts", DisplayName: "爽快思思", Gender: "female", ResourceIDs: []string{ResourceSeedTTS1, ResourceLegacy}},
	{ID: "zh_female_tianmeixiaoyuan_moon_bigtts", DisplayName: "甜美小源", Gender: "female", ResourceIDs: []string{ResourceSeedTTS1, ResourceLegacy}},
	{ID: "zh_male_wennuanahu_moon_bigtts", DisplayName: "温暖阿虎", Gender: "male", ResourceIDs: []string{ResourceSeedTTS1, ResourceLegacy}},
	{ID: "zh_male_shaonianzixin_moon_bigtts", DisplayName: "少年梓辛", Gender: "male", ResourceIDs: []string{ResourceSeedTTS1, ResourceLegacy}},
	{ID: "zh_male_yangguangqingnian_moon_bigtts", DisplayName: "阳光青年", Gender: "male", ResourceIDs: []string{ResourceSeedTTS1}},
	{ID: "zh_female_vv_uranus_bigtts", DisplayName: "Vivi 2.0", Gender: "female", ResourceIDs: []string{ResourceSeedTTS2}},
	{ID: "zh_female_xiaohe_uranus_bigtts", DisplayName: "小何 2.0", Gender: "female", ResourceIDs: []string{ResourceSeedTTS2}},
	{ID: "zh_male_m191_uranus_bigtts", DisplayName: "云舟 2.0", Gender: "male", ResourceIDs: []string{ResourceSeedTTS2}},
	{ID: "zh_male_taocheng_uranus_bigtts", DisplayName: "小天 2.0", Gender: "male", ResourceIDs: []string{ResourceSeedTTS2}},
}

// Catalog returns a copy of the full voice catalogue.
func Catalog() []tts.Voice {
	out := make([]tts.Voice, len(catalog))
	copy(out, catalog)
	return out
}

// Voices returns the voices compatible with resourceID.
func Voices(resourceID string) []tts.Voice {
	var out []tts.Voice
	for _, v := range catalog {
		if v.CompatibleWith(resourceID) {
			out = append(out, v)
		}
	}
	return out
}

// LookupVoice returns the catalogue entry for id if it is compatible with
// resourceID. Anything else is a types.ErrConfiguration.
func LookupVoice(resourceID, id string) (tts.Voice, error) {
	for _, v := range catalog {
		if v.ID != id {
			continue
		}
		if !v.CompatibleWith(resourceID) {
			return tts.Voice{}, fmt.Errorf("volcengine: voice %q is not available for resource %q: %w", id, resourceID, types.ErrConfiguration)
		}
		return v, nil
	}
	return tts.Voice{}, fmt.Errorf("volcengine: unknown voice %q: %w", id, types.ErrConfiguration)
}
