package model

import "slices"

// Profile selects the engine's general strength/speed trade-off.
type Profile string

// Profile constants.
const (
	ProfileSpeed    Profile = "speed"
	ProfileBalanced Profile = "balanced"
	ProfileMaximum  Profile = "maximum"

	DefaultProfile = ProfileBalanced
)

// PresetLuaSec is the only named preset. A preset replaces the profile.
const PresetLuaSec = "luasec"

// Feature is an independent engine capability toggle.
type Feature string

// Feature constants, in the order their flags are passed to the engine.
const (
	FeatureVM         Feature = "vm"
	FeatureJunkYard   Feature = "junk_yard"
	FeatureAntiTamper Feature = "anti_tamper"
	FeatureWatermark  Feature = "watermark"
)

// Profiles lists the accepted profiles.
var Profiles = []Profile{ProfileSpeed, ProfileBalanced, ProfileMaximum}

// Presets lists the accepted named presets.
var Presets = []string{PresetLuaSec}

// Features lists the accepted feature toggles in canonical order.
var Features = []Feature{FeatureVM, FeatureJunkYard, FeatureAntiTamper, FeatureWatermark}

// Options are the validated engine options of a request.
type Options struct {
	Profile  Profile   `json:"profile"`
	Preset   string    `json:"preset,omitempty"`
	Features []Feature `json:"features,omitempty"`
}

// NormalizeOptions validates raw options against the allow-lists. Unknown
// profiles fall back to DefaultProfile, unknown presets and features are
// dropped. A profile named after a preset selects that preset.
func NormalizeOptions(profile, preset string, features []string) Options {
	opts := Options{Profile: DefaultProfile}

	if slices.Contains(Profiles, Profile(profile)) {
		opts.Profile = Profile(profile)
	}

	switch {
	case slices.Contains(Presets, preset):
		opts.Preset = preset
	case slices.Contains(Presets, profile):
		opts.Preset = profile
	}

	for _, f := range Features {
		if slices.Contains(features, string(f)) {
			opts.Features = append(opts.Features, f)
		}
	}

	return opts
}

// Has reports whether the feature was requested.
func (o Options) Has(f Feature) bool {
	return slices.Contains(o.Features, f)
}
