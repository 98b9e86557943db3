// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package protocol

// Filters is the wire-level filter configuration. Every key is optional;
// an absent key leaves the corresponding filter untouched on merge.
type Filters struct {
	Volume        *float32             `json:"volume,omitempty"`
	Equalizer     []EqBand             `json:"equalizer,omitempty"`
	Karaoke       *KaraokeConfig       `json:"karaoke,omitempty"`
	Timescale     *TimescaleConfig     `json:"timescale,omitempty"`
	Tremolo       *TremoloConfig       `json:"tremolo,omitempty"`
	Vibrato       *VibratoConfig       `json:"vibrato,omitempty"`
	Distortion    *DistortionConfig    `json:"distortion,omitempty"`
	Rotation      *RotationConfig      `json:"rotation,omitempty"`
	ChannelMix    *ChannelMixConfig    `json:"channelMix,omitempty"`
	LowPass       *LowPassConfig       `json:"lowPass,omitempty"`
	HighPass      *HighPassConfig      `json:"highPass,omitempty"`
	Echo          *EchoConfig          `json:"echo,omitempty"`
	Chorus        *ChorusConfig        `json:"chorus,omitempty"`
	Flanger       *FlangerConfig       `json:"flanger,omitempty"`
	Phaser        *PhaserConfig        `json:"phaser,omitempty"`
	Phonograph    *PhonographConfig    `json:"phonograph,omitempty"`
	Reverb        *ReverbConfig        `json:"reverb,omitempty"`
	Compressor    *CompressorConfig    `json:"compressor,omitempty"`
	Normalization *NormalizationConfig `json:"normalization,omitempty"`
	Spatial       *SpatialConfig       `json:"spatial,omitempty"`
}

type EqBand struct {
	Band uint8   `json:"band"`
	Gain float32 `json:"gain"`
}

type KaraokeConfig struct {
	Level       *float32 `json:"level,omitempty"`
	MonoLevel   *float32 `json:"monoLevel,omitempty"`
	FilterBand  *float32 `json:"filterBand,omitempty"`
	FilterWidth *float32 `json:"filterWidth,omitempty"`
}

type TimescaleConfig struct {
	Speed *float64 `json:"speed,omitempty"`
	Pitch *float64 `json:"pitch,omitempty"`
	Rate  *float64 `json:"rate,omitempty"`
}

type TremoloConfig struct {
	Frequency *float32 `json:"frequency,omitempty"`
	Depth     *float32 `json:"depth,omitempty"`
}

type VibratoConfig struct {
	Frequency *float32 `json:"frequency,omitempty"`
	Depth     *float32 `json:"depth,omitempty"`
}

type DistortionConfig struct {
	SinOffset *float32 `json:"sinOffset,omitempty"`
	SinScale  *float32 `json:"sinScale,omitempty"`
	CosOffset *float32 `json:"cosOffset,omitempty"`
	CosScale  *float32 `json:"cosScale,omitempty"`
	TanOffset *float32 `json:"tanOffset,omitempty"`
	TanScale  *float32 `json:"tanScale,omitempty"`
	Offset    *float32 `json:"offset,omitempty"`
	Scale     *float32 `json:"scale,omitempty"`
}

type RotationConfig struct {
	RotationHz *float64 `json:"rotationHz,omitempty"`
}

type ChannelMixConfig struct {
	LeftToLeft   *float32 `json:"leftToLeft,omitempty"`
	LeftToRight  *float32 `json:"leftToRight,omitempty"`
	RightToLeft  *float32 `json:"rightToLeft,omitempty"`
	RightToRight *float32 `json:"rightToRight,omitempty"`
}

type LowPassConfig struct {
	Smoothing *float32 `json:"smoothing,omitempty"`
}

type HighPassConfig struct {
	CutoffFrequency *int32   `json:"cutoffFrequency,omitempty"`
	BoostFactor     *float32 `json:"boostFactor,omitempty"`
}

type EchoConfig struct {
	EchoLength *float32 `json:"echoLength,omitempty"`
	Decay      *float32 `json:"decay,omitempty"`
}

type ChorusConfig struct {
	Rate     *float32 `json:"rate,omitempty"`
	Depth    *float32 `json:"depth,omitempty"`
	Delay    *float32 `json:"delay,omitempty"`
	Mix      *float32 `json:"mix,omitempty"`
	Feedback *float32 `json:"feedback,omitempty"`
}

type FlangerConfig struct {
	Rate     *float32 `json:"rate,omitempty"`
	Depth    *float32 `json:"depth,omitempty"`
	Feedback *float32 `json:"feedback,omitempty"`
}

type PhaserConfig struct {
	Stages       *int32   `json:"stages,omitempty"`
	Rate         *float32 `json:"rate,omitempty"`
	Depth        *float32 `json:"depth,omitempty"`
	Feedback     *float32 `json:"feedback,omitempty"`
	Mix          *float32 `json:"mix,omitempty"`
	MinFrequency *float32 `json:"minFrequency,omitempty"`
	MaxFrequency *float32 `json:"maxFrequency,omitempty"`
}

type PhonographConfig struct {
	Frequency *float32 `json:"frequency,omitempty"`
	Depth     *float32 `json:"depth,omitempty"`
	Crackle   *float32 `json:"crackle,omitempty"`
	Flutter   *float32 `json:"flutter,omitempty"`
	Room      *float32 `json:"room,omitempty"`
	MicAgc    *float32 `json:"micAgc,omitempty"`
	Drive     *float32 `json:"drive,omitempty"`
}

type ReverbConfig struct {
	Mix      *float32 `json:"mix,omitempty"`
	RoomSize *float32 `json:"roomSize,omitempty"`
	Damping  *float32 `json:"damping,omitempty"`
	Width    *float32 `json:"width,omitempty"`
}

type CompressorConfig struct {
	Threshold  *float32 `json:"threshold,omitempty"`
	Ratio      *float32 `json:"ratio,omitempty"`
	Attack     *float32 `json:"attack,omitempty"`
	Release    *float32 `json:"release,omitempty"`
	MakeupGain *float32 `json:"makeupGain,omitempty"`
}

type NormalizationConfig struct {
	MaxAmplitude *float32 `json:"maxAmplitude,omitempty"`
	Adaptive     *bool    `json:"adaptive,omitempty"`
}

type SpatialConfig struct {
	Depth *float32 `json:"depth,omitempty"`
	Rate  *float32 `json:"rate,omitempty"`
}

// FilterNames lists every supported filter key in wire casing.
func FilterNames() []string {
	return []string{
		"volume", "equalizer", "karaoke", "timescale", "tremolo", "vibrato",
		"distortion", "rotation", "channelMix", "lowPass", "highPass", "echo",
		"chorus", "flanger", "phaser", "phonograph", "reverb", "compressor",
		"normalization", "spatial",
	}
}

// Merge overlays incoming non-nil keys onto f.
func (f *Filters) Merge(incoming Filters) {
	if incoming.Volume != nil {
		f.Volume = incoming.Volume
	}
	if incoming.Equalizer != nil {
		f.Equalizer = incoming.Equalizer
	}
	if incoming.Karaoke != nil {
		f.Karaoke = incoming.Karaoke
	}
	if incoming.Timescale != nil {
		f.Timescale = incoming.Timescale
	}
	if incoming.Tremolo != nil {
		f.Tremolo = incoming.Tremolo
	}
	if incoming.Vibrato != nil {
		f.Vibrato = incoming.Vibrato
	}
	if incoming.Distortion != nil {
		f.Distortion = incoming.Distortion
	}
	if incoming.Rotation != nil {
		f.Rotation = incoming.Rotation
	}
	if incoming.ChannelMix != nil {
		f.ChannelMix = incoming.ChannelMix
	}
	if incoming.LowPass != nil {
		f.LowPass = incoming.LowPass
	}
	if incoming.HighPass != nil {
		f.HighPass = incoming.HighPass
	}
	if incoming.Echo != nil {
		f.Echo = incoming.Echo
	}
	if incoming.Chorus != nil {
		f.Chorus = incoming.Chorus
	}
	if incoming.Flanger != nil {
		f.Flanger = incoming.Flanger
	}
	if incoming.Phaser != nil {
		f.Phaser = incoming.Phaser
	}
	if incoming.Phonograph != nil {
		f.Phonograph = incoming.Phonograph
	}
	if incoming.Reverb != nil {
		f.Reverb = incoming.Reverb
	}
	if incoming.Compressor != nil {
		f.Compressor = incoming.Compressor
	}
	if incoming.Normalization != nil {
		f.Normalization = incoming.Normalization
	}
	if incoming.Spatial != nil {
		f.Spatial = incoming.Spatial
	}
}

// IsAllNone reports whether no filter key is set at all.
func (f *Filters) IsAllNone() bool {
	return f.Volume == nil && f.Equalizer == nil && f.Karaoke == nil &&
		f.Timescale == nil && f.Tremolo == nil && f.Vibrato == nil &&
		f.Distortion == nil && f.Rotation == nil && f.ChannelMix == nil &&
		f.LowPass == nil && f.HighPass == nil && f.Echo == nil &&
		f.Chorus == nil && f.Flanger == nil && f.Phaser == nil &&
		f.Phonograph == nil && f.Reverb == nil && f.Compressor == nil &&
		f.Normalization == nil && f.Spatial == nil
}

// Disallowed returns the wire names of requested filters that the server
// configuration has disabled.
func (f *Filters) Disallowed(enabled map[string]bool) []string {
	var out []string
	check := func(set bool, name string) {
		if set && !enabled[name] {
			out = append(out, name)
		}
	}
	check(f.Volume != nil, "volume")
	check(f.Equalizer != nil, "equalizer")
	check(f.Karaoke != nil, "karaoke")
	check(f.Timescale != nil, "timescale")
	check(f.Tremolo != nil, "tremolo")
	check(f.Vibrato != nil, "vibrato")
	check(f.Distortion != nil, "distortion")
	check(f.Rotation != nil, "rotation")
	check(f.ChannelMix != nil, "channelMix")
	check(f.LowPass != nil, "lowPass")
	check(f.HighPass != nil, "highPass")
	check(f.Echo != nil, "echo")
	check(f.Chorus != nil, "chorus")
	check(f.Flanger != nil, "flanger")
	check(f.Phaser != nil, "phaser")
	check(f.Phonograph != nil, "phonograph")
	check(f.Reverb != nil, "reverb")
	check(f.Compressor != nil, "compressor")
	check(f.Normalization != nil, "normalization")
	check(f.Spatial != nil, "spatial")
	return out
}
