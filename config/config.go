// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package config

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// AppConfig is the full node configuration.
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`
	LogFile  string `mapstructure:"log_file"`

	Server       ServerConfig       `mapstructure:"server" validate:"required"`
	Player       PlayerConfig       `mapstructure:"player" validate:"required"`
	Filters      FiltersConfig      `mapstructure:"filters"`
	Sources      SourcesConfig      `mapstructure:"sources"`
	RoutePlanner RoutePlannerConfig `mapstructure:"routeplanner"`
}

// ServerConfig covers the REST/WS surface and periodic reporting.
type ServerConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	Password string `mapstructure:"password"`
	// Intervals are in seconds.
	StatsInterval         int `mapstructure:"stats_interval" validate:"min=1"`
	WebsocketPingInterval int `mapstructure:"websocket_ping_interval" validate:"min=1"`
	PlayerUpdateInterval  int `mapstructure:"player_update_interval" validate:"min=1"`
	// Resume window for disconnected sessions, seconds.
	SessionResumeTimeout int `mapstructure:"session_resume_timeout" validate:"min=1"`
	// Events queued while a resumable session is detached; overflow drops oldest.
	MaxEventQueueSize int `mapstructure:"max_event_queue_size" validate:"min=1"`
}

// PlayerConfig holds per-player pipeline knobs.
type PlayerConfig struct {
	// Decoded-PCM buffering between decoder and mixer, milliseconds.
	BufferDurationMs int `mapstructure:"buffer_duration_ms" validate:"min=40"`
	// Opus bitrate for the speak loop, bits per second.
	OpusBitrate int `mapstructure:"opus_bitrate" validate:"min=8000,max=510000"`
	// Consecutive silent frames before the speak loop stops transmitting.
	IdleFrames int        `mapstructure:"idle_frames" validate:"min=1"`
	Tape       TapeConfig `mapstructure:"tape"`
}

// TapeConfig parameterises the pause/resume tape ramp.
type TapeConfig struct {
	TapeStopDurationMs int    `mapstructure:"tape_stop_duration_ms" validate:"min=0"`
	Curve              string `mapstructure:"curve" validate:"oneof=linear exponential"`
}

// FiltersConfig enables or disables each filter server-side.
type FiltersConfig struct {
	Volume        bool `mapstructure:"volume"`
	Equalizer     bool `mapstructure:"equalizer"`
	Karaoke       bool `mapstructure:"karaoke"`
	Timescale     bool `mapstructure:"timescale"`
	Tremolo       bool `mapstructure:"tremolo"`
	Vibrato       bool `mapstructure:"vibrato"`
	Distortion    bool `mapstructure:"distortion"`
	Rotation      bool `mapstructure:"rotation"`
	ChannelMix    bool `mapstructure:"channel_mix"`
	LowPass       bool `mapstructure:"low_pass"`
	HighPass      bool `mapstructure:"high_pass"`
	Echo          bool `mapstructure:"echo"`
	Chorus        bool `mapstructure:"chorus"`
	Flanger       bool `mapstructure:"flanger"`
	Phaser        bool `mapstructure:"phaser"`
	Phonograph    bool `mapstructure:"phonograph"`
	Reverb        bool `mapstructure:"reverb"`
	Compressor    bool `mapstructure:"compressor"`
	Normalization bool `mapstructure:"normalization"`
	Spatial       bool `mapstructure:"spatial"`
}

// SourcesConfig toggles source plugins.
type SourcesConfig struct {
	HTTP  bool `mapstructure:"http"`
	Local bool `mapstructure:"local"`
}

// RoutePlannerConfig configures outbound IP balancing for source fetches.
type RoutePlannerConfig struct {
	// CIDR blocks, e.g. "192.0.2.0/24". Empty disables the planner.
	IPBlocks []string `mapstructure:"ip_blocks"`
}

// InitConfig reads configuration from .env / environment. `__` is the key
// delimiter so SERVER__PORT maps to server.port.
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	if path := os.Getenv("ENV_PATH"); path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("Reading from env variables.")
	}

	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	v.SetDefault("SERVICE_NAME", "wavelink")
	v.SetDefault("VERSION", "4.0.0")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")

	v.SetDefault("SERVER__HOST", "0.0.0.0")
	v.SetDefault("SERVER__PORT", 2333)
	v.SetDefault("SERVER__PASSWORD", "youshallnotpass")
	v.SetDefault("SERVER__STATS_INTERVAL", 60)
	v.SetDefault("SERVER__WEBSOCKET_PING_INTERVAL", 30)
	v.SetDefault("SERVER__PLAYER_UPDATE_INTERVAL", 5)
	v.SetDefault("SERVER__SESSION_RESUME_TIMEOUT", 60)
	v.SetDefault("SERVER__MAX_EVENT_QUEUE_SIZE", 512)

	v.SetDefault("PLAYER__BUFFER_DURATION_MS", 400)
	v.SetDefault("PLAYER__OPUS_BITRATE", 96000)
	v.SetDefault("PLAYER__IDLE_FRAMES", 10)
	v.SetDefault("PLAYER__TAPE__TAPE_STOP_DURATION_MS", 250)
	v.SetDefault("PLAYER__TAPE__CURVE", "linear")

	v.SetDefault("FILTERS__VOLUME", true)
	v.SetDefault("FILTERS__EQUALIZER", true)
	v.SetDefault("FILTERS__KARAOKE", true)
	v.SetDefault("FILTERS__TIMESCALE", true)
	v.SetDefault("FILTERS__TREMOLO", true)
	v.SetDefault("FILTERS__VIBRATO", true)
	v.SetDefault("FILTERS__DISTORTION", true)
	v.SetDefault("FILTERS__ROTATION", true)
	v.SetDefault("FILTERS__CHANNEL_MIX", true)
	v.SetDefault("FILTERS__LOW_PASS", true)
	v.SetDefault("FILTERS__HIGH_PASS", true)
	v.SetDefault("FILTERS__ECHO", true)
	v.SetDefault("FILTERS__CHORUS", true)
	v.SetDefault("FILTERS__FLANGER", true)
	v.SetDefault("FILTERS__PHASER", true)
	v.SetDefault("FILTERS__PHONOGRAPH", true)
	v.SetDefault("FILTERS__REVERB", true)
	v.SetDefault("FILTERS__COMPRESSOR", true)
	v.SetDefault("FILTERS__NORMALIZATION", true)
	v.SetDefault("FILTERS__SPATIAL", true)

	v.SetDefault("SOURCES__HTTP", true)
	v.SetDefault("SOURCES__LOCAL", false)

	v.SetDefault("ROUTEPLANNER__IP_BLOCKS", []string{})
}

// GetApplicationConfig unmarshals and validates the viper tree.
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
