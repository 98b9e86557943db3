// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsProduceValidConfig(t *testing.T) {
	v, err := InitConfig()
	require.NoError(t, err)

	cfg, err := GetApplicationConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "wavelink", cfg.Name)
	assert.Equal(t, 2333, cfg.Server.Port)
	assert.Equal(t, 60, cfg.Server.StatsInterval)
	assert.Equal(t, 5, cfg.Server.PlayerUpdateInterval)
	assert.Equal(t, 512, cfg.Server.MaxEventQueueSize)
	assert.Equal(t, 400, cfg.Player.BufferDurationMs)
	assert.Equal(t, 96000, cfg.Player.OpusBitrate)
	assert.Equal(t, 250, cfg.Player.Tape.TapeStopDurationMs)
	assert.Equal(t, "linear", cfg.Player.Tape.Curve)
	assert.True(t, cfg.Filters.Timescale)
	assert.True(t, cfg.Sources.HTTP)
	assert.False(t, cfg.Sources.Local)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVER__PORT", "8080")
	t.Setenv("PLAYER__TAPE__CURVE", "exponential")
	t.Setenv("SOURCES__LOCAL", "true")

	v, err := InitConfig()
	require.NoError(t, err)
	cfg, err := GetApplicationConfig(v)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "exponential", cfg.Player.Tape.Curve)
	assert.True(t, cfg.Sources.Local)
}

func TestInvalidCurveRejected(t *testing.T) {
	t.Setenv("PLAYER__TAPE__CURVE", "sigmoid")

	v, err := InitConfig()
	require.NoError(t, err)
	_, err = GetApplicationConfig(v)
	assert.Error(t, err)
}
