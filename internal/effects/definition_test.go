package effects

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const thunderYAML = `
category: Weather
name: Thunder
description: Rolling thunder with a flash
steps:
  - audio: {file: thunder.wav, volume: 90}
  - osc: {address: /lights/flash, value: 1}
  - wait: 1.5s
  - device: {name: fog, data: {level: 3, pattern: [on, off]}}
  - audio: {file: rain.ogg, mode: ambiance, category: weather, fade: true}
`

func TestParseDefinition(t *testing.T) {
	def, err := ParseDefinition([]byte(thunderYAML))
	require.NoError(t, err)

	assert.Equal(t, "Weather", def.Category)
	assert.Equal(t, "Thunder", def.Name)
	assert.Equal(t, "Rolling thunder with a flash", def.Description)
	require.Len(t, def.Steps, 5)

	assert.Equal(t, &AudioStep{File: "thunder.wav", Volume: 90, Mode: AudioOneShot}, def.Steps[0].Audio)
	assert.Equal(t, "/lights/flash", def.Steps[1].OSC.Address)
	assert.Equal(t, 1, def.Steps[1].OSC.Value)
	assert.Equal(t, 1500*time.Millisecond, def.Steps[2].Wait)
	assert.Equal(t, "fog", def.Steps[3].Device.Name)
	assert.Equal(t, 3, def.Steps[3].Device.Data["level"])
	assert.Equal(t, &AudioStep{File: "rain.ogg", Volume: defaultVolume, Mode: AudioAmbiance, Category: "weather", Fade: true}, def.Steps[4].Audio)

	kinds := make([]string, len(def.Steps))
	for i, s := range def.Steps {
		kinds[i] = s.Kind()
	}
	assert.Equal(t, []string{"audio", "osc", "wait", "device", "audio"}, kinds)
}

func TestParseDefinition_NoSteps(t *testing.T) {
	def, err := ParseDefinition([]byte("category: Doors\nname: Creak\n"))
	require.NoError(t, err)
	assert.Empty(t, def.Steps)
}

func TestParseDefinition_DeviceDataDefaultsToEmpty(t *testing.T) {
	def, err := ParseDefinition([]byte("category: Fx\nname: Fog\nsteps:\n  - device: {name: fog}\n"))
	require.NoError(t, err)
	assert.NotNil(t, def.Steps[0].Device.Data)
}

func TestParseDefinition_Invalid(t *testing.T) {
	tests := map[string]string{
		"not yaml":          "category: [",
		"missing category":  "name: Creak",
		"missing name":      "category: Doors",
		"empty step":        "category: A\nname: B\nsteps:\n  - {}\n",
		"two actions":       "category: A\nname: B\nsteps:\n  - {wait: 1s, osc: {address: /x}}\n",
		"negative wait":     "category: A\nname: B\nsteps:\n  - wait: -1s\n",
		"audio no file":     "category: A\nname: B\nsteps:\n  - audio: {volume: 10}\n",
		"bad mode":          "category: A\nname: B\nsteps:\n  - audio: {file: a.wav, mode: loud}\n",
		"ambiance no slot":  "category: A\nname: B\nsteps:\n  - audio: {file: a.wav, mode: ambiance}\n",
		"volume too high":   "category: A\nname: B\nsteps:\n  - audio: {file: a.wav, volume: 150}\n",
		"osc bad address":   "category: A\nname: B\nsteps:\n  - osc: {address: lights, value: 1}\n",
		"device no name":    "category: A\nname: B\nsteps:\n  - device: {data: {a: 1}}\n",
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDefinition([]byte(input))
			assert.ErrorIs(t, err, ErrInvalidDefinition)
		})
	}
}
