// Package effects loads the controller's effect definitions from a folder
// of YAML files, watches that folder and runs effects step by step.
package effects

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalidDefinition = errors.New("invalid effect definition")

type AudioMode string

const (
	AudioOneShot  AudioMode = "oneshot"
	AudioMusic    AudioMode = "music"
	AudioAmbiance AudioMode = "ambiance"
)

const defaultVolume = 70

// Definition is one effect file.
//
//	category: Weather
//	name: Thunder
//	description: Rolling thunder with a flash
//	steps:
//	  - audio: {file: thunder.wav, volume: 90}
//	  - osc: {address: /lights/flash, value: 1}
//	  - wait: 1.5s
//	  - device: {name: fog, data: {level: 3}}
type Definition struct {
	Category    string `yaml:"category"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`

	// Path is the file the definition was read from.
	Path string `yaml:"-"`
}

// Step holds exactly one action.
type Step struct {
	Audio  *AudioStep    `yaml:"audio,omitempty"`
	OSC    *OSCStep      `yaml:"osc,omitempty"`
	Device *DeviceStep   `yaml:"device,omitempty"`
	Wait   time.Duration `yaml:"wait,omitempty"`
}

type AudioStep struct {
	File   string    `yaml:"file"`
	Volume int       `yaml:"volume"`
	Mode   AudioMode `yaml:"mode"`
	// Category names the ambiance slot; a new ambiance replaces whatever
	// is playing in the same slot.
	Category string `yaml:"category"`
	Fade     bool   `yaml:"fade"`
}

type OSCStep struct {
	Address string `yaml:"address"`
	Value   any    `yaml:"value"`
}

type DeviceStep struct {
	Name string         `yaml:"name"`
	Data map[string]any `yaml:"data"`
}

// Kind names the action a step holds.
func (s Step) Kind() string {
	switch {
	case s.Audio != nil:
		return "audio"
	case s.OSC != nil:
		return "osc"
	case s.Device != nil:
		return "device"
	case s.Wait > 0:
		return "wait"
	default:
		return ""
	}
}

// ParseDefinition decodes and validates one definition, filling defaults.
func ParseDefinition(data []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	if err := def.normalize(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// LoadDefinition reads the definition at path.
func LoadDefinition(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, err
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return Definition{}, fmt.Errorf("%s: %w", path, err)
	}
	def.Path = path
	return def, nil
}

func (d *Definition) normalize() error {
	if d.Category == "" || d.Name == "" {
		return fmt.Errorf("%w: category and name are required", ErrInvalidDefinition)
	}
	for i := range d.Steps {
		if err := d.Steps[i].normalize(); err != nil {
			return fmt.Errorf("%w: step %d: %v", ErrInvalidDefinition, i+1, err)
		}
	}
	return nil
}

func (s *Step) normalize() error {
	set := 0
	for _, ok := range []bool{s.Audio != nil, s.OSC != nil, s.Device != nil, s.Wait != 0} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return errors.New("a step needs exactly one of audio, osc, device or wait")
	}

	switch {
	case s.Wait < 0:
		return errors.New("wait must be positive")
	case s.Audio != nil:
		return s.Audio.normalize()
	case s.OSC != nil:
		if s.OSC.Address == "" || s.OSC.Address[0] != '/' {
			return fmt.Errorf("osc address %q must start with /", s.OSC.Address)
		}
	case s.Device != nil:
		if s.Device.Name == "" {
			return errors.New("device step without name")
		}
		if s.Device.Data == nil {
			s.Device.Data = map[string]any{}
		}
	}
	return nil
}

func (a *AudioStep) normalize() error {
	if a.File == "" {
		return errors.New("audio step without file")
	}
	if a.Mode == "" {
		a.Mode = AudioOneShot
	}
	switch a.Mode {
	case AudioOneShot, AudioMusic:
	case AudioAmbiance:
		if a.Category == "" {
			return errors.New("ambiance audio needs a category")
		}
	default:
		return fmt.Errorf("unknown audio mode %q", a.Mode)
	}
	if a.Volume == 0 {
		a.Volume = defaultVolume
	}
	if a.Volume < 0 || a.Volume > 100 {
		return fmt.Errorf("volume %d out of range 0-100", a.Volume)
	}
	return nil
}
