package effects

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var ErrUnknownEffect = errors.New("unknown effect")

// AudioPlayer plays one audio cue. File is already resolved against the
// effects folder.
type AudioPlayer interface {
	Play(ctx context.Context, cue AudioStep) error
}

type OSCSender interface {
	Send(address string, value any) error
}

// DeviceSender forwards a device action to the relay.
type DeviceSender interface {
	SendDeviceAction(device string, data any) error
}

// LogAudioPlayer stands in for a sound backend by logging each cue.
type LogAudioPlayer struct {
	Log zerolog.Logger
}

func (p LogAudioPlayer) Play(_ context.Context, cue AudioStep) error {
	p.Log.Info().Str("file", cue.File).Str("mode", string(cue.Mode)).
		Str("slot", cue.Category).Int("volume", cue.Volume).Bool("fade", cue.Fade).Msg("audio cue")
	return nil
}

// LogOSCSender is used when no OSC server is configured.
type LogOSCSender struct {
	Log zerolog.Logger
}

func (s LogOSCSender) Send(address string, value any) error {
	s.Log.Info().Str("address", address).Interface("value", value).Msg("osc cue (no osc server configured)")
	return nil
}

type RunnerOptions struct {
	Library *Library
	Audio   AudioPlayer
	OSC     OSCSender
	Devices DeviceSender
	Logger  zerolog.Logger
}

// Runner executes effects. Each effect runs its steps in order; different
// effects run concurrently.
type Runner struct {
	library *Library
	audio   AudioPlayer
	osc     OSCSender
	devices DeviceSender
	log     zerolog.Logger

	wg sync.WaitGroup
}

func NewRunner(opts RunnerOptions) *Runner {
	r := &Runner{
		library: opts.Library,
		audio:   opts.Audio,
		osc:     opts.OSC,
		devices: opts.Devices,
		log:     opts.Logger,
	}
	if r.audio == nil {
		r.audio = LogAudioPlayer{Log: opts.Logger}
	}
	if r.osc == nil {
		r.osc = LogOSCSender{Log: opts.Logger}
	}
	return r
}

// Trigger looks up category/name and starts it in the background.
func (r *Runner) Trigger(ctx context.Context, category, name string) error {
	def, ok := r.library.Lookup(category, name)
	if !ok {
		r.log.Warn().Str("category", category).Str("effect", name).Msg("could not find effect")
		return fmt.Errorf("%w: %s/%s", ErrUnknownEffect, category, name)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.Run(ctx, def)
	}()
	return nil
}

// Wait blocks until every triggered effect has finished.
func (r *Runner) Wait() { r.wg.Wait() }

// Run executes def synchronously. The first failing step stops the effect.
func (r *Runner) Run(ctx context.Context, def Definition) error {
	log := r.log.With().Str("category", def.Category).Str("effect", def.Name).Logger()
	log.Info().Int("steps", len(def.Steps)).Msg("running effect")
	start := time.Now()

	for i, step := range def.Steps {
		if err := r.runStep(ctx, step); err != nil {
			log.Error().Err(err).Int("step", i+1).Str("kind", step.Kind()).Msg("could not run effect")
			return fmt.Errorf("step %d (%s): %w", i+1, step.Kind(), err)
		}
	}

	log.Info().Dur("took", time.Since(start)).Msg("effect finished")
	return nil
}

func (r *Runner) runStep(ctx context.Context, step Step) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch {
	case step.Audio != nil:
		cue := *step.Audio
		cue.File = r.library.Resolve(cue.File)
		return r.audio.Play(ctx, cue)
	case step.OSC != nil:
		return r.osc.Send(step.OSC.Address, step.OSC.Value)
	case step.Device != nil:
		if r.devices == nil {
			return errors.New("no relay connection for device actions")
		}
		return r.devices.SendDeviceAction(step.Device.Name, step.Device.Data)
	case step.Wait > 0:
		t := time.NewTimer(step.Wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
	return nil
}
