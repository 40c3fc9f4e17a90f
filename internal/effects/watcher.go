package effects

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const DefaultDebounce = 250 * time.Millisecond

// Watcher reports changes to definition files in one folder, coalescing
// bursts of events into a single notification.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	debounce time.Duration
	log      zerolog.Logger
}

func NewWatcher(dir string, debounce time.Duration, log zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{watcher: fw, dir: dir, debounce: debounce, log: log}, nil
}

// Run calls onChange once per quiet period after definition files change.
// It returns when ctx is cancelled or the watcher fails.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	defer w.watcher.Close()

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !IsDefinitionFile(event.Name) || !relevant(event.Op) {
				continue
			}
			w.log.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("effect file changed")
			resetTimer(timer, w.debounce)

		case <-timer.C:
			w.log.Info().Str("folder", w.dir).Msg("effects folder changed, reindexing")
			onChange()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error().Err(err).Msg("watcher error")
			return err
		}
	}
}

func relevant(op fsnotify.Op) bool {
	return op.Has(fsnotify.Create) || op.Has(fsnotify.Write) || op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename)
}

func resetTimer(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}
