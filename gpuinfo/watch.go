package gpuinfo

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/fsnotify/fsnotify"

	"github.com/ruaan-deysel/intelgpu/logger"
)

// HotplugEvent describes an adapter appearing or disappearing under
// /sys/class/drm.
type HotplugEvent struct {
	CardIndex int
	Added     bool
}

// WatchGpus watches DrmClassPath for cardN directories being created or
// removed and reports them on the returned channel until stop is closed.
// This is not part of the core PMU sampling path; it exists so a long-running
// caller (cmd/gpu-broadcast) can notice a second adapter being attached
// without polling ListGpus on a timer.
func WatchGpus(stop <-chan struct{}) (<-chan HotplugEvent, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("gpuinfo: create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(DrmClassPath); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("gpuinfo: watch %s: %w", DrmClassPath, err)
	}

	events := make(chan HotplugEvent)
	go func() {
		defer watcher.Close()
		defer close(events)
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				m := cardNameRe.FindStringSubmatch(filepath.Base(ev.Name))
				if m == nil {
					continue
				}
				idx, err := strconv.Atoi(m[1])
				if err != nil {
					continue
				}
				added := ev.Op&(fsnotify.Create) != 0
				removed := ev.Op&(fsnotify.Remove) != 0
				if !added && !removed {
					continue
				}
				select {
				case events <- HotplugEvent{CardIndex: idx, Added: added}:
				case <-stop:
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warning("gpuinfo: watch error: %v", err)
			}
		}
	}()
	return events, nil
}
