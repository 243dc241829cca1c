package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/howeyc/fsnotify"

	"github.com/nf/c8/vip"
)

// watchROM reloads romFile into r whenever it changes on disk.
func watchROM(ctx context.Context, romFile string, r *vip.Runner) error {
	romFile = filepath.Clean(romFile)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Watch(filepath.Dir(romFile)); err != nil {
		return err
	}

	var reload <-chan time.Time
	for {
		select {
		case <-reload:
			reload = nil
			rom, err := os.ReadFile(romFile)
			if err != nil {
				log.Printf("dev: %v", err)
				break
			}
			log.Printf("dev: reload %s (%d bytes)", filepath.Base(romFile), len(rom))
			if err := r.Swap(rom); err != nil {
				log.Printf("dev: %v", err)
			}
		case ev := <-watcher.Event:
			if filepath.Clean(ev.Name) == romFile && !ev.IsAttrib() && !ev.IsDelete() {
				// Editors and assemblers often write in several steps.
				reload = time.After(100 * time.Millisecond)
			}
		case err := <-watcher.Error:
			log.Printf("dev: watcher: %v", err)
		case <-r.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
