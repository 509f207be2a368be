package api

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// watchArtifact rebinds the contract whenever the build artifact is
// rewritten, e.g. after a redeploy. The directory is watched rather than
// the file because toolchains replace artifacts by rename.
func (s *Server) watchArtifact(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(s.artifactPath)
	if err := watcher.Add(dir); err != nil {
		s.logger.Error("failed to watch artifact directory", "dir", dir, "error", err)
		// Don't fail - continue without watching
		<-ctx.Done()
		return nil
	}
	s.logger.Debug("watching artifact", "path", s.artifactPath)

	target := filepath.Clean(s.artifactPath)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(reloadDebounce, func() {
				s.reloadContract(ctx)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}

func (s *Server) reloadContract(ctx context.Context) {
	c, err := s.reload(ctx)
	if err != nil {
		s.logger.Error("failed to reload contract, keeping previous binding", "error", err)
		return
	}
	prev := s.currentContract()
	s.SetContract(c)
	if prev == nil || prev.Address() != c.Address() {
		s.logger.Info("contract rebound", "address", c.Address().Hex())
	}
}
