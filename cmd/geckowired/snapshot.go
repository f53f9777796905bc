package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rexliu/geckowire/pkg/session"
)

const snapshotFile = "sessions.json"

var snapshotMu sync.Mutex

// writeSnapshot records the live sessions next to the profile config so
// they can be inspected while the daemon is busy or gone.
func writeSnapshot(profileDir string, sessions []session.Info) error {
	snapshotMu.Lock()
	defer snapshotMu.Unlock()
	path := filepath.Join(profileDir, snapshotFile)
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{"sessions": sessions, "written": time.Now()}); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// snapshotJournal rewrites the snapshot after every lifecycle transition.
type snapshotJournal struct {
	d *daemon
}

func (j snapshotJournal) RecordOpened(context.Context, session.Info) error {
	return writeSnapshot(j.d.profileDir, j.d.registry.Sessions())
}

func (j snapshotJournal) RecordClosed(context.Context, string, string, time.Time) error {
	return writeSnapshot(j.d.profileDir, j.d.registry.Sessions())
}
