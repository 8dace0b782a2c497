package auth

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// SecretSource provides the shared symmetric key for internal tokens.
// An empty result means no secret is configured.
type SecretSource interface {
	Secret() []byte
}

// StaticSecret is a SecretSource backed by a fixed value
type StaticSecret string

// Secret returns the configured value
func (s StaticSecret) Secret() []byte {
	return []byte(s)
}

// FileSecret is a SecretSource that reads the key from a file and reloads it
// whenever the file changes, so the secret can be rotated out-of-band.
type FileSecret struct {
	path    string
	log     logrus.FieldLogger
	watcher *fsnotify.Watcher

	mu     sync.RWMutex
	secret []byte

	done chan struct{}
}

// NewFileSecret loads the secret at path and starts watching it
func NewFileSecret(path string, log logrus.FieldLogger) (*FileSecret, error) {
	if log == nil {
		log = logrus.New()
	}

	fs := &FileSecret{
		path: path,
		log:  log.WithField("component", "secret"),
		done: make(chan struct{}),
	}
	if _, err := fs.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}
	fs.watcher = watcher

	go fs.watch()
	return fs, nil
}

// Secret returns the most recently loaded key
func (fs *FileSecret) Secret() []byte {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.secret
}

// Close stops watching the file
func (fs *FileSecret) Close() error {
	close(fs.done)
	return fs.watcher.Close()
}

// reload reads the file and reports whether the secret changed
func (fs *FileSecret) reload() (bool, error) {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		return false, fmt.Errorf("failed to read secret file: %w", err)
	}
	secret := bytes.TrimSpace(data)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if bytes.Equal(secret, fs.secret) {
		return false, nil
	}
	fs.secret = secret
	return true, nil
}

// watch re-reads the secret on any change in its directory. Mounted secrets
// rotate by swapping a symlink (..data), so events rarely name the file itself.
func (fs *FileSecret) watch() {
	for {
		select {
		case <-fs.done:
			return
		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			changed, err := fs.reload()
			if err != nil {
				fs.log.WithError(err).WithField("event", event.String()).Warn("Keeping previous internal token secret")
				continue
			}
			if changed {
				fs.log.Info("Reloaded internal token secret")
			}
		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			fs.log.WithError(err).Warn("Secret watcher error")
		}
	}
}
