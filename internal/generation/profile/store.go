package profile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/ideaforge-backend/internal/platform/apierr"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

// Store holds the loaded profiles and swaps them atomically on reload.
type Store struct {
	dir       string
	defaultID string
	log       *logger.Logger

	mu       sync.RWMutex
	profiles map[string]*Profile
}

func NewStore(log *logger.Logger, dir, defaultID string) *Store {
	return &Store{
		dir:       dir,
		defaultID: strings.TrimSpace(defaultID),
		log:       log.With("service", "ProfileStore"),
		profiles:  map[string]*Profile{},
	}
}

// NewStaticStore builds a store from in-memory profiles.
func NewStaticStore(log *logger.Logger, defaultID string, profiles ...*Profile) (*Store, error) {
	s := NewStore(log, "", defaultID)
	next := make(map[string]*Profile, len(profiles))
	for _, p := range profiles {
		if err := p.applyDefaults(); err != nil {
			return nil, err
		}
		next[p.ID] = p
	}
	s.profiles = next
	return s, nil
}

// Load reads every *.yaml / *.yml file in the store directory. A bad file
// fails the whole load and leaves the previous set in place.
func (s *Store) Load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read profiles dir: %w", err)
	}
	next := map[string]*Profile{}
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		p, err := LoadFile(path)
		if err != nil {
			return err
		}
		if _, dup := next[p.ID]; dup {
			return fmt.Errorf("profile %q defined twice (%s)", p.ID, path)
		}
		next[p.ID] = p
	}
	if len(next) == 0 {
		return fmt.Errorf("no profiles found in %s", s.dir)
	}
	s.mu.Lock()
	s.profiles = next
	s.mu.Unlock()
	s.log.Info("Profiles loaded", "count", len(next), "dir", s.dir)
	return nil
}

func LoadFile(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if err := p.applyDefaults(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) Get(id string) (*Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[strings.TrimSpace(id)]
	return p, ok
}

// Default returns the configured default profile, or the first by id.
func (s *Store) Default() (*Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.profiles[s.defaultID]; ok {
		return p, true
	}
	if s.defaultID != "" || len(s.profiles) == 0 {
		return nil, false
	}
	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return s.profiles[ids[0]], true
}

// Resolve picks the effective profile: explicit request, then slot
// assignment, then the default. A named profile that is missing is NotFound.
func (s *Store) Resolve(requested, slotAssigned string) (*Profile, error) {
	for _, id := range []string{requested, slotAssigned} {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if p, ok := s.Get(id); ok {
			return p, nil
		}
		return nil, apierr.NotFound("profile_not_found", fmt.Errorf("profile %q not found", id)).WithDetail("profile_id", id)
	}
	if p, ok := s.Default(); ok {
		return p, nil
	}
	return nil, apierr.NotFound("profile_not_found", fmt.Errorf("no default profile configured"))
}

func (s *Store) List() []*Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Watch reloads profiles whenever a YAML file in the directory changes.
// It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}

	const debounce = 250 * time.Millisecond
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isYAML(ev.Name) || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounce)
			pending = timer.C
		case <-pending:
			pending = nil
			if err := s.Load(); err != nil {
				s.log.Warn("Profile reload failed; keeping previous set", "error", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("Profile watcher error", "error", err)
		}
	}
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
