package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/cadence/internal/communications/domain"
	"github.com/felixgeelhaar/cadence/internal/shared/infrastructure/security"
	"gopkg.in/yaml.v3"
)

// DefaultMaintenanceThreshold is how long a contact can go quiet before it needs maintenance.
const DefaultMaintenanceThreshold = 30 * 24 * time.Hour

// ErrContactNotFound is returned when a contact id is unknown.
var ErrContactNotFound = errors.New("contact not found")

type document struct {
	Preferences domain.Preferences `yaml:"preferences"`
	Contacts    []domain.Contact   `yaml:"contacts"`
}

// FileDirectory is a contact directory and preference store backed by a YAML file.
// An empty path keeps everything in memory.
type FileDirectory struct {
	mu        sync.RWMutex
	path      string
	doc       document
	threshold time.Duration
	clock     domain.Clock
	logger    *slog.Logger
}

// Option configures a FileDirectory.
type Option func(*FileDirectory)

// WithThreshold overrides the maintenance threshold.
func WithThreshold(threshold time.Duration) Option {
	return func(d *FileDirectory) {
		if threshold > 0 {
			d.threshold = threshold
		}
	}
}

// WithClock overrides the clock used to judge maintenance.
func WithClock(clock domain.Clock) Option {
	return func(d *FileDirectory) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// Open loads the directory at path. A missing file yields an empty directory
// that is created on the first write.
func Open(path string, logger *slog.Logger, opts ...Option) (*FileDirectory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &FileDirectory{
		path:      path,
		threshold: DefaultMaintenanceThreshold,
		clock:     domain.SystemClock{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	if path == "" {
		return d, nil
	}

	clean, err := security.ValidateFilePath(path)
	if err != nil {
		return nil, fmt.Errorf("contact directory path: %w", err)
	}
	d.path = clean
	data, err := security.SafeReadFile(clean)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("contact directory not found, starting empty", "path", path)
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read contact directory: %w", err)
	}
	if err := yaml.Unmarshal(data, &d.doc); err != nil {
		return nil, fmt.Errorf("parse contact directory %s: %w", path, err)
	}
	if err := d.validate(); err != nil {
		return nil, fmt.Errorf("contact directory %s: %w", path, err)
	}
	return d, nil
}

// NewInMemory creates a directory seeded with contacts and preferences.
func NewInMemory(contacts []domain.Contact, prefs domain.Preferences, opts ...Option) *FileDirectory {
	d := &FileDirectory{
		doc: document{
			Preferences: prefs,
			Contacts:    append([]domain.Contact{}, contacts...),
		},
		threshold: DefaultMaintenanceThreshold,
		clock:     domain.SystemClock{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *FileDirectory) validate() error {
	seen := make(map[string]struct{}, len(d.doc.Contacts))
	for i, c := range d.doc.Contacts {
		if c.ID == "" {
			return fmt.Errorf("contact #%d has no id", i+1)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("duplicate contact id %q", c.ID)
		}
		seen[c.ID] = struct{}{}
		if c.PreferredChannel != "" && !c.PreferredChannel.IsValid() {
			return fmt.Errorf("contact %q: unknown preferred channel %q", c.ID, c.PreferredChannel)
		}
		for ch := range c.Addresses {
			if !ch.IsValid() {
				return fmt.Errorf("contact %q: unknown address channel %q", c.ID, ch)
			}
		}
	}
	if d.doc.Preferences.DefaultChannel != "" && !d.doc.Preferences.DefaultChannel.IsValid() {
		return fmt.Errorf("unknown default channel %q", d.doc.Preferences.DefaultChannel)
	}
	return nil
}

// Contacts returns every contact sorted by id.
func (d *FileDirectory) Contacts(ctx context.Context) ([]domain.Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := append([]domain.Contact{}, d.doc.Contacts...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Contact returns a single contact by id.
func (d *FileDirectory) Contact(ctx context.Context, id string) (domain.Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range d.doc.Contacts {
		if c.ID == id {
			return c, nil
		}
	}
	return domain.Contact{}, fmt.Errorf("%w: %s", ErrContactNotFound, id)
}

// ContactsNeedingMaintenance returns contacts that have gone quiet for longer
// than the threshold, longest-quiet first.
func (d *FileDirectory) ContactsNeedingMaintenance(ctx context.Context) ([]domain.Contact, error) {
	now := d.clock.Now()
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []domain.Contact
	for _, c := range d.doc.Contacts {
		if c.NeedsMaintenance(now, d.threshold) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastContactedAt.Before(out[j].LastContactedAt)
	})
	return out, nil
}

// CommunicationPreferences returns the user-level preferences.
func (d *FileDirectory) CommunicationPreferences(ctx context.Context) (domain.Preferences, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	prefs := d.doc.Preferences
	prefs.PausedRecipients = append([]string{}, prefs.PausedRecipients...)
	if prefs.DefaultChannel == "" {
		prefs.DefaultChannel = domain.ChannelEmail
	}
	return prefs, nil
}

// ResolveAddress returns the contact's address on a channel.
func (d *FileDirectory) ResolveAddress(ctx context.Context, recipient string, channel domain.Channel) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range d.doc.Contacts {
		if c.ID == recipient {
			return c.Address(channel)
		}
	}
	return "", false
}

// RecordContact stamps the last time a contact was reached and persists the file.
// Unknown recipients are ignored.
func (d *FileDirectory) RecordContact(ctx context.Context, recipient string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.doc.Contacts {
		if d.doc.Contacts[i].ID != recipient {
			continue
		}
		if at.Before(d.doc.Contacts[i].LastContactedAt) {
			return nil
		}
		d.doc.Contacts[i].LastContactedAt = at.UTC()
		return d.saveLocked()
	}
	return nil
}

// Upsert adds or replaces a contact and persists the file.
func (d *FileDirectory) Upsert(ctx context.Context, contact domain.Contact) error {
	if contact.ID == "" {
		return errors.New("contact id is required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.doc.Contacts {
		if d.doc.Contacts[i].ID == contact.ID {
			d.doc.Contacts[i] = contact
			return d.saveLocked()
		}
	}
	d.doc.Contacts = append(d.doc.Contacts, contact)
	return d.saveLocked()
}

func (d *FileDirectory) saveLocked() error {
	if d.path == "" {
		return nil
	}
	data, err := yaml.Marshal(&d.doc)
	if err != nil {
		return fmt.Errorf("encode contact directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return fmt.Errorf("create contact directory dir: %w", err)
	}
	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write contact directory: %w", err)
	}
	if err := os.Rename(tmp, d.path); err != nil {
		return fmt.Errorf("replace contact directory: %w", err)
	}
	d.logger.Debug("contact directory saved", "path", d.path, "contacts", len(d.doc.Contacts))
	return nil
}
