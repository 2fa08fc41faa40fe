// Package servicetest provides in-memory fakes of the service
// dependencies for tests.
package servicetest

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/tierhost/tierhost/internal/auth"
	"github.com/tierhost/tierhost/internal/cache"
	"github.com/tierhost/tierhost/internal/events"
	"github.com/tierhost/tierhost/internal/model"
	"github.com/tierhost/tierhost/internal/repository"
)

// MemStore is an in-memory file, link and user store.
type MemStore struct {
	mu    sync.Mutex
	users map[string]model.User
	files map[string]*model.File
	links map[string]*model.TemporaryLink // by token
	keys  []model.APIKey

	// FailCreateFile makes CreateFile return an error.
	FailCreateFile bool
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		users: make(map[string]model.User),
		files: make(map[string]*model.File),
		links: make(map[string]*model.TemporaryLink),
	}
}

// AddUser registers a user.
func (m *MemStore) AddUser(u model.User) model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return u
}

// AddAPIKey issues a real key for userID and returns its plaintext.
func (m *MemStore) AddAPIKey(t *testing.T, userID string, scopes ...string) string {
	t.Helper()
	issued, err := auth.IssueAPIKey(auth.EnvTest)
	if err != nil {
		t.Fatalf("issue key: %v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, model.APIKey{
		ID:        "key-" + issued.Prefix,
		UserID:    userID,
		KeyHash:   issued.Hash,
		KeyPrefix: issued.Prefix,
		Scopes:    scopes,
	})
	return issued.Plaintext
}

func (m *MemStore) GetKeyCandidatesByPrefix(_ context.Context, prefix string) ([]repository.KeyCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.KeyCandidate
	for _, k := range m.keys {
		if k.KeyPrefix == prefix && !k.IsRevoked() {
			out = append(out, repository.KeyCandidate{Key: k, Owner: m.users[k.UserID]})
		}
	}
	return out, nil
}

func (m *MemStore) UpdateAPIKeyLastUsed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for i := range m.keys {
		if m.keys[i].ID == id {
			m.keys[i].LastUsedAt = &now
			return nil
		}
	}
	return repository.ErrAPIKeyNotFound
}

func (m *MemStore) CreateFile(_ context.Context, f *model.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreateFile {
		return errors.New("connection refused")
	}
	cp := *f
	m.files[f.ID] = &cp
	return nil
}

func (m *MemStore) GetFileByID(_ context.Context, id string) (*model.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return nil, repository.ErrFileNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *MemStore) GetOwnedFile(ctx context.Context, ownerID, id string) (*model.File, error) {
	f, err := m.GetFileByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !f.IsOwnedBy(ownerID) {
		return nil, repository.ErrFileNotFound
	}
	return f, nil
}

func (m *MemStore) ListFilesByOwner(_ context.Context, ownerID string) ([]*model.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.File, 0)
	for _, f := range m.files {
		if f.OwnerID == ownerID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) UpdateFile(_ context.Context, f *model.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.files[f.ID]
	if !ok || cur.OwnerID != f.OwnerID {
		return repository.ErrFileNotFound
	}
	cp := *f
	m.files[f.ID] = &cp
	return nil
}

func (m *MemStore) DeleteFile(_ context.Context, ownerID, id string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok || f.OwnerID != ownerID {
		return nil, repository.ErrFileNotFound
	}
	var tokens []string
	for tok, l := range m.links {
		if l.FileID == id {
			tokens = append(tokens, tok)
			delete(m.links, tok)
		}
	}
	delete(m.files, id)
	return tokens, nil
}

func (m *MemStore) CreateTemporaryLink(_ context.Context, l *model.TemporaryLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[l.Token]; ok {
		return repository.ErrTokenExists
	}
	if _, ok := m.files[l.FileID]; !ok {
		return repository.ErrFileNotFound
	}
	cp := *l
	m.links[l.Token] = &cp
	return nil
}

func (m *MemStore) GetTemporaryLinkByToken(_ context.Context, tok string) (*model.TemporaryLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[tok]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *MemStore) GetUserDetail(_ context.Context, id string) (*model.UserDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return m.detail(u), nil
}

func (m *MemStore) ListUserDetails(_ context.Context) ([]*model.UserDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.UserDetail, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, m.detail(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) detail(u model.User) *model.UserDetail {
	d := &model.UserDetail{User: u, FileIDs: []string{}, LinkIDs: []string{}}
	for _, f := range m.files {
		if f.OwnerID == u.ID {
			d.FileIDs = append(d.FileIDs, f.ID)
		}
	}
	for _, l := range m.links {
		if l.IssuerID == u.ID {
			d.LinkIDs = append(d.LinkIDs, l.ID)
		}
	}
	sort.Strings(d.FileIDs)
	sort.Strings(d.LinkIDs)
	return d
}

// FileCount returns the number of stored files.
func (m *MemStore) FileCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

// MemCache is an in-memory link cache.
type MemCache struct {
	mu       sync.Mutex
	links    map[string]*model.TemporaryLink
	negative map[string]bool
	retired  map[string]bool
	// GetErr, when set, is returned by GetTemporaryLink.
	GetErr error
	// RetireFailures fails that many RetireTemporaryLinks calls first.
	RetireFailures int
}

// NewMemCache creates an empty MemCache.
func NewMemCache() *MemCache {
	return &MemCache{
		links:    make(map[string]*model.TemporaryLink),
		negative: make(map[string]bool),
		retired:  make(map[string]bool),
	}
}

func (c *MemCache) GetTemporaryLink(_ context.Context, tok string) (*model.TemporaryLink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.GetErr != nil {
		return nil, c.GetErr
	}
	l, ok := c.links[tok]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	cp := *l
	return &cp, nil
}

func (c *MemCache) SetTemporaryLink(_ context.Context, l *model.TemporaryLink) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retired[l.Token] {
		return nil
	}
	cp := *l
	c.links[l.Token] = &cp
	delete(c.negative, l.Token)
	return nil
}

func (c *MemCache) RetireTemporaryLinks(_ context.Context, tokens ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.RetireFailures > 0 {
		c.RetireFailures--
		return errors.New("memcache: retire failed")
	}
	for _, tok := range tokens {
		delete(c.links, tok)
		c.retired[tok] = true
	}
	return nil
}

func (c *MemCache) IsNegativelyCached(_ context.Context, tok string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negative[tok] || c.retired[tok], nil
}

func (c *MemCache) SetNegativeCache(_ context.Context, tok string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.negative[tok] = true
	return nil
}

// Cached reports whether tok is cached.
func (c *MemCache) Cached(tok string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.links[tok]
	return ok
}

// Publisher records published events.
type Publisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *Publisher) PublishAsync(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

// Types returns the types of the recorded events in order.
func (p *Publisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// PNG encodes a w x h solid PNG.
func PNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// JPEG encodes a w x h black JPEG.
func JPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// BlobCount counts regular files in fs.
func BlobCount(t *testing.T, fs afero.Fs) int {
	t.Helper()
	n := 0
	err := afero.Walk(fs, "/", func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk blobs: %v", err)
	}
	return n
}

// NewClock creates a Clock set to now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}
