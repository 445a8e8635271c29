package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"share_server/server/common/errs"
	"share_server/server/share/domain"
)

// memDB backs the in-memory stores below with the same scoping rules as the
// SQL repositories.
type memDB struct {
	mu       sync.Mutex
	seq      int64
	now      time.Time
	users    map[int64]domain.User
	byDevice map[string]int64
	contacts map[int64]domain.Contact
	shares   map[int64]domain.PendingShare
	refs     map[int64]string

	createShareErr map[int64]error
}

func newMemDB() *memDB {
	return &memDB{
		now:            time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		users:          map[int64]domain.User{},
		byDevice:       map[string]int64{},
		contacts:       map[int64]domain.Contact{},
		shares:         map[int64]domain.PendingShare{},
		refs:           map[int64]string{},
		createShareErr: map[int64]error{},
	}
}

func (m *memDB) tick() time.Time {
	m.now = m.now.Add(time.Second)
	return m.now
}

func (m *memDB) addUser(deviceID, username, phone string) domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	u := domain.User{ID: m.seq, DeviceID: deviceID, CreatedAt: m.tick()}
	if username != "" {
		u.Username = &username
	}
	if phone != "" {
		u.Phone = &phone
	}
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = u
	m.byDevice[deviceID] = u.ID
	return u
}

type memUsers struct{ *memDB }

var _ UserStore = memUsers{}

func (m memUsers) GetByID(_ context.Context, id int64) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, errs.ErrNotFound
	}
	return u, nil
}

func (m memUsers) GetByDeviceID(_ context.Context, deviceID string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byDevice[deviceID]
	if !ok {
		return domain.User{}, errs.ErrNotFound
	}
	return m.users[id], nil
}

func (m memUsers) Create(_ context.Context, deviceID string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byDevice[deviceID]; ok {
		return domain.User{}, errs.ErrAlreadyExists
	}
	m.seq++
	u := domain.User{ID: m.seq, DeviceID: deviceID, CreatedAt: m.tick()}
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = u
	m.byDevice[deviceID] = u.ID
	return u, nil
}

func (m memUsers) UpdateProfile(_ context.Context, id int64, upd domain.ProfileUpdate) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, errs.ErrNotFound
	}
	apply := func(dst **string, v *string) {
		switch {
		case v == nil:
		case *v == "":
			*dst = nil
		default:
			s := *v
			*dst = &s
		}
	}
	apply(&u.Username, upd.Username)
	apply(&u.Phone, upd.Phone)
	u.UpdatedAt = m.tick()
	m.users[id] = u
	return u, nil
}

func (m memUsers) Search(_ context.Context, pattern string, excludeUserID int64, limit int) ([]domain.PublicUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle := strings.ToLower(strings.NewReplacer(`\%`, `%`, `\_`, `_`, `\\`, `\`).Replace(pattern))
	out := make([]domain.PublicUser, 0)
	for _, id := range m.sortedUserIDs() {
		u := m.users[id]
		if u.ID == excludeUserID {
			continue
		}
		if (u.Username != nil && strings.Contains(strings.ToLower(*u.Username), needle)) ||
			(u.Phone != nil && strings.Contains(*u.Phone, needle)) {
			out = append(out, u.Public())
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m memUsers) FindByPhones(_ context.Context, phones []string, excludeUserID int64) ([]domain.PublicUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]bool{}
	for _, p := range phones {
		want[p] = true
	}
	out := make([]domain.PublicUser, 0)
	for _, id := range m.sortedUserIDs() {
		u := m.users[id]
		if u.ID != excludeUserID && u.Phone != nil && want[*u.Phone] {
			out = append(out, u.Public())
		}
	}
	return out, nil
}

func (m *memDB) sortedUserIDs() []int64 {
	ids := make([]int64, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type memContacts struct{ *memDB }

var _ ContactStore = memContacts{}

func (m memContacts) List(_ context.Context, ownerID int64) ([]domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Contact, 0)
	for _, c := range m.contacts {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memContacts) edge(ownerID, targetID int64) (domain.Contact, bool) {
	for _, c := range m.contacts {
		if c.OwnerID == ownerID && c.UserID == targetID {
			return c, true
		}
	}
	return domain.Contact{}, false
}

func (m memContacts) insert(ownerID, targetID int64) domain.Contact {
	m.seq++
	target := m.users[targetID]
	c := domain.Contact{ID: m.seq, OwnerID: ownerID, UserID: targetID, Username: target.Username, Phone: target.Phone, CreatedAt: m.tick()}
	m.contacts[c.ID] = c
	return c
}

func (m memContacts) Add(_ context.Context, ownerID, targetID int64, mutual bool) (domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[targetID]; !ok {
		return domain.Contact{}, errs.ErrNotFound
	}
	c, exists := m.edge(ownerID, targetID)
	if exists && !mutual {
		return domain.Contact{}, errs.ErrAlreadyExists
	}
	if !exists {
		c = m.insert(ownerID, targetID)
	}
	if mutual {
		if _, ok := m.edge(targetID, ownerID); !ok {
			m.insert(targetID, ownerID)
		}
	}
	return c, nil
}

func (m memContacts) Remove(_ context.Context, ownerID, edgeID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[edgeID]
	if !ok || c.OwnerID != ownerID {
		return false, nil
	}
	delete(m.contacts, edgeID)
	return true, nil
}

type memShares struct{ *memDB }

var _ ShareStore = memShares{}

func (m memShares) Create(_ context.Context, s domain.NewShare) (domain.SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.createShareErr[s.RecipientID]; err != nil {
		return domain.SendResult{}, err
	}
	recipient, ok := m.users[s.RecipientID]
	if !ok {
		return domain.SendResult{}, errs.ErrNotFound
	}
	sender := m.users[s.SenderID]
	m.seq++
	p := domain.PendingShare{
		ID:             m.seq,
		SenderID:       s.SenderID,
		SenderUsername: sender.Username,
		SenderPhone:    sender.Phone,
		RecipientID:    s.RecipientID,
		Title:          s.Title,
		Content:        s.Content,
		ContentRef:     s.ContentRef,
		CreatedAt:      m.tick(),
	}
	m.shares[p.ID] = p
	return domain.SendResult{ID: p.ID, RecipientID: p.RecipientID, RecipientUsername: recipient.Username, CreatedAt: p.CreatedAt}, nil
}

func (m memShares) ListForRecipient(_ context.Context, recipientID int64) ([]domain.PendingShare, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.PendingShare, 0)
	for _, p := range m.shares {
		if p.RecipientID == recipientID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memShares) GetForRecipient(_ context.Context, recipientID, shareID int64) (domain.PendingShare, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.shares[shareID]
	if !ok || p.RecipientID != recipientID {
		return domain.PendingShare{}, errs.ErrNotFound
	}
	return p, nil
}

func (m memShares) CountForRecipient(_ context.Context, recipientID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.shares {
		if p.RecipientID == recipientID {
			n++
		}
	}
	return n, nil
}

func (m memShares) delete(shareID int64, match func(domain.PendingShare) bool) (domain.RemovedShare, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.shares[shareID]
	if !ok || !match(p) {
		return domain.RemovedShare{}, false, nil
	}
	delete(m.shares, shareID)
	return domain.RemovedShare{ID: p.ID, SenderID: p.SenderID, RecipientID: p.RecipientID, ContentRef: p.ContentRef}, true, nil
}

func (m memShares) DeleteForRecipient(_ context.Context, recipientID, shareID int64) (domain.RemovedShare, bool, error) {
	return m.delete(shareID, func(p domain.PendingShare) bool { return p.RecipientID == recipientID })
}

func (m memShares) DeleteForSender(_ context.Context, senderID, shareID int64) (domain.RemovedShare, bool, error) {
	return m.delete(shareID, func(p domain.PendingShare) bool { return p.SenderID == senderID })
}

type recordedEvent struct {
	Key     string
	Payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Key: key, Payload: payload})
	return p.err
}

func (p *fakePublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Key)
	}
	return out
}

type fakeCache struct {
	mu          sync.Mutex
	counts      map[int64]int64
	gens        map[int64]int64
	invalidated []int64
	getErr      error
}

func newFakeCache() *fakeCache {
	return &fakeCache{counts: map[int64]int64{}, gens: map[int64]int64{}}
}

func (c *fakeCache) Get(_ context.Context, userID int64) (int64, bool, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return 0, false, 0, c.getErr
	}
	n, ok := c.counts[userID]
	return n, ok, c.gens[userID], nil
}

func (c *fakeCache) Set(_ context.Context, userID, count, gen int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[userID] != gen {
		return nil
	}
	c.counts[userID] = count
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, userIDs ...int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range userIDs {
		delete(c.counts, id)
		c.gens[id]++
		c.invalidated = append(c.invalidated, id)
	}
	return nil
}

type fakeContent struct {
	mu      sync.Mutex
	objects map[string]string
	putErr  error
}

func newFakeContent() *fakeContent { return &fakeContent{objects: map[string]string{}} }

func (f *fakeContent) Put(_ context.Context, key, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = content
	return nil
}

func (f *fakeContent) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[key]
	if !ok {
		return "", errs.ErrNotFound
	}
	return body, nil
}

func (f *fakeContent) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

type hint struct {
	UserID  int64
	Payload map[string]any
}

type fakeNotifier struct {
	mu    sync.Mutex
	hints []hint
}

func (n *fakeNotifier) NotifyUser(userID int64, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	m, _ := payload.(map[string]any)
	n.hints = append(n.hints, hint{UserID: userID, Payload: m})
}

var errBoom = errors.New("boom")

// racingShares runs its hooks right after the inbox rows or the count have
// been read.
type racingShares struct {
	memShares
	afterList  func()
	afterCount func()
}

func (r racingShares) ListForRecipient(ctx context.Context, recipientID int64) ([]domain.PendingShare, error) {
	items, err := r.memShares.ListForRecipient(ctx, recipientID)
	if err == nil && r.afterList != nil {
		r.afterList()
	}
	return items, err
}

func (r racingShares) CountForRecipient(ctx context.Context, recipientID int64) (int64, error) {
	n, err := r.memShares.CountForRecipient(ctx, recipientID)
	if err == nil && r.afterCount != nil {
		r.afterCount()
	}
	return n, err
}
