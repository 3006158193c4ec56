package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kartikrastogi18/FitConnect/internal/models"
)

type memoryData struct {
	users           map[int64]models.User
	trainerProfiles map[int64]models.TrainerProfile
	chats           map[int64]models.ChatSession
	payments        map[int64]models.Payment
	messages        []models.Message
	seq             int64
}

func (d *memoryData) clone() *memoryData {
	cp := &memoryData{
		users:           make(map[int64]models.User, len(d.users)),
		trainerProfiles: make(map[int64]models.TrainerProfile, len(d.trainerProfiles)),
		chats:           make(map[int64]models.ChatSession, len(d.chats)),
		payments:        make(map[int64]models.Payment, len(d.payments)),
		messages:        make([]models.Message, len(d.messages)),
		seq:             d.seq,
	}
	for k, v := range d.users {
		cp.users[k] = v
	}
	for k, v := range d.trainerProfiles {
		cp.trainerProfiles[k] = v
	}
	for k, v := range d.chats {
		cp.chats[k] = v
	}
	for k, v := range d.payments {
		cp.payments[k] = v
	}
	copy(cp.messages, d.messages)
	return cp
}

func (d *memoryData) nextID() int64 {
	d.seq++
	return d.seq
}

type memoryState struct {
	mu   sync.Mutex
	data *memoryData
	now  func() time.Time
}

// MemoryStore is an in-memory Store for development mode and tests. A unit of
// work holds the store lock for its whole duration and restores a snapshot
// when it fails, so units of work are serialized.
type MemoryStore struct {
	state *memoryState
	inTx  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memoryState{
			data: &memoryData{
				users:           make(map[int64]models.User),
				trainerProfiles: make(map[int64]models.TrainerProfile),
				chats:           make(map[int64]models.ChatSession),
				payments:        make(map[int64]models.Payment),
			},
			now: time.Now,
		},
	}
}

// SetClock replaces the time source. Intended for tests.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	m.state.now = now
}

func (m *MemoryStore) Chats() ChatStore                     { return &memoryChats{m} }
func (m *MemoryStore) Payments() PaymentStore               { return &memoryPayments{m} }
func (m *MemoryStore) Messages() MessageStore               { return &memoryMessages{m} }
func (m *MemoryStore) Users() UserStore                     { return &memoryUsers{m} }
func (m *MemoryStore) TrainerProfiles() TrainerProfileStore { return &memoryTrainerProfiles{m} }

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if m.inTx {
		return fn(m)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.state.mu.Lock()
	defer m.state.mu.Unlock()

	snapshot := m.state.data.clone()
	if err := fn(&MemoryStore{state: m.state, inTx: true}); err != nil {
		m.state.data = snapshot
		return err
	}
	return nil
}

// with runs fn against the live data, taking the lock unless a unit of work
// already holds it.
func (m *MemoryStore) with(fn func(d *memoryData, now time.Time)) {
	if !m.inTx {
		m.state.mu.Lock()
		defer m.state.mu.Unlock()
	}
	fn(m.state.data, m.state.now().UTC())
}

type memoryChats struct{ m *MemoryStore }

func (r *memoryChats) CreateOrGetLive(
	_ context.Context,
	input CreateChatInput,
) (chat *models.ChatSession, created bool, err error) {
	r.m.with(func(d *memoryData, now time.Time) {
		for _, existing := range d.chats {
			if existing.TraineeID != input.TraineeID || existing.Type != input.Type {
				continue
			}
			if input.Type == models.ChatTypeAI && existing.Status == models.ChatStatusActive {
				cp := existing
				chat = &cp
				return
			}
			if input.Type == models.ChatTypeTrainer && existing.Status.IsLive() &&
				existing.TrainerID != nil && input.TrainerID != nil && *existing.TrainerID == *input.TrainerID {
				cp := existing
				chat = &cp
				return
			}
		}

		c := models.ChatSession{
			ID:        d.nextID(),
			TraineeID: input.TraineeID,
			TrainerID: copyInt64(input.TrainerID),
			Type:      input.Type,
			Status:    input.Status,
			CreatedAt: now,
			UpdatedAt: now,
		}
		d.chats[c.ID] = c
		chat = &c
		created = true
	})
	return chat, created, nil
}

func (r *memoryChats) GetByID(_ context.Context, id int64) (*models.ChatSession, error) {
	var chat *models.ChatSession
	r.m.with(func(d *memoryData, _ time.Time) {
		if c, ok := d.chats[id]; ok {
			chat = &c
		}
	})
	if chat == nil {
		return nil, ErrNotFound
	}
	return chat, nil
}

func (r *memoryChats) GetByIDForUpdate(ctx context.Context, id int64) (*models.ChatSession, error) {
	return r.GetByID(ctx, id)
}

func (r *memoryChats) ListForParticipant(_ context.Context, userID int64) ([]models.ChatSession, error) {
	chats := make([]models.ChatSession, 0)
	r.m.with(func(d *memoryData, _ time.Time) {
		for _, c := range d.chats {
			if c.IsParticipant(userID) {
				chats = append(chats, c)
			}
		}
	})
	sort.Slice(chats, func(i, j int) bool {
		if !chats[i].UpdatedAt.Equal(chats[j].UpdatedAt) {
			return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
		}
		return chats[i].ID > chats[j].ID
	})
	return chats, nil
}

func (r *memoryChats) UpdateStatusIfCurrent(
	_ context.Context,
	id int64,
	current, next models.ChatStatus,
) (*models.ChatSession, error) {
	var chat *models.ChatSession
	r.m.with(func(d *memoryData, now time.Time) {
		c, ok := d.chats[id]
		if !ok || c.Status != current {
			return
		}
		c.Status = next
		c.UpdatedAt = now
		d.chats[id] = c
		chat = &c
	})
	if chat == nil {
		return nil, ErrNotFound
	}
	return chat, nil
}

func (r *memoryChats) Touch(_ context.Context, id int64) error {
	r.m.with(func(d *memoryData, now time.Time) {
		if c, ok := d.chats[id]; ok {
			c.UpdatedAt = now
			d.chats[id] = c
		}
	})
	return nil
}

type memoryPayments struct{ m *MemoryStore }

func (r *memoryPayments) Create(_ context.Context, input CreatePaymentInput) (*models.Payment, error) {
	var (
		payment *models.Payment
		err     error
	)
	r.m.with(func(d *memoryData, now time.Time) {
		if _, ok := d.chats[input.ChatID]; !ok {
			err = ErrNotFound
			return
		}
		for _, p := range d.payments {
			if p.ChatID == input.ChatID || p.GatewayRef == input.GatewayRef {
				err = ErrDuplicate
				return
			}
		}
		p := models.Payment{
			ID:         d.nextID(),
			ChatID:     input.ChatID,
			TraineeID:  input.TraineeID,
			TrainerID:  input.TrainerID,
			GatewayRef: input.GatewayRef,
			Amount:     input.Amount,
			Currency:   input.Currency,
			Status:     models.PaymentStatusCreated,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		d.payments[p.ID] = p
		payment = &p
	})
	return payment, err
}

func (r *memoryPayments) find(match func(models.Payment) bool) (*models.Payment, error) {
	var payment *models.Payment
	r.m.with(func(d *memoryData, _ time.Time) {
		for _, p := range d.payments {
			if match(p) {
				cp := p
				payment = &cp
				return
			}
		}
	})
	if payment == nil {
		return nil, ErrNotFound
	}
	return payment, nil
}

func (r *memoryPayments) GetByID(_ context.Context, id int64) (*models.Payment, error) {
	return r.find(func(p models.Payment) bool { return p.ID == id })
}

func (r *memoryPayments) GetByIDForUpdate(ctx context.Context, id int64) (*models.Payment, error) {
	return r.GetByID(ctx, id)
}

func (r *memoryPayments) GetByChatID(_ context.Context, chatID int64) (*models.Payment, error) {
	return r.find(func(p models.Payment) bool { return p.ChatID == chatID })
}

func (r *memoryPayments) GetByChatIDForUpdate(ctx context.Context, chatID int64) (*models.Payment, error) {
	return r.GetByChatID(ctx, chatID)
}

func (r *memoryPayments) GetByGatewayRef(_ context.Context, gatewayRef string) (*models.Payment, error) {
	return r.find(func(p models.Payment) bool { return p.GatewayRef == gatewayRef })
}

func (r *memoryPayments) UpdateStatusIfCurrent(
	_ context.Context,
	id int64,
	current, next models.PaymentStatus,
	at time.Time,
) (*models.Payment, error) {
	var payment *models.Payment
	r.m.with(func(d *memoryData, _ time.Time) {
		p, ok := d.payments[id]
		if !ok || p.Status != current {
			return
		}
		stamp := at.UTC()
		p.Status = next
		p.UpdatedAt = stamp
		switch next {
		case models.PaymentStatusHeld:
			if p.HeldAt == nil {
				p.HeldAt = &stamp
			}
		case models.PaymentStatusReleased:
			if p.ReleasedAt == nil {
				p.ReleasedAt = &stamp
			}
		case models.PaymentStatusRefunded:
			if p.RefundedAt == nil {
				p.RefundedAt = &stamp
			}
		}
		d.payments[id] = p
		payment = &p
	})
	if payment == nil {
		return nil, ErrNotFound
	}
	return payment, nil
}

func (r *memoryPayments) List(_ context.Context, filter PaymentListFilter) ([]models.Payment, int, error) {
	matched := make([]models.Payment, 0)
	status := strings.TrimSpace(string(filter.Status))
	r.m.with(func(d *memoryData, _ time.Time) {
		for _, p := range d.payments {
			if filter.ParticipantID > 0 && p.TraineeID != filter.ParticipantID && p.TrainerID != filter.ParticipantID {
				continue
			}
			if filter.TraineeID > 0 && p.TraineeID != filter.TraineeID {
				continue
			}
			if filter.TrainerID > 0 && p.TrainerID != filter.TrainerID {
				continue
			}
			if status != "" && string(p.Status) != status {
				continue
			}
			matched = append(matched, p)
		}
	})
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	return page(matched, limit, filter.Offset), total, nil
}

func (r *memoryPayments) ListHeldBefore(_ context.Context, before time.Time, limit int) ([]models.Payment, error) {
	held := make([]models.Payment, 0)
	r.m.with(func(d *memoryData, _ time.Time) {
		for _, p := range d.payments {
			if p.Status == models.PaymentStatusHeld && p.HeldAt != nil && p.HeldAt.Before(before) {
				held = append(held, p)
			}
		}
	})
	sort.Slice(held, func(i, j int) bool {
		if !held[i].HeldAt.Equal(*held[j].HeldAt) {
			return held[i].HeldAt.Before(*held[j].HeldAt)
		}
		return held[i].ID < held[j].ID
	})
	return page(held, limit, 0), nil
}

type memoryMessages struct{ m *MemoryStore }

func (r *memoryMessages) Create(
	_ context.Context,
	chatID int64,
	role models.SenderRole,
	content string,
) (*models.Message, error) {
	var (
		message *models.Message
		err     error
	)
	r.m.with(func(d *memoryData, now time.Time) {
		if _, ok := d.chats[chatID]; !ok {
			err = ErrNotFound
			return
		}
		msg := models.Message{
			ID:         d.nextID(),
			ChatID:     chatID,
			SenderRole: role,
			Content:    content,
			CreatedAt:  now,
		}
		d.messages = append(d.messages, msg)
		message = &msg
	})
	return message, err
}

// byChat returns the chat's messages in creation order. Messages are only
// ever appended, so slice order is creation order.
func (r *memoryMessages) byChat(chatID int64) []models.Message {
	messages := make([]models.Message, 0)
	r.m.with(func(d *memoryData, _ time.Time) {
		for _, msg := range d.messages {
			if msg.ChatID == chatID {
				messages = append(messages, msg)
			}
		}
	})
	return messages
}

func (r *memoryMessages) ListByChat(_ context.Context, chatID int64, limit, offset int) ([]models.Message, int, error) {
	messages := r.byChat(chatID)
	return page(messages, limit, offset), len(messages), nil
}

func (r *memoryMessages) ListRecent(_ context.Context, chatID int64, n int) ([]models.Message, error) {
	messages := r.byChat(chatID)
	if n >= 0 && len(messages) > n {
		messages = messages[len(messages)-n:]
	}
	return messages, nil
}

type memoryUsers struct{ m *MemoryStore }

func (r *memoryUsers) CreateUser(_ context.Context, user *models.User) error {
	var err error
	r.m.with(func(d *memoryData, now time.Time) {
		for _, u := range d.users {
			if strings.EqualFold(u.Email, user.Email) {
				err = ErrDuplicate
				return
			}
		}
		user.ID = d.nextID()
		user.CreatedAt = now
		user.UpdatedAt = now
		d.users[user.ID] = *user
	})
	return err
}

func (r *memoryUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	var user *models.User
	r.m.with(func(d *memoryData, _ time.Time) {
		for _, u := range d.users {
			if strings.EqualFold(u.Email, email) {
				cp := u
				user = &cp
				return
			}
		}
	})
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

func (r *memoryUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	var user *models.User
	r.m.with(func(d *memoryData, _ time.Time) {
		if u, ok := d.users[id]; ok {
			user = &u
		}
	})
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

type memoryTrainerProfiles struct{ m *MemoryStore }

func (r *memoryTrainerProfiles) CreateEmpty(_ context.Context, userID int64) error {
	r.m.with(func(d *memoryData, now time.Time) {
		if _, ok := d.trainerProfiles[userID]; ok {
			return
		}
		d.trainerProfiles[userID] = models.TrainerProfile{
			ID:        d.nextID(),
			UserID:    userID,
			CreatedAt: now,
			UpdatedAt: now,
		}
	})
	return nil
}

func (r *memoryTrainerProfiles) GetByUserID(_ context.Context, userID int64) (*models.TrainerProfile, error) {
	var profile *models.TrainerProfile
	r.m.with(func(d *memoryData, _ time.Time) {
		if p, ok := d.trainerProfiles[userID]; ok {
			profile = &p
		}
	})
	if profile == nil {
		return nil, ErrNotFound
	}
	return profile, nil
}

func (r *memoryTrainerProfiles) SetSessionRate(
	_ context.Context,
	userID int64,
	rateMinor int64,
) (*models.TrainerProfile, error) {
	var profile models.TrainerProfile
	r.m.with(func(d *memoryData, now time.Time) {
		p, ok := d.trainerProfiles[userID]
		if !ok {
			p = models.TrainerProfile{ID: d.nextID(), UserID: userID, CreatedAt: now}
		}
		rate := rateMinor
		p.SessionRateMinor = &rate
		p.UpdatedAt = now
		d.trainerProfiles[userID] = p
		profile = p
	})
	return &profile, nil
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit >= 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
