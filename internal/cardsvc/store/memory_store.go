package store

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/avvvet/idcard-services/internal/cardsvc/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore is an in-process card store with the same semantics as CardStore.
// It backs tests and local runs without a database.
type MemoryStore struct {
	mu    sync.RWMutex
	cards map[primitive.ObjectID]*models.Card
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cards: make(map[primitive.ObjectID]*models.Card)}
}

func (m *MemoryStore) Insert(_ context.Context, card *models.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.liveCNICTaken(card.CNIC, primitive.NilObjectID) {
		return ErrDuplicateCNIC
	}

	card.ID = primitive.NewObjectID()
	card.Deleted = false
	m.cards[card.ID] = copyCard(card)
	return nil
}

func (m *MemoryStore) liveCNICTaken(cnic string, except primitive.ObjectID) bool {
	for id, c := range m.cards {
		if id != except && !c.Deleted && c.CNIC == cnic {
			return true
		}
	}
	return false
}

func (m *MemoryStore) live(id string) (*models.Card, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, false
	}
	c, ok := m.cards[oid]
	if !ok || c.Deleted {
		return nil, false
	}
	return c, true
}

func (m *MemoryStore) FindByID(_ context.Context, id string) (*models.Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.live(id)
	if !ok {
		return nil, ErrNotFound
	}
	return copyCard(c), nil
}

func (m *MemoryStore) List(_ context.Context, search string, skip, limit int64) ([]*models.Card, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*models.Card, 0, len(m.cards))
	for _, c := range m.cards {
		if !c.Deleted && matchesSearch(c, search) {
			matched = append(matched, c)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.Hex() < matched[j].ID.Hex()
	})

	total := int64(len(matched))
	if skip < 0 || skip >= total {
		return []*models.Card{}, total, nil
	}
	end := skip + limit
	if end > total {
		end = total
	}

	page := make([]*models.Card, 0, end-skip)
	for _, c := range matched[skip:end] {
		page = append(page, copyCard(c))
	}
	return page, total, nil
}

func matchesSearch(c *models.Card, search string) bool {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return true
	}
	for _, v := range []string{c.Name, c.FatherName, c.Address, c.Religion} {
		if strings.Contains(strings.ToLower(v), search) {
			return true
		}
	}
	digits := StripCNIC(search)
	return IsDigits(digits) && strings.HasPrefix(c.CNIC, digits)
}

func (m *MemoryStore) Update(_ context.Context, id string, upd *models.CardUpdate) (*models.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.live(id)
	if !ok {
		return nil, ErrNotFound
	}
	if upd.CNIC != nil && m.liveCNICTaken(*upd.CNIC, c.ID) {
		return nil, ErrDuplicateCNIC
	}

	apply := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	apply(&c.Name, upd.Name)
	apply(&c.FatherName, upd.FatherName)
	apply(&c.CNIC, upd.CNIC)
	apply(&c.Address, upd.Address)
	apply(&c.Gender, upd.Gender)
	apply(&c.Religion, upd.Religion)
	apply(&c.BloodGroup, upd.BloodGroup)
	apply(&c.MaritalStatus, upd.MaritalStatus)
	apply(&c.Profession, upd.Profession)
	apply(&c.BirthMark, upd.BirthMark)
	apply(&c.Province, upd.Province)
	apply(&c.City, upd.City)
	apply(&c.Photo, upd.Photo)
	apply(&c.Signature, upd.Signature)
	if upd.DOB != nil {
		c.DOB = *upd.DOB
	}
	c.UpdatedAt = upd.UpdatedAt

	return copyCard(c), nil
}

func (m *MemoryStore) SoftDelete(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.live(id)
	if !ok {
		return ErrNotFound
	}
	c.Deleted = true
	c.DeletedAt = &at
	return nil
}

func (m *MemoryStore) CountCards(_ context.Context, from, to time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, c := range m.cards {
		if c.Deleted {
			continue
		}
		if !from.IsZero() && c.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !c.CreatedAt.Before(to) {
			continue
		}
		n++
	}
	return n, nil
}

func (m *MemoryStore) GroupCounts(_ context.Context, fields ...string) ([]models.RawGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := map[string]*models.RawGroup{}
	var order []string
	for _, c := range m.cards {
		if c.Deleted {
			continue
		}
		values := make([]string, len(fields))
		for i, f := range fields {
			values[i] = fieldValue(c, f)
		}
		key := strings.Join(values, "\x00")
		g, ok := counts[key]
		if !ok {
			g = &models.RawGroup{Values: values}
			counts[key] = g
			order = append(order, key)
		}
		g.Count++
	}

	groups := make([]models.RawGroup, 0, len(order))
	for _, key := range order {
		groups = append(groups, *counts[key])
	}
	return groups, nil
}

func fieldValue(c *models.Card, field string) string {
	switch field {
	case "gender":
		return c.Gender
	case "religion":
		return c.Religion
	case "profession":
		return c.Profession
	case "province":
		return c.Province
	case "city":
		return c.City
	case "bloodGroup":
		return c.BloodGroup
	case "maritalStatus":
		return c.MaritalStatus
	default:
		return ""
	}
}

func (m *MemoryStore) AgeCounts(_ context.Context, now time.Time) ([]models.AgeCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := map[int]int64{}
	for _, c := range m.cards {
		if c.Deleted || c.DOB.IsZero() {
			continue
		}
		ms := float64(now.Sub(c.DOB).Milliseconds())
		counts[int(math.Floor(ms/msPerYear))]++
	}

	ages := make([]models.AgeCount, 0, len(counts))
	for age, n := range counts {
		ages = append(ages, models.AgeCount{Age: age, Count: n})
	}
	return ages, nil
}

func (m *MemoryStore) ActivityCounts(_ context.Context, since time.Time, unit models.BucketUnit, loc *time.Location) (*models.ActivityCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := &models.ActivityCounts{
		Created: map[string]int64{},
		Updated: map[string]int64{},
		Deleted: map[string]int64{},
	}
	for _, c := range m.cards {
		if !c.CreatedAt.Before(since) {
			counts.Created[unit.BucketKey(c.CreatedAt.In(loc))]++
		}
		if !c.UpdatedAt.Before(since) && c.UpdatedAt.After(c.CreatedAt) {
			counts.Updated[unit.BucketKey(c.UpdatedAt.In(loc))]++
		}
		if c.DeletedAt != nil && !c.DeletedAt.Before(since) {
			counts.Deleted[unit.BucketKey(c.DeletedAt.In(loc))]++
		}
	}
	return counts, nil
}

func copyCard(c *models.Card) *models.Card {
	cp := *c
	if c.DeletedAt != nil {
		at := *c.DeletedAt
		cp.DeletedAt = &at
	}
	return &cp
}
