package store

import (
	"context"
	"math"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/avvvet/idcard-services/internal/cardsvc/models"
)

// repository is the behaviour both card stores share.
type repository interface {
	Insert(ctx context.Context, card *models.Card) error
	FindByID(ctx context.Context, id string) (*models.Card, error)
	List(ctx context.Context, search string, skip, limit int64) ([]*models.Card, int64, error)
	Update(ctx context.Context, id string, upd *models.CardUpdate) (*models.Card, error)
	SoftDelete(ctx context.Context, id string, at time.Time) error
	CountCards(ctx context.Context, from, to time.Time) (int64, error)
	GroupCounts(ctx context.Context, fields ...string) ([]models.RawGroup, error)
	AgeCounts(ctx context.Context, now time.Time) ([]models.AgeCount, error)
	ActivityCounts(ctx context.Context, since time.Time, unit models.BucketUnit, loc *time.Location) (*models.ActivityCounts, error)
}

// StoreContractSuite runs against any repository; newStore must return an
// empty store.
type StoreContractSuite struct {
	suite.Suite
	newStore func() repository
	store    repository
	ctx      context.Context
	now      time.Time
}

func (s *StoreContractSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore()
	s.now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
}

func (s *StoreContractSuite) card(cnic string, created time.Time) *models.Card {
	return &models.Card{
		Name:          "Ali Khan",
		FatherName:    "Ahmed Khan",
		CNIC:          cnic,
		DOB:           time.Date(1990, 5, 20, 0, 0, 0, 0, time.UTC),
		Address:       "House 1, Lahore",
		Photo:         "data:image/png;base64,AAAA",
		Gender:        "male",
		Religion:      "Islam",
		MaritalStatus: "single",
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func (s *StoreContractSuite) insert(cnic string, created time.Time) *models.Card {
	c := s.card(cnic, created)
	s.Require().NoError(s.store.Insert(s.ctx, c))
	s.Require().False(c.ID.IsZero())
	return c
}

func (s *StoreContractSuite) TestInsertAndFind() {
	c := s.insert("3520212345671", s.now)

	got, err := s.store.FindByID(s.ctx, c.ID.Hex())
	s.Require().NoError(err)
	s.Equal(c.CNIC, got.CNIC)
	s.Equal(c.DOB, got.DOB.UTC())
	s.True(c.CreatedAt.Equal(got.CreatedAt))

	_, err = s.store.FindByID(s.ctx, "zzz")
	s.ErrorIs(err, ErrNotFound)
	_, err = s.store.FindByID(s.ctx, "64b7f0c2a1b2c3d4e5f60718")
	s.ErrorIs(err, ErrNotFound)
}

func (s *StoreContractSuite) TestUniqueLiveCNIC() {
	first := s.insert("3520212345671", s.now)

	err := s.store.Insert(s.ctx, s.card("3520212345671", s.now))
	s.ErrorIs(err, ErrDuplicateCNIC)

	s.Require().NoError(s.store.SoftDelete(s.ctx, first.ID.Hex(), s.now))
	s.ErrorIs(s.store.SoftDelete(s.ctx, first.ID.Hex(), s.now), ErrNotFound)

	s.insert("3520212345671", s.now)
}

func (s *StoreContractSuite) TestListOrderSearchAndPaging() {
	a := s.insert("3520212345671", s.now.Add(-2*time.Hour))
	b := s.insert("3520212345672", s.now.Add(-time.Hour))
	c := s.card("4210112345673", s.now)
	c.Name = "Sara Malik"
	s.Require().NoError(s.store.Insert(s.ctx, c))

	cards, total, err := s.store.List(s.ctx, "", 0, 10)
	s.Require().NoError(err)
	s.Equal(int64(3), total)
	s.Require().Len(cards, 3)
	s.Equal(c.ID, cards[0].ID)
	s.Equal(b.ID, cards[1].ID)
	s.Equal(a.ID, cards[2].ID)

	cards, total, err = s.store.List(s.ctx, "", 2, 2)
	s.Require().NoError(err)
	s.Equal(int64(3), total)
	s.Require().Len(cards, 1)
	s.Equal(a.ID, cards[0].ID)

	cards, total, err = s.store.List(s.ctx, "SARA", 0, 10)
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Equal(c.ID, cards[0].ID)

	_, total, err = s.store.List(s.ctx, "35202-123", 0, 10)
	s.Require().NoError(err)
	s.Equal(int64(2), total)

	// regex metacharacters are literal
	_, total, err = s.store.List(s.ctx, ".*", 0, 10)
	s.Require().NoError(err)
	s.Equal(int64(0), total)

	for _, skip := range []int64{math.MaxInt64, -6} {
		cards, total, err = s.store.List(s.ctx, "", skip, 10)
		s.Require().NoError(err)
		s.Empty(cards)
		s.Equal(int64(3), total)
	}
}

func (s *StoreContractSuite) TestUpdate() {
	a := s.insert("3520212345671", s.now)
	b := s.insert("3520212345672", s.now)

	name := "Ali Raza"
	later := s.now.Add(time.Minute)
	got, err := s.store.Update(s.ctx, a.ID.Hex(), &models.CardUpdate{Name: &name, UpdatedAt: later})
	s.Require().NoError(err)
	s.Equal("Ali Raza", got.Name)
	s.Equal("Ahmed Khan", got.FatherName)
	s.True(later.Equal(got.UpdatedAt))

	taken := b.CNIC
	_, err = s.store.Update(s.ctx, a.ID.Hex(), &models.CardUpdate{CNIC: &taken, UpdatedAt: later})
	s.ErrorIs(err, ErrDuplicateCNIC)

	unchanged, err := s.store.FindByID(s.ctx, a.ID.Hex())
	s.Require().NoError(err)
	s.Equal("3520212345671", unchanged.CNIC)

	_, err = s.store.Update(s.ctx, "64b7f0c2a1b2c3d4e5f60718", &models.CardUpdate{UpdatedAt: later})
	s.ErrorIs(err, ErrNotFound)
}

func (s *StoreContractSuite) TestStatistics() {
	s.insert("1000000000001", s.now)
	old := s.insert("1000000000002", s.now.AddDate(0, 0, -3))
	gone := s.insert("1000000000003", s.now)
	s.Require().NoError(s.store.SoftDelete(s.ctx, gone.ID.Hex(), s.now))

	female := s.card("1000000000004", s.now)
	female.Gender = "female"
	female.Profession = "Nurse"
	female.DOB = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.Insert(s.ctx, female))

	s.Run("counts live cards in a range", func() {
		total, err := s.store.CountCards(s.ctx, time.Time{}, time.Time{})
		s.Require().NoError(err)
		s.Equal(int64(3), total)

		today := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
		n, err := s.store.CountCards(s.ctx, today, today.AddDate(0, 0, 1))
		s.Require().NoError(err)
		s.Equal(int64(2), n)
	})

	s.Run("groups by field with missing values as empty", func() {
		groups, err := s.store.GroupCounts(s.ctx, "gender")
		s.Require().NoError(err)
		s.ElementsMatch([]models.RawGroup{
			{Values: []string{"male"}, Count: 2},
			{Values: []string{"female"}, Count: 1},
		}, groups)

		groups, err = s.store.GroupCounts(s.ctx, "profession")
		s.Require().NoError(err)
		s.ElementsMatch([]models.RawGroup{
			{Values: []string{""}, Count: 2},
			{Values: []string{"Nurse"}, Count: 1},
		}, groups)
	})

	s.Run("ages in whole years", func() {
		ages, err := s.store.AgeCounts(s.ctx, s.now)
		s.Require().NoError(err)
		s.ElementsMatch([]models.AgeCount{{Age: 35, Count: 2}, {Age: 25, Count: 1}}, ages)
	})

	s.Run("activity buckets", func() {
		updatedAt := s.now.Add(time.Hour)
		_, err := s.store.Update(s.ctx, old.ID.Hex(), &models.CardUpdate{UpdatedAt: updatedAt})
		s.Require().NoError(err)

		since := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
		counts, err := s.store.ActivityCounts(s.ctx, since, models.UnitDays, time.UTC)
		s.Require().NoError(err)
		s.Equal(map[string]int64{"2025-06-12": 1, "2025-06-15": 3}, counts.Created)
		s.Equal(map[string]int64{"2025-06-15": 1}, counts.Updated)
		s.Equal(map[string]int64{"2025-06-15": 1}, counts.Deleted)

		counts, err = s.store.ActivityCounts(s.ctx, since, models.UnitMonths, time.UTC)
		s.Require().NoError(err)
		s.Equal(map[string]int64{"2025-06": 4}, counts.Created)
	})

	s.Run("buckets follow the reporting location", func() {
		// 23:30 UTC on the 14th is already the 15th at UTC+9
		s.insert("1000000000009", time.Date(2025, 6, 14, 23, 30, 0, 0, time.UTC))

		tokyo := time.FixedZone("JST", 9*3600)
		since := time.Date(2025, 6, 14, 0, 0, 0, 0, tokyo)
		counts, err := s.store.ActivityCounts(s.ctx, since, models.UnitDays, tokyo)
		s.Require().NoError(err)
		s.Equal(int64(4), counts.Created["2025-06-15"])
		s.Zero(counts.Created["2025-06-14"])
	})
}
