package service

import (
	"context"
	"time"

	"github.com/avvvet/idcard-services/internal/cardsvc/models"
	"github.com/avvvet/idcard-services/internal/comm"
)

// CardRepository is the record store behind the card service.
type CardRepository interface {
	Insert(ctx context.Context, card *models.Card) error
	FindByID(ctx context.Context, id string) (*models.Card, error)
	List(ctx context.Context, search string, skip, limit int64) ([]*models.Card, int64, error)
	Update(ctx context.Context, id string, upd *models.CardUpdate) (*models.Card, error)
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

// StatsRepository is the read-only aggregation surface of the record store.
type StatsRepository interface {
	CountCards(ctx context.Context, from, to time.Time) (int64, error)
	GroupCounts(ctx context.Context, fields ...string) ([]models.RawGroup, error)
	AgeCounts(ctx context.Context, now time.Time) ([]models.AgeCount, error)
	ActivityCounts(ctx context.Context, since time.Time, unit models.BucketUnit, loc *time.Location) (*models.ActivityCounts, error)
}

// CardListener is told about every committed card mutation. Implementations
// must not fail the mutation; they log their own errors.
type CardListener interface {
	CardChanged(ctx context.Context, ev comm.CardEvent)
}

// Cache stores encoded stats results. A miss is (nil, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
