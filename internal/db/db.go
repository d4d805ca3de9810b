package db

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const maxRetryDelay = 30 * time.Second

// Mongo is the process-wide database handle. It is created once at startup
// and closed on shutdown.
type Mongo struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// ConnectWithRetry connects and pings the database named in the URI path,
// retrying with exponential backoff up to attempts times.
func ConnectWithRetry(ctx context.Context, mongoURI string, attempts int, delay time.Duration) (*Mongo, error) {
	uri, err := url.Parse(mongoURI)
	if err != nil {
		return nil, fmt.Errorf("parse mongodb uri: %w", err)
	}

	dbName := strings.TrimPrefix(uri.Path, "/")
	if dbName == "" {
		dbName = "identitycards"
	}

	var client *mongo.Client
	err = withRetry(ctx, "mongodb", attempts, delay, func() error {
		c, err := connect(ctx, mongoURI)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infof("connected to mongodb database %s", dbName)
	return &Mongo{Client: client, DB: client.Database(dbName)}, nil
}

// newBackOff doubles from delay up to maxRetryDelay without jitter.
func newBackOff(delay time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = delay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxRetryDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// withRetry runs fn up to attempts times with exponential backoff. A cancelled
// ctx stops it with ctx.Err().
func withRetry(ctx context.Context, name string, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	tries := 0
	op := func() error {
		tries++
		err := fn()
		if err != nil {
			log.Errorf("%s connection attempt %d/%d failed: %v", name, tries, attempts, err)
		}
		return err
	}
	notify := func(_ error, next time.Duration) {
		log.Infof("retrying %s connection in %s", name, next)
	}

	b := backoff.WithMaxRetries(backoff.WithContext(newBackOff(delay), ctx), uint64(attempts-1))
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("all %d %s connection attempts failed: %w", attempts, name, err)
	}
	return nil
}

func connect(ctx context.Context, mongoURI string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

// EnsureCardIndexes creates the cnic uniqueness index over live cards and the
// createdAt index the listing sorts on.
func EnsureCardIndexes(ctx context.Context, db *mongo.Database, collectionName string) error {
	collection := db.Collection(collectionName)

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "cnic", Value: 1}},
			Options: options.Index().
				SetName("uniq_live_cnic").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"deleted": false}),
		},
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("created_desc"),
		},
		{
			Keys:    bson.D{{Key: "updatedAt", Value: -1}},
			Options: options.Index().SetName("updated_desc"),
		},
		{
			Keys:    bson.D{{Key: "deletedAt", Value: -1}},
			Options: options.Index().SetName("deleted_desc").SetSparse(true),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create %s indexes: %w", collectionName, err)
	}
	return nil
}

// Close waits for in-use connections to be returned and disconnects. Operations
// started after Close fail with mongo.ErrClientDisconnected.
func (m *Mongo) Close(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return nil
	}
	return m.Client.Disconnect(ctx)
}
