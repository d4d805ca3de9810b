package store

import (
	"context"
	"fmt"
	"time"

	"github.com/avvvet/idcard-services/internal/cardsvc/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const msPerYear = 365.25 * 24 * 60 * 60 * 1000

// CountCards counts live cards, optionally restricted to createdAt in [from, to).
func (s *CardStore) CountCards(ctx context.Context, from, to time.Time) (int64, error) {
	filter := liveFilter()
	created := bson.M{}
	if !from.IsZero() {
		created["$gte"] = from
	}
	if !to.IsZero() {
		created["$lt"] = to
	}
	if len(created) > 0 {
		filter["createdAt"] = created
	}

	n, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, classify("count cards", err)
	}
	return n, nil
}

// GroupCounts groups live cards by the given fields. Missing or null values
// are reported as "".
func (s *CardStore) GroupCounts(ctx context.Context, fields ...string) ([]models.RawGroup, error) {
	id := bson.D{}
	for _, f := range fields {
		id = append(id, bson.E{Key: f, Value: bson.M{"$ifNull": bson.A{"$" + f, ""}}})
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: liveFilter()}},
		{{Key: "$group", Value: bson.M{"_id": id, "count": bson.M{"$sum": 1}}}},
	}

	var rows []struct {
		ID    bson.M `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := s.aggregate(ctx, "group cards", pipeline, &rows); err != nil {
		return nil, err
	}

	groups := make([]models.RawGroup, 0, len(rows))
	for _, row := range rows {
		values := make([]string, len(fields))
		for i, f := range fields {
			if v, ok := row.ID[f].(string); ok {
				values[i] = v
			} else if row.ID[f] != nil {
				values[i] = fmt.Sprint(row.ID[f])
			}
		}
		groups = append(groups, models.RawGroup{Values: values, Count: row.Count})
	}
	return groups, nil
}

// AgeCounts groups live cards by whole years of age at now, where a year is
// 365.25 days.
func (s *CardStore) AgeCounts(ctx context.Context, now time.Time) ([]models.AgeCount, error) {
	match := liveFilter()
	match["dob"] = bson.M{"$type": "date"}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$project", Value: bson.M{
			"age": bson.M{"$floor": bson.M{"$divide": bson.A{
				bson.M{"$subtract": bson.A{now, "$dob"}},
				msPerYear,
			}}},
		}}},
		{{Key: "$group", Value: bson.M{"_id": "$age", "count": bson.M{"$sum": 1}}}},
	}

	var rows []struct {
		Age   float64 `bson:"_id"`
		Count int64   `bson:"count"`
	}
	if err := s.aggregate(ctx, "group ages", pipeline, &rows); err != nil {
		return nil, err
	}

	ages := make([]models.AgeCount, 0, len(rows))
	for _, row := range rows {
		ages = append(ages, models.AgeCount{Age: int(row.Age), Count: row.Count})
	}
	return ages, nil
}

// ActivityCounts buckets creations, real updates (updatedAt after createdAt)
// and soft deletions at or after since. Deleted cards are included so their
// earlier activity still counts.
func (s *CardStore) ActivityCounts(ctx context.Context, since time.Time, unit models.BucketUnit, loc *time.Location) (*models.ActivityCounts, error) {
	format := dateFormat(unit)
	bucket := func(field string) bson.M {
		return bson.M{"$group": bson.M{
			"_id": bson.M{"$dateToString": bson.M{
				"format":   format,
				"date":     "$" + field,
				"timezone": mongoTimezone(loc, since),
			}},
			"count": bson.M{"$sum": 1},
		}}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"createdAt": bson.M{"$gte": since}},
			bson.M{"updatedAt": bson.M{"$gte": since}},
			bson.M{"deletedAt": bson.M{"$gte": since}},
		}}}},
		{{Key: "$facet", Value: bson.M{
			"created": bson.A{
				bson.M{"$match": bson.M{"createdAt": bson.M{"$gte": since}}},
				bucket("createdAt"),
			},
			"updated": bson.A{
				bson.M{"$match": bson.M{
					"updatedAt": bson.M{"$gte": since},
					"$expr":     bson.M{"$gt": bson.A{"$updatedAt", "$createdAt"}},
				}},
				bucket("updatedAt"),
			},
			"deleted": bson.A{
				bson.M{"$match": bson.M{"deletedAt": bson.M{"$gte": since}}},
				bucket("deletedAt"),
			},
		}}},
	}

	type row struct {
		Key   string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	var facets []struct {
		Created []row `bson:"created"`
		Updated []row `bson:"updated"`
		Deleted []row `bson:"deleted"`
	}
	if err := s.aggregate(ctx, "activity series", pipeline, &facets); err != nil {
		return nil, err
	}

	counts := &models.ActivityCounts{
		Created: map[string]int64{},
		Updated: map[string]int64{},
		Deleted: map[string]int64{},
	}
	if len(facets) == 0 {
		return counts, nil
	}
	for _, r := range facets[0].Created {
		counts.Created[r.Key] = r.Count
	}
	for _, r := range facets[0].Updated {
		counts.Updated[r.Key] = r.Count
	}
	for _, r := range facets[0].Deleted {
		counts.Deleted[r.Key] = r.Count
	}
	return counts, nil
}

// mongoTimezone names loc the way $dateToString accepts it: an Olson name, or
// the offset at t for zones the server cannot resolve by name.
func mongoTimezone(loc *time.Location, t time.Time) string {
	name := loc.String()
	if name == "UTC" {
		return name
	}
	if _, err := time.LoadLocation(name); err == nil && name != "Local" {
		return name
	}
	_, offset := t.In(loc).Zone()
	sign := '+'
	if offset < 0 {
		sign, offset = '-', -offset
	}
	return fmt.Sprintf("%c%02d:%02d", sign, offset/3600, offset%3600/60)
}

func dateFormat(unit models.BucketUnit) string {
	switch unit {
	case models.UnitWeeks:
		return "%G-W%V"
	case models.UnitMonths:
		return "%Y-%m"
	default:
		return "%Y-%m-%d"
	}
}

func (s *CardStore) aggregate(ctx context.Context, op string, pipeline mongo.Pipeline, out interface{}) error {
	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return classify(op, err)
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, out); err != nil {
		return classify(op, err)
	}
	return nil
}
