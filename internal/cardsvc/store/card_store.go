package store

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/avvvet/idcard-services/internal/cardsvc/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CardsCollection = "cards"

type CardStore struct {
	coll *mongo.Collection
}

func NewCardStore(db *mongo.Database) *CardStore {
	return &CardStore{coll: db.Collection(CardsCollection)}
}

func liveFilter() bson.M {
	return bson.M{"deleted": false}
}

func (s *CardStore) Insert(ctx context.Context, card *models.Card) error {
	card.ID = primitive.NewObjectID()
	card.Deleted = false

	if _, err := s.coll.InsertOne(ctx, card); err != nil {
		card.ID = primitive.NilObjectID
		return classify("insert card", err)
	}
	return nil
}

func (s *CardStore) FindByID(ctx context.Context, id string) (*models.Card, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	filter := liveFilter()
	filter["_id"] = oid

	var card models.Card
	if err := s.coll.FindOne(ctx, filter).Decode(&card); err != nil {
		return nil, classify("find card", err)
	}
	return &card, nil
}

// List returns one page of live cards, newest first, and the total number of
// cards matching the search.
func (s *CardStore) List(ctx context.Context, search string, skip, limit int64) ([]*models.Card, int64, error) {
	filter := searchFilter(search)

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, classify("count cards", err)
	}
	if skip < 0 || skip >= total {
		return []*models.Card{}, total, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(skip).
		SetLimit(limit)

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, classify("list cards", err)
	}
	defer cursor.Close(ctx)

	cards := make([]*models.Card, 0, limit)
	if err := cursor.All(ctx, &cards); err != nil {
		return nil, 0, classify("decode cards", err)
	}
	return cards, total, nil
}

func searchFilter(search string) bson.M {
	filter := liveFilter()
	search = strings.TrimSpace(search)
	if search == "" {
		return filter
	}

	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
	or := bson.A{
		bson.M{"name": pattern},
		bson.M{"fathername": pattern},
		bson.M{"address": pattern},
		bson.M{"religion": pattern},
	}
	if digits := StripCNIC(search); digits != "" && IsDigits(digits) {
		or = append(or, bson.M{"cnic": primitive.Regex{Pattern: "^" + digits}})
	}
	filter["$or"] = or
	return filter
}

// Update applies the non-nil fields of upd to a live card and returns the
// updated document.
func (s *CardStore) Update(ctx context.Context, id string, upd *models.CardUpdate) (*models.Card, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	filter := liveFilter()
	filter["_id"] = oid

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var card models.Card
	err = s.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": updateSet(upd)}, opts).Decode(&card)
	if err != nil {
		return nil, classify("update card", err)
	}
	return &card, nil
}

func updateSet(upd *models.CardUpdate) bson.M {
	set := bson.M{"updatedAt": upd.UpdatedAt}
	str := map[string]*string{
		"name":          upd.Name,
		"fathername":    upd.FatherName,
		"cnic":          upd.CNIC,
		"address":       upd.Address,
		"gender":        upd.Gender,
		"religion":      upd.Religion,
		"bloodGroup":    upd.BloodGroup,
		"maritalStatus": upd.MaritalStatus,
		"profession":    upd.Profession,
		"birthMark":     upd.BirthMark,
		"province":      upd.Province,
		"city":          upd.City,
		"photo":         upd.Photo,
		"signature":     upd.Signature,
	}
	for field, v := range str {
		if v != nil {
			set[field] = *v
		}
	}
	if upd.DOB != nil {
		set["dob"] = *upd.DOB
	}
	return set
}

// SoftDelete marks a live card deleted. The cnic unique index only covers live
// cards, so the number becomes available again.
func (s *CardStore) SoftDelete(ctx context.Context, id string, at time.Time) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	filter := liveFilter()
	filter["_id"] = oid

	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"deleted": true, "deletedAt": at}})
	if err != nil {
		return classify("delete card", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// StripCNIC removes the separators users type into a cnic.
func StripCNIC(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', ' ', '.', '/':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

func IsDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
