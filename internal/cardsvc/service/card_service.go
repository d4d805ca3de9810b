package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/avvvet/idcard-services/internal/cardsvc/auth"
	"github.com/avvvet/idcard-services/internal/cardsvc/models"
	"github.com/avvvet/idcard-services/internal/cardsvc/store"
	"github.com/avvvet/idcard-services/internal/comm"
	errs "github.com/avvvet/idcard-services/internal/errors"
)

const (
	DefaultPageSize = 6
	DefaultMaxPage  = 100
)

type Options struct {
	PageSize    int
	MaxPageSize int
	Location    *time.Location
	Now         func() time.Time
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.MaxPageSize <= 0 {
		o.MaxPageSize = DefaultMaxPage
	}
	if o.MaxPageSize < o.PageSize {
		o.MaxPageSize = o.PageSize
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type CardService struct {
	store     CardRepository
	opts      Options
	listeners []CardListener
}

func NewCardService(store CardRepository, opts Options, listeners ...CardListener) *CardService {
	return &CardService{store: store, opts: opts.withDefaults(), listeners: listeners}
}

func (s *CardService) now() time.Time {
	return s.opts.Now().UTC().Truncate(time.Millisecond)
}

// Create validates the input, normalizes the images and inserts a new card.
func (s *CardService) Create(ctx context.Context, in *models.CardInput) (*models.Card, error) {
	if in == nil {
		return nil, errs.Validation("card", "is required")
	}
	now := s.now()

	fields := map[string]string{
		"name":          strings.TrimSpace(in.Name),
		"fathername":    strings.TrimSpace(in.FatherName),
		"cnic":          strings.TrimSpace(in.CNIC),
		"dob":           strings.TrimSpace(in.DOB),
		"address":       strings.TrimSpace(in.Address),
		"gender":        strings.ToLower(strings.TrimSpace(in.Gender)),
		"religion":      strings.TrimSpace(in.Religion),
		"bloodGroup":    strings.ToUpper(strings.TrimSpace(in.BloodGroup)),
		"maritalStatus": strings.ToLower(strings.TrimSpace(in.MaritalStatus)),
		"profession":    strings.TrimSpace(in.Profession),
		"birthMark":     strings.TrimSpace(in.BirthMark),
		"province":      strings.TrimSpace(in.Province),
		"city":          strings.TrimSpace(in.City),
	}
	for _, r := range cardRules {
		if err := validateField(r.field, fields[r.field]); err != nil {
			return nil, err
		}
	}

	dob, err := parseDOB(fields["dob"])
	if err != nil {
		return nil, err
	}
	if err := checkAdult(dob, now, s.opts.Location); err != nil {
		return nil, err
	}

	photo, err := normalizeImage("photo", in.Photo, in.PhotoUpload)
	if err != nil {
		return nil, err
	}
	if photo == "" {
		return nil, errs.Validation("photo", "is required")
	}
	signature, err := normalizeImage("signature", in.Signature, in.SignatureUpload)
	if err != nil {
		return nil, err
	}

	card := &models.Card{
		Name:          fields["name"],
		FatherName:    fields["fathername"],
		CNIC:          store.StripCNIC(fields["cnic"]),
		DOB:           dob,
		Address:       fields["address"],
		Photo:         photo,
		Signature:     signature,
		Gender:        fields["gender"],
		Religion:      fields["religion"],
		BloodGroup:    fields["bloodGroup"],
		MaritalStatus: fields["maritalStatus"],
		Profession:    fields["profession"],
		BirthMark:     fields["birthMark"],
		Province:      fields["province"],
		City:          fields["city"],
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.Insert(ctx, card); err != nil {
		return nil, translate(err)
	}

	s.notify(ctx, comm.EventCardCreated, card, now)
	return card, nil
}

func (s *CardService) Get(ctx context.Context, id string) (*models.Card, error) {
	card, err := s.store.FindByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, translate(err)
	}
	return card, nil
}

// List returns a page of live cards, newest first. Page and limit below 1
// fall back to the first page and the configured page size.
func (s *CardService) List(ctx context.Context, q models.ListQuery) (*models.CardPage, error) {
	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = s.opts.PageSize
	}
	if limit > s.opts.MaxPageSize {
		limit = s.opts.MaxPageSize
	}

	skip := int64(math.MaxInt64) // past any total
	if int64(page-1) <= math.MaxInt64/int64(limit) {
		skip = int64(page-1) * int64(limit)
	}
	cards, total, err := s.store.List(ctx, q.Search, skip, int64(limit))
	if err != nil {
		return nil, translate(err)
	}

	return &models.CardPage{
		Cards:      cards,
		Pagination: models.NewPagination(page, limit, total),
	}, nil
}

// Update overwrites only the supplied fields. updatedAt is refreshed even when
// nothing else changes.
func (s *CardService) Update(ctx context.Context, id string, patch *models.CardPatch) (*models.Card, error) {
	if patch == nil {
		patch = &models.CardPatch{}
	}
	now := s.now()

	upd, err := s.buildUpdate(patch, now)
	if err != nil {
		return nil, err
	}

	card, err := s.store.Update(ctx, strings.TrimSpace(id), upd)
	if err != nil {
		return nil, translate(err)
	}

	s.notify(ctx, comm.EventCardUpdated, card, now)
	return card, nil
}

func (s *CardService) buildUpdate(p *models.CardPatch, now time.Time) (*models.CardUpdate, error) {
	upd := &models.CardUpdate{UpdatedAt: now}

	text := []struct {
		field string
		in    *string
		out   **string
		fold  func(string) string
	}{
		{"name", p.Name, &upd.Name, nil},
		{"fathername", p.FatherName, &upd.FatherName, nil},
		{"cnic", p.CNIC, &upd.CNIC, store.StripCNIC},
		{"address", p.Address, &upd.Address, nil},
		{"gender", p.Gender, &upd.Gender, strings.ToLower},
		{"religion", p.Religion, &upd.Religion, nil},
		{"bloodGroup", p.BloodGroup, &upd.BloodGroup, strings.ToUpper},
		{"maritalStatus", p.MaritalStatus, &upd.MaritalStatus, strings.ToLower},
		{"profession", p.Profession, &upd.Profession, nil},
		{"birthMark", p.BirthMark, &upd.BirthMark, nil},
		{"province", p.Province, &upd.Province, nil},
		{"city", p.City, &upd.City, nil},
	}
	for _, t := range text {
		if t.in == nil {
			continue
		}
		v := strings.TrimSpace(*t.in)
		if t.fold != nil {
			v = t.fold(v)
		}
		if err := validateField(t.field, v); err != nil {
			return nil, err
		}
		*t.out = &v
	}

	if p.DOB != nil {
		if err := validateField("dob", strings.TrimSpace(*p.DOB)); err != nil {
			return nil, err
		}
		dob, err := parseDOB(*p.DOB)
		if err != nil {
			return nil, err
		}
		if err := checkAdult(dob, now, s.opts.Location); err != nil {
			return nil, err
		}
		upd.DOB = &dob
	}

	if p.Photo != nil || p.PhotoUpload != nil {
		var inline string
		if p.Photo != nil {
			inline = *p.Photo
		}
		photo, err := normalizeImage("photo", inline, p.PhotoUpload)
		if err != nil {
			return nil, err
		}
		if photo == "" {
			return nil, errs.Validation("photo", "is required")
		}
		upd.Photo = &photo
	}

	if p.Signature != nil || p.SignatureUpload != nil {
		var inline string
		if p.Signature != nil {
			inline = *p.Signature
		}
		signature, err := normalizeImage("signature", inline, p.SignatureUpload)
		if err != nil {
			return nil, err
		}
		upd.Signature = &signature
	}

	return upd, nil
}

// Delete soft-deletes a card; it disappears from reads, listings and counts.
func (s *CardService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	card, err := s.store.FindByID(ctx, id)
	if err != nil {
		return translate(err)
	}

	now := s.now()
	if err := s.store.SoftDelete(ctx, id, now); err != nil {
		return translate(err)
	}

	s.notify(ctx, comm.EventCardDeleted, card, now)
	return nil
}

func (s *CardService) notify(ctx context.Context, eventType string, card *models.Card, at time.Time) {
	ev := comm.CardEvent{
		Type:   eventType,
		CardID: card.ID.Hex(),
		CNIC:   card.CNIC,
		At:     at,
	}
	if id, ok := auth.IdentityFromContext(ctx); ok {
		ev.Actor = id.Subject
	}
	for _, l := range s.listeners {
		l.CardChanged(ctx, ev)
	}
}

// translate converts store sentinels into domain errors so driver errors never
// reach callers.
func translate(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errs.NotFound("card not found")
	case errors.Is(err, store.ErrDuplicateCNIC):
		return errs.Conflict("a card with this cnic already exists")
	case errors.Is(err, store.ErrUnavailable):
		return errs.Unavailable("card store is unavailable", err)
	default:
		return errs.Wrap(errs.KindInternal, "card store failure", err)
	}
}
