package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/avvvet/idcard-services/internal/cardsvc/models"
	"github.com/avvvet/idcard-services/internal/comm"
	errs "github.com/avvvet/idcard-services/internal/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Distribution fields.
const (
	FieldGender     = "gender"
	FieldReligion   = "religion"
	FieldDepartment = "department"
	FieldAge        = "age"
	FieldLocation   = "location"
)

const (
	genderUnknown = "UNKNOWN"
	unknown       = "Unknown"

	departmentLimit = 5
	locationLimit   = 10

	summaryCacheKey      = "stats:summary"
	distributionCacheKey = "stats:distribution:"
)

var distributionFields = []string{FieldGender, FieldReligion, FieldDepartment, FieldAge, FieldLocation}

// ageBrackets are lower-bound inclusive; an age falls in the last bracket
// whose lower bound it reaches.
var ageBrackets = []struct {
	min   int
	label string
}{
	{0, "Under 18"},
	{18, "18-24"},
	{25, "25-34"},
	{35, "35-44"},
	{45, "45-54"},
	{55, "55-64"},
	{65, "65-74"},
	{75, "75+"},
}

func ageBracket(age int) (string, int) {
	idx := 0
	for i, b := range ageBrackets {
		if age >= b.min {
			idx = i
		}
	}
	return ageBrackets[idx].label, idx
}

type StatsService struct {
	store    StatsRepository
	cache    Cache
	cacheTTL time.Duration
	loc      *time.Location
	now      func() time.Time
}

// NewStatsService builds a read-only stats service. cache may be nil.
func NewStatsService(store StatsRepository, cache Cache, cacheTTL time.Duration, opts Options) *StatsService {
	opts = opts.withDefaults()
	return &StatsService{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		loc:      opts.Location,
		now:      opts.Now,
	}
}

func (s *StatsService) startOfToday() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

func (s *StatsService) Summary(ctx context.Context) (*models.Summary, error) {
	var out models.Summary
	err := s.cached(ctx, summaryCacheKey, &out, func() error {
		todayStart := s.startOfToday()

		total, err := s.store.CountCards(ctx, time.Time{}, time.Time{})
		if err != nil {
			return err
		}
		today, err := s.store.CountCards(ctx, todayStart, todayStart.AddDate(0, 0, 1))
		if err != nil {
			return err
		}
		out = models.Summary{TotalCards: total, TodayCards: today}
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return &out, nil
}

// Distribution returns grouped counts of live cards for one field.
func (s *StatsService) Distribution(ctx context.Context, field string) ([]models.GroupCount, error) {
	if !validDistributionField(field) {
		return nil, errs.Validation("field", "must be one of: gender, religion, department, age, location")
	}

	var out []models.GroupCount
	err := s.cached(ctx, distributionCacheKey+field, &out, func() error {
		var err error
		out, err = s.distribution(ctx, field)
		return err
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func validDistributionField(field string) bool {
	for _, f := range distributionFields {
		if f == field {
			return true
		}
	}
	return false
}

func (s *StatsService) distribution(ctx context.Context, field string) ([]models.GroupCount, error) {
	switch field {
	case FieldAge:
		return s.ageDistribution(ctx)
	case FieldLocation:
		raw, err := s.store.GroupCounts(ctx, "province", "city")
		if err != nil {
			return nil, err
		}
		groups := mergeGroups(raw, func(values []string) models.GroupCount {
			province, city := orUnknown(values[0], unknown), orUnknown(values[1], unknown)
			return models.GroupCount{Key: province + "/" + city, Province: province, City: city}
		})
		return topN(sortByCountDesc(groups), locationLimit), nil
	}

	storeField, sentinel := field, unknown
	switch field {
	case FieldGender:
		sentinel = genderUnknown
	case FieldDepartment:
		storeField = "profession"
	}

	raw, err := s.store.GroupCounts(ctx, storeField)
	if err != nil {
		return nil, err
	}
	groups := mergeGroups(raw, func(values []string) models.GroupCount {
		return models.GroupCount{Key: orUnknown(values[0], sentinel)}
	})

	switch field {
	case FieldGender:
		sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
		return groups, nil
	case FieldDepartment:
		return topN(sortByCountDesc(groups), departmentLimit), nil
	default:
		return sortByCountDesc(groups), nil
	}
}

func (s *StatsService) ageDistribution(ctx context.Context) ([]models.GroupCount, error) {
	ages, err := s.store.AgeCounts(ctx, s.now())
	if err != nil {
		return nil, err
	}

	counts := make([]int64, len(ageBrackets))
	for _, a := range ages {
		_, idx := ageBracket(a.Age)
		counts[idx] += a.Count
	}

	groups := make([]models.GroupCount, 0, len(ageBrackets))
	for i, n := range counts {
		if n > 0 {
			groups = append(groups, models.GroupCount{Key: ageBrackets[i].label, Count: n})
		}
	}
	return groups, nil
}

func orUnknown(v, sentinel string) string {
	if v == "" {
		return sentinel
	}
	return v
}

// mergeGroups keys raw store groups and folds together groups that map to the
// same key, e.g. a missing field and an empty one.
func mergeGroups(raw []models.RawGroup, key func([]string) models.GroupCount) []models.GroupCount {
	index := map[string]int{}
	var groups []models.GroupCount
	for _, r := range raw {
		g := key(r.Values)
		if i, ok := index[g.Key]; ok {
			groups[i].Count += r.Count
			continue
		}
		g.Count = r.Count
		index[g.Key] = len(groups)
		groups = append(groups, g)
	}
	if groups == nil {
		groups = []models.GroupCount{}
	}
	return groups
}

func sortByCountDesc(groups []models.GroupCount) []models.GroupCount {
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Key < groups[j].Key
	})
	return groups
}

func topN(groups []models.GroupCount, n int) []models.GroupCount {
	if len(groups) > n {
		return groups[:n]
	}
	return groups
}

// ParseUnit accepts days, weeks or months; empty means days.
func ParseUnit(unit string) (models.BucketUnit, error) {
	switch models.BucketUnit(unit) {
	case "", models.UnitDays:
		return models.UnitDays, nil
	case models.UnitWeeks:
		return models.UnitWeeks, nil
	case models.UnitMonths:
		return models.UnitMonths, nil
	}
	return "", errs.Validation("unit", "must be one of: days, weeks, months")
}

// ParseRange parses a positive integer range.
func ParseRange(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errs.Validation("range", "must be a positive integer")
	}
	return n, nil
}

// Window returns the calendar-aligned start of an activity series and its end.
// days covers today and the rng-1 days before it.
func (s *StatsService) Window(rng int, unit models.BucketUnit) (time.Time, time.Time) {
	today := s.startOfToday()
	switch unit {
	case models.UnitWeeks:
		return today.AddDate(0, 0, -7*rng), s.now().In(s.loc)
	case models.UnitMonths:
		return today.AddDate(0, -rng, 0), s.now().In(s.loc)
	default:
		return today.AddDate(0, 0, -(rng - 1)), s.now().In(s.loc)
	}
}

// ActivitySeries returns the non-empty buckets of created, updated and deleted
// counts in the window, ordered by key.
func (s *StatsService) ActivitySeries(ctx context.Context, rng int, unit models.BucketUnit) ([]models.ActivityBucket, error) {
	if rng <= 0 {
		return nil, errs.Validation("range", "must be a positive integer")
	}
	unit, err := ParseUnit(string(unit))
	if err != nil {
		return nil, err
	}

	since, _ := s.Window(rng, unit)
	counts, err := s.store.ActivityCounts(ctx, since, unit, s.loc)
	if err != nil {
		return nil, unavailable(err)
	}
	return mergeActivity(counts), nil
}

func mergeActivity(c *models.ActivityCounts) []models.ActivityBucket {
	byKey := map[string]*models.ActivityBucket{}
	get := func(key string) *models.ActivityBucket {
		b, ok := byKey[key]
		if !ok {
			b = &models.ActivityBucket{Key: key}
			byKey[key] = b
		}
		return b
	}
	for k, n := range c.Created {
		get(k).Created += n
	}
	for k, n := range c.Updated {
		get(k).Updated += n
	}
	for k, n := range c.Deleted {
		get(k).Deleted += n
	}

	buckets := make([]models.ActivityBucket, 0, len(byKey))
	for _, b := range byKey {
		if b.Created == 0 && b.Updated == 0 && b.Deleted == 0 {
			continue
		}
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Key < buckets[j].Key })
	return buckets
}

// FillSeries expands a sparse series into one bucket per calendar unit from
// since to until, with zero counts for missing buckets.
func FillSeries(buckets []models.ActivityBucket, since, until time.Time, unit models.BucketUnit) []models.ActivityBucket {
	byKey := make(map[string]models.ActivityBucket, len(buckets))
	for _, b := range buckets {
		byKey[b.Key] = b
	}

	var out []models.ActivityBucket
	seen := map[string]bool{}
	add := func(t time.Time) {
		key := unit.BucketKey(t)
		if seen[key] {
			return
		}
		seen[key] = true
		b, ok := byKey[key]
		if !ok {
			b = models.ActivityBucket{Key: key}
		}
		out = append(out, b)
	}

	t := since
	if unit == models.UnitMonths {
		t = time.Date(since.Year(), since.Month(), 1, 0, 0, 0, 0, since.Location())
	}
	for !t.After(until) {
		add(t)
		switch unit {
		case models.UnitWeeks:
			t = t.AddDate(0, 0, 7)
		case models.UnitMonths:
			t = t.AddDate(0, 1, 0)
		default:
			t = t.AddDate(0, 0, 1)
		}
	}
	add(until)
	return out
}

// TodayActivity counts creations, updates and deletions since midnight.
func (s *StatsService) TodayActivity(ctx context.Context) (*models.TodayActivity, error) {
	counts, err := s.store.ActivityCounts(ctx, s.startOfToday(), models.UnitDays, s.loc)
	if err != nil {
		return nil, unavailable(err)
	}

	out := &models.TodayActivity{}
	for _, n := range counts.Created {
		out.Created += n
	}
	for _, n := range counts.Updated {
		out.Updated += n
	}
	for _, n := range counts.Deleted {
		out.Deleted += n
	}
	return out, nil
}

// Dashboard computes every statistic concurrently. Any failure fails the
// whole call.
func (s *StatsService) Dashboard(ctx context.Context, rng int, unit models.BucketUnit) (*models.Dashboard, error) {
	if rng <= 0 {
		return nil, errs.Validation("range", "must be a positive integer")
	}
	unit, err := ParseUnit(string(unit))
	if err != nil {
		return nil, err
	}

	var (
		d       models.Dashboard
		summary *models.Summary
		today   *models.TodayActivity
	)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		summary, err = s.Summary(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.DailyStats, err = s.ActivitySeries(gctx, rng, unit)
		return err
	})
	g.Go(func() (err error) {
		today, err = s.TodayActivity(gctx)
		return err
	})
	dists := map[string]*[]models.GroupCount{
		FieldGender:     &d.GenderStats,
		FieldAge:        &d.AgeStats,
		FieldDepartment: &d.DepartmentStats,
		FieldReligion:   &d.ReligionStats,
		FieldLocation:   &d.LocationStats,
	}
	for field, dst := range dists {
		field, dst := field, dst
		g.Go(func() (err error) {
			*dst, err = s.Distribution(gctx, field)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	d.TotalCards = summary.TotalCards
	d.TodayCards = summary.TodayCards
	d.TodayActivities = *today
	return &d, nil
}

// CardChanged drops cached stats after a mutation.
func (s *StatsService) CardChanged(ctx context.Context, _ comm.CardEvent) {
	if s.cache == nil {
		return
	}
	keys := []string{summaryCacheKey}
	for _, f := range distributionFields {
		keys = append(keys, distributionCacheKey+f)
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		log.Warnf("stats cache invalidation failed: %v", err)
	}
}

// cached serves out from the cache when possible, otherwise runs load and
// stores the result. Cache errors behave like misses.
func (s *StatsService) cached(ctx context.Context, key string, out interface{}, load func() error) error {
	if s.cache == nil || s.cacheTTL <= 0 {
		return load()
	}

	if raw, err := s.cache.Get(ctx, key); err == nil && raw != nil {
		if err := json.Unmarshal(raw, out); err == nil {
			return nil
		}
	}

	if err := load(); err != nil {
		return err
	}
	if raw, err := json.Marshal(out); err == nil {
		_ = s.cache.Set(ctx, key, raw, s.cacheTTL)
	}
	return nil
}

func unavailable(err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}
	return errs.Unavailable("statistics are temporarily unavailable", err)
}
