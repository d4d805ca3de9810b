package models

import (
	"fmt"
	"time"
)

// BucketUnit is the calendar granularity of an activity series.
type BucketUnit string

const (
	UnitDays   BucketUnit = "days"
	UnitWeeks  BucketUnit = "weeks"
	UnitMonths BucketUnit = "months"
)

// BucketKey formats t (already in the reporting location) as the key of the
// bucket containing it.
func (u BucketUnit) BucketKey(t time.Time) string {
	switch u {
	case UnitWeeks:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case UnitMonths:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

type Summary struct {
	TotalCards int64 `json:"totalCards"`
	TodayCards int64 `json:"todayCards"`
}

// GroupCount is one group of a distribution. Province and City are set only
// for the location distribution.
type GroupCount struct {
	Key      string `json:"key"`
	Province string `json:"province,omitempty"`
	City     string `json:"city,omitempty"`
	Count    int64  `json:"count"`
}

// RawGroup is a store-level group keyed by the raw values of the grouped fields.
// Missing fields come back as "".
type RawGroup struct {
	Values []string
	Count  int64
}

type AgeCount struct {
	Age   int
	Count int64
}

type ActivityBucket struct {
	Key     string `json:"key"`
	Created int64  `json:"created"`
	Updated int64  `json:"updated"`
	Deleted int64  `json:"deleted"`
}

// ActivityCounts holds per-bucket counts of each activity kind.
type ActivityCounts struct {
	Created map[string]int64
	Updated map[string]int64
	Deleted map[string]int64
}

type TodayActivity struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
	Deleted int64 `json:"deleted"`
}

// Dashboard bundles every statistic the dashboard page renders.
type Dashboard struct {
	TotalCards      int64            `json:"totalCards"`
	TodayCards      int64            `json:"todayCards"`
	DailyStats      []ActivityBucket `json:"dailyStats"`
	GenderStats     []GroupCount     `json:"genderStats"`
	AgeStats        []GroupCount     `json:"ageStats"`
	DepartmentStats []GroupCount     `json:"departmentStats"`
	ReligionStats   []GroupCount     `json:"religionStats"`
	LocationStats   []GroupCount     `json:"locationStats"`
	TodayActivities TodayActivity    `json:"todayActivities"`
}
