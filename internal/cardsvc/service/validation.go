package service

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/avvvet/idcard-services/internal/cardsvc/store"
	errs "github.com/avvvet/idcard-services/internal/errors"
	"github.com/go-playground/validator/v10"
)

const MinimumAge = 18

var cnicPattern = regexp.MustCompile(`^\d{13}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("cnic", func(fl validator.FieldLevel) bool {
		return cnicPattern.MatchString(store.StripCNIC(fl.Field().String()))
	})
	return v
}

type fieldRule struct {
	field string
	rule  string
}

// cardRules lists every text field of a card with its validator tag, in the
// order errors are reported.
var cardRules = []fieldRule{
	{"name", "required,max=200"},
	{"fathername", "required,max=200"},
	{"cnic", "required,cnic"},
	{"dob", "required"},
	{"address", "required,max=500"},
	{"gender", "required,oneof=male female other"},
	{"religion", "required,max=100"},
	{"bloodGroup", "omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"},
	{"maritalStatus", "required,oneof=single married divorced widowed"},
	{"profession", "omitempty,max=200"},
	{"birthMark", "omitempty,max=200"},
	{"province", "omitempty,max=100"},
	{"city", "omitempty,max=100"},
}

var rulesByField = func() map[string]string {
	m := make(map[string]string, len(cardRules))
	for _, r := range cardRules {
		m[r.field] = r.rule
	}
	return m
}()

func validateField(field, value string) error {
	err := validate.Var(value, rulesByField[field])
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errs.Validation(field, "is invalid")
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return errs.Validation(field, "is required")
	case "oneof":
		return errs.Validation(field, "must be one of: "+strings.Join(strings.Fields(fe.Param()), ", "))
	case "cnic":
		return errs.Validation(field, "must be exactly 13 digits")
	case "max":
		return errs.Validation(field, "must be at most "+fe.Param()+" characters")
	default:
		return errs.Validation(field, "is invalid")
	}
}

var dobLayouts = []string{"2006-01-02", time.RFC3339, "02/01/2006"}

// parseDOB reads a calendar date and returns it as midnight UTC.
func parseDOB(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dobLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, errs.Validation("dob", "must be a date in YYYY-MM-DD format")
}

// checkAdult requires the MinimumAge birthday to fall on or before today's
// date in loc.
func checkAdult(dob, now time.Time, loc *time.Location) error {
	y, m, d := now.In(loc).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	if dob.After(today) {
		return errs.Validation("dob", "cannot be in the future")
	}
	if dob.AddDate(MinimumAge, 0, 0).After(today) {
		return errs.Validation("dob", "card holder must be at least 18 years old")
	}
	return nil
}
