package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/avvvet/idcard-services/internal/errors"
)

func TestParseDOB(t *testing.T) {
	want := time.Date(1990, 5, 20, 0, 0, 0, 0, time.UTC)

	for _, in := range []string{
		"1990-05-20",
		" 1990-05-20 ",
		"1990-05-20T10:00:00Z",
		"1990-05-20T23:30:00.123+05:00",
		"1990-05-20T00:00:00.000Z",
		"20/05/1990",
	} {
		got, err := parseDOB(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%q parsed as %s", in, got)
	}

	for _, in := range []string{"", "20-05-1990", "1990/05/20", "yesterday"} {
		_, err := parseDOB(in)
		assert.Equal(t, errs.KindValidation, errs.KindOf(err), in)
	}
}
