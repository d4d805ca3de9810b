package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestMemoryStoreContract(t *testing.T) {
	suite.Run(t, &StoreContractSuite{
		newStore: func() repository { return NewMemoryStore() },
	})
}

func TestStripCNIC(t *testing.T) {
	assert.Equal(t, "3520212345671", StripCNIC(" 35202-1234567-1 "))
	assert.Equal(t, "3520212345671", StripCNIC("35202.1234567/1"))
	assert.Equal(t, "3520212345671", StripCNIC("35202 1234567 1"))

	assert.True(t, IsDigits("0123"))
	assert.False(t, IsDigits(""))
	assert.False(t, IsDigits("12a"))
}

func TestMongoTimezone(t *testing.T) {
	at := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "UTC", mongoTimezone(time.UTC, at))
	assert.Equal(t, "+09:00", mongoTimezone(time.FixedZone("JST", 9*3600), at))
	assert.Equal(t, "-03:30", mongoTimezone(time.FixedZone("NST", -(3*3600+30*60)), at))
}
