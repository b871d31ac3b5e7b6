package utils

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/qrpay/types"
)

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress("0x209693Bc6afc0C5328bA36FaF03C514EF312287C"))
	assert.NoError(t, ValidateAddress("0x209693bc6afc0c5328ba36faf03c514ef312287c"))

	for _, bad := range []string{
		"",
		"209693Bc6afc0C5328bA36FaF03C514EF312287C",
		"0x209693Bc6afc0C5328bA36FaF03C514EF312287",
		"0x209693Bc6afc0C5328bA36FaF03C514EF312287CC",
		"0xZ09693Bc6afc0C5328bA36FaF03C514EF312287C",
	} {
		err := ValidateAddress(bad)
		assert.True(t, errors.Is(err, types.ErrInvalidAddress), bad)
	}
}

func TestValidateTransactionHash(t *testing.T) {
	assert.NoError(t, ValidateTransactionHash("0x88df016429689c079f3b2f6ad39fa052532c56795b733da78a91ebe6a713944b"))
	assert.True(t, errors.Is(ValidateTransactionHash("0x1234"), types.ErrInvalidTransaction))
}

func TestParseAmountWithDecimals(t *testing.T) {
	raw, err := ParseAmountWithDecimals(decimal.RequireFromString("87.21"), 6)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(87_210_000), raw)

	_, err = ParseAmountWithDecimals(decimal.RequireFromString("0.0000001"), 6)
	assert.Error(t, err)

	_, err = ParseAmountWithDecimals(decimal.RequireFromString("-1"), 6)
	assert.Error(t, err)
}

func TestFormatAmountFromBigInt(t *testing.T) {
	got := FormatAmountFromBigInt(big.NewInt(123456789), 6)
	assert.Equal(t, "123.456789", got.String())
}

func TestSystemClock(t *testing.T) {
	var c Clock = SystemClock{}
	before := c.Now()
	<-c.After(0)
	assert.False(t, c.Now().Before(before))
}

func TestManualClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	fired := c.After(2 * time.Second)
	later := c.After(5 * time.Second)
	assert.Equal(t, 2, c.Waiters())

	c.Advance(time.Second)
	select {
	case <-fired:
		t.Fatal("fired early")
	default:
	}

	c.Advance(time.Second)
	assert.Equal(t, start.Add(2*time.Second), <-fired)
	assert.Equal(t, 1, c.Waiters())

	c.Advance(10 * time.Second)
	<-later
	assert.Zero(t, c.Waiters())

	select {
	case <-c.After(0):
	default:
		t.Fatal("zero duration should fire immediately")
	}
}

func TestPrivateKeyFromHex(t *testing.T) {
	key, err := PrivateKeyFromHex("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", AddressFromPrivateKey(key).Hex())

	_, err = PrivateKeyFromHex("zz")
	assert.Error(t, err)
}
