package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMoney_ToDecimal(t *testing.T) {
	m := NewMoney(1_050, "usd") // 10.50 USD
	assert.Equal(t, "10.5", m.ToDecimal().String())
	assert.Equal(t, "USD", m.Currency)
}

func TestMoney_ToDecimalZeroExponent(t *testing.T) {
	m := NewMoney(1_000_000, "KRW")
	assert.Equal(t, "1000000", m.ToDecimal().String())
	assert.Equal(t, "1000000 KRW", m.String())
}
