package ingredient

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestValidate(t *testing.T) {
	require.NoError(t, Amounts{}.Validate())
	require.NoError(t, Uniform(15).Validate())

	for _, a := range []Amounts{
		{Coffee: -1},
		{Milk: -1},
		{Sugar: -1},
		{Chocolate: -1},
	} {
		err := a.Validate()
		assert.True(t, errors.Is(err, ErrInvalidQuantity), "expected invalid quantity for %+v", a)
	}
}

func TestCovers(t *testing.T) {
	stock := Amounts{Coffee: 3, Milk: 1, Sugar: 1, Chocolate: 2}
	assert.True(t, stock.Covers(stock))
	assert.True(t, stock.Covers(Amounts{}))
	assert.False(t, stock.Covers(Amounts{Coffee: 4}))
	assert.False(t, stock.Covers(Amounts{Chocolate: 3}))
}

func TestAddSubRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		gen := rapid.IntRange(0, 1000)
		a := Amounts{gen.Draw(t, "ac"), gen.Draw(t, "am"), gen.Draw(t, "as"), gen.Draw(t, "ach")}
		b := Amounts{gen.Draw(t, "bc"), gen.Draw(t, "bm"), gen.Draw(t, "bs"), gen.Draw(t, "bch")}

		sum := a.Add(b)
		if !sum.Covers(b) || !sum.Covers(a) {
			t.Fatalf("sum %+v does not cover its operands", sum)
		}
		if sum.Sub(b) != a {
			t.Fatalf("(a+b)-b = %+v, want %+v", sum.Sub(b), a)
		}
	})
}
