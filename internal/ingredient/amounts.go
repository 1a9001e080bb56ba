// internal/ingredient/amounts.go
package ingredient

import (
	"errors"
	"fmt"
)

// ErrInvalidQuantity is returned when a quantity or price is negative.
var ErrInvalidQuantity = errors.New("invalid quantity")

// Amounts holds a quantity for each of the four ingredients the machine stocks.
// It is used both for recipe requirements and for inventory levels.
type Amounts struct {
	Coffee    int `json:"coffee"`
	Milk      int `json:"milk"`
	Sugar     int `json:"sugar"`
	Chocolate int `json:"chocolate"`
}

// Validate reports the first negative field as ErrInvalidQuantity.
func (a Amounts) Validate() error {
	switch {
	case a.Coffee < 0:
		return fmt.Errorf("%w: coffee must be a non-negative integer", ErrInvalidQuantity)
	case a.Milk < 0:
		return fmt.Errorf("%w: milk must be a non-negative integer", ErrInvalidQuantity)
	case a.Sugar < 0:
		return fmt.Errorf("%w: sugar must be a non-negative integer", ErrInvalidQuantity)
	case a.Chocolate < 0:
		return fmt.Errorf("%w: chocolate must be a non-negative integer", ErrInvalidQuantity)
	}
	return nil
}

// Covers reports whether every quantity in a is at least the one in need.
func (a Amounts) Covers(need Amounts) bool {
	return a.Coffee >= need.Coffee &&
		a.Milk >= need.Milk &&
		a.Sugar >= need.Sugar &&
		a.Chocolate >= need.Chocolate
}

// Add returns the counter-wise sum of a and b.
func (a Amounts) Add(b Amounts) Amounts {
	return Amounts{
		Coffee:    a.Coffee + b.Coffee,
		Milk:      a.Milk + b.Milk,
		Sugar:     a.Sugar + b.Sugar,
		Chocolate: a.Chocolate + b.Chocolate,
	}
}

// Sub returns a less b, counter by counter. Callers check Covers first.
func (a Amounts) Sub(b Amounts) Amounts {
	return Amounts{
		Coffee:    a.Coffee - b.Coffee,
		Milk:      a.Milk - b.Milk,
		Sugar:     a.Sugar - b.Sugar,
		Chocolate: a.Chocolate - b.Chocolate,
	}
}

// Uniform returns Amounts with n of every ingredient.
func Uniform(n int) Amounts {
	return Amounts{Coffee: n, Milk: n, Sugar: n, Chocolate: n}
}

func (a Amounts) String() string {
	return fmt.Sprintf("Coffee: %d\nMilk: %d\nSugar: %d\nChocolate: %d\n", a.Coffee, a.Milk, a.Sugar, a.Chocolate)
}
