package manualdelivery

import (
	"fmt"

	"github.com/meridian-erp/meridian-erp/internal/masterdata"
)

// ValidateQuantity checks a requested quantity against a line's remaining
// balance at the line unit's precision. Requests equal to the balance within
// the precision step pass; anything above fails, as does anything below zero.
func ValidateQuantity(line RequestLine, quantity float64) error {
	if masterdata.CompareQty(quantity, 0, line.UomRounding) < 0 {
		return fmt.Errorf("%w: line %d requests %v", ErrNegativeQuantity, line.OrderLineID, quantity)
	}
	if masterdata.CompareQty(quantity, line.Remaining(), line.UomRounding) > 0 {
		return fmt.Errorf("%w: line %d requests %v of %v remaining",
			ErrQuantityExceeded, line.OrderLineID, quantity, line.Remaining())
	}
	return nil
}

// ValidateLines checks every line of a request.
func ValidateLines(lines []RequestLine) error {
	for _, l := range lines {
		if err := ValidateQuantity(l, l.Quantity); err != nil {
			return err
		}
	}
	return nil
}
