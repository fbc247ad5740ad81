package mongobee

import "context"

// Provider supplies the ordered sequence of change units for a run.
//
// The Provider owns ordering: the engine applies units exactly in the order
// returned and never re-sorts, since change units are not assumed
// commutative. Implementations must return a stable, deterministic order.
type Provider interface {
	FetchChangeUnits(ctx context.Context) ([]ChangeUnit, error)
}

// SliceProvider is a Provider over a fixed, explicitly constructed slice of
// change units. The slice order is the execution order.
type SliceProvider []ChangeUnit

// FetchChangeUnits returns a copy of the underlying slice.
func (p SliceProvider) FetchChangeUnits(ctx context.Context) ([]ChangeUnit, error) {
	units := make([]ChangeUnit, len(p))
	copy(units, p)
	return units, nil
}
