package model

import (
	"errors"
	"fmt"
)

// ErrInvalidCapacity is returned when a capacity's usage is negative or exceeds its total.
var ErrInvalidCapacity = errors.New("invalid capacity")

// Capacity is a total amount of some resource together with the part already in use.
type Capacity struct {
	Total float64 `json:"total"`
	Usage float64 `json:"usage"`
}

// Free returns the unused part of the capacity.
func (c Capacity) Free() float64 {
	return c.Total - c.Usage
}

// Available returns the free capacity when free is true and the total capacity otherwise.
// The free view is used when only pending VMs are being placed; the total view when
// running VMs may be moved as well and their current usage is re-accounted.
func (c Capacity) Available(free bool) float64 {
	if free {
		return c.Free()
	}
	return c.Total
}

// Validate checks 0 <= usage <= total.
func (c Capacity) Validate() error {
	if c.Total < 0 || c.Usage < 0 || c.Usage > c.Total {
		return fmt.Errorf("%w: usage %v, total %v", ErrInvalidCapacity, c.Usage, c.Total)
	}
	return nil
}

// Utilization returns usage / total, or 0 for a zero capacity.
func (c Capacity) Utilization() float64 {
	if c.Total <= 0 {
		return 0
	}
	return c.Usage / c.Total
}
