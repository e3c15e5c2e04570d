package domain

import "fmt"

// YearSpec is an inclusive year range. Step selects every n-th year; zero
// means every year.
type YearSpec struct {
	Start int
	End   int
	Step  int
}

// YearRange is a strictly ascending, duplicate-free list of years.
type YearRange []int

// Contains reports whether year is part of the range.
func (r YearRange) Contains(year int) bool {
	for _, y := range r {
		if y == year {
			return true
		}
	}
	return false
}

func resolveYears(spec YearSpec) (YearRange, error) {
	step := spec.Step
	if step == 0 {
		step = 1
	}
	switch {
	case spec.Start <= 0 || spec.End <= 0:
		return nil, fmt.Errorf("%w: year range %d-%d must use positive years", ErrConfiguration, spec.Start, spec.End)
	case spec.Start > spec.End:
		return nil, fmt.Errorf("%w: year range %d-%d is descending", ErrConfiguration, spec.Start, spec.End)
	case step < 0:
		return nil, fmt.Errorf("%w: year step %d must be positive", ErrConfiguration, spec.Step)
	}

	years := make(YearRange, 0, (spec.End-spec.Start)/step+1)
	for y := spec.Start; ; y += step {
		years = append(years, y)
		// Compare before adding so a huge step cannot overflow past End.
		if y > spec.End-step {
			break
		}
	}
	return years, nil
}

// Resolve validates the operator's region and year inputs and returns the
// clip region plus the ordered years to process. It performs no remote calls.
// Every failure wraps ErrConfiguration.
func Resolve(src RegionSource, spec YearSpec) (Region, YearRange, error) {
	region, err := resolveRegion(src)
	if err != nil {
		return Region{}, nil, err
	}
	years, err := resolveYears(spec)
	if err != nil {
		return Region{}, nil, err
	}
	return region, years, nil
}
