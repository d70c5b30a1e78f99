package score

import "math"

// IdentitySequenceSuffix names the sequence some dialects create for a table's
// identity column: <table>_seq.
const IdentitySequenceSuffix = "_seq"

// SequenceOptions are the optional parameters of a sequence declaration.
// Nil fields take the defaults implied by the sign of the increment.
type SequenceOptions struct {
	Start     *int64
	Increment *int64
	Min       *int64
	Max       *int64
	Cycle     bool
}

// Sequence is a grain-owned number generator.
type Sequence struct {
	Name      string
	Grain     string
	Start     int64
	Increment int64
	Min       int64
	Max       int64
	Cycle     bool
}

func newSequence(grain, name string, opts SequenceOptions) (*Sequence, error) {
	obj := qualify(grain, name)
	if err := checkIdentifier(obj, name); err != nil {
		return nil, err
	}
	s := &Sequence{Name: name, Grain: grain, Increment: 1, Cycle: opts.Cycle}
	if opts.Increment != nil {
		s.Increment = *opts.Increment
	}
	if s.Increment == 0 {
		return nil, invalid(obj, "increment must not be zero")
	}
	if s.Increment > 0 {
		s.Min, s.Max = 1, math.MaxInt64
	} else {
		s.Min, s.Max = math.MinInt64, -1
	}
	if opts.Min != nil {
		s.Min = *opts.Min
	}
	if opts.Max != nil {
		s.Max = *opts.Max
	}
	if s.Min >= s.Max {
		return nil, invalid(obj, "min %d must be less than max %d", s.Min, s.Max)
	}
	if s.Increment > 0 {
		s.Start = s.Min
	} else {
		s.Start = s.Max
	}
	if opts.Start != nil {
		s.Start = *opts.Start
	}
	if s.Start < s.Min || s.Start > s.Max {
		return nil, invalid(obj, "start %d outside [%d, %d]", s.Start, s.Min, s.Max)
	}
	span := uint64(s.Max - s.Min)
	step := uint64(s.Increment)
	if s.Increment < 0 {
		step = uint64(-s.Increment)
	}
	if step > span {
		return nil, invalid(obj, "increment %d larger than the range [%d, %d]", s.Increment, s.Min, s.Max)
	}
	return s, nil
}
