package table

import "fmt"

// Limits are the static bounds applied to every table and filename
type Limits struct {
	// FilterEntries is the number of filter table rows
	FilterEntries int `env:"FILTER_ENTRIES" envDefault:"256" yaml:"filter_entries"`
	// FiltersPerEntry is the number of destination filters per row
	FiltersPerEntry int `env:"FILTERS_PER_ENTRY" envDefault:"4" yaml:"filters_per_entry"`
	// Destinations is the number of destination table rows
	Destinations int `env:"DESTINATIONS" envDefault:"16" yaml:"destinations"`
	// MaxPathLen bounds Pathname and MoveDir
	MaxPathLen int `env:"MAX_PATH_LEN" envDefault:"48" yaml:"max_path_len"`
	// MaxBasenameLen bounds Basename
	MaxBasenameLen int `env:"MAX_BASENAME_LEN" envDefault:"24" yaml:"max_basename_len"`
	// MaxExtensionLen bounds Extension
	MaxExtensionLen int `env:"MAX_EXTENSION_LEN" envDefault:"8" yaml:"max_extension_len"`
	// MaxFilenameLen bounds a fully assembled filename
	MaxFilenameLen int `env:"MAX_FILENAME_LEN" envDefault:"64" yaml:"max_filename_len"`
	// SequenceDigits is the width of count-based sequence tokens
	SequenceDigits int `env:"SEQUENCE_DIGITS" envDefault:"8" yaml:"sequence_digits"`
	// MaxSequence is the wrap threshold of count-based sequence numbers
	MaxSequence uint32 `env:"MAX_SEQUENCE" envDefault:"99999999" yaml:"max_sequence"`
	// IndexBuckets is the message index bucket count, rounded up to a power of two
	IndexBuckets int `env:"INDEX_BUCKETS" envDefault:"256" yaml:"index_buckets"`
}

// DefaultLimits returns the standard flight limits
func DefaultLimits() Limits {
	return Limits{
		FilterEntries:   256,
		FiltersPerEntry: 4,
		Destinations:    16,
		MaxPathLen:      48,
		MaxBasenameLen:  24,
		MaxExtensionLen: 8,
		MaxFilenameLen:  64,
		SequenceDigits:  8,
		MaxSequence:     99999999,
		IndexBuckets:    256,
	}
}

// Validate checks that the limits are usable
func (l Limits) Validate() error {
	checks := []struct {
		field string
		value int
	}{
		{"FilterEntries", l.FilterEntries},
		{"FiltersPerEntry", l.FiltersPerEntry},
		{"Destinations", l.Destinations},
		{"MaxPathLen", l.MaxPathLen},
		{"MaxBasenameLen", l.MaxBasenameLen},
		{"MaxExtensionLen", l.MaxExtensionLen},
		{"MaxFilenameLen", l.MaxFilenameLen},
		{"SequenceDigits", l.SequenceDigits},
		{"IndexBuckets", l.IndexBuckets},
	}
	for _, c := range checks {
		if c.value <= 0 {
			return InvalidLimitError{Field: c.field, Reason: "must be greater than zero"}
		}
	}
	if l.SequenceDigits > 10 {
		return InvalidLimitError{Field: "SequenceDigits", Reason: "must be at most 10"}
	}
	if l.MaxSequence == 0 {
		return InvalidLimitError{Field: "MaxSequence", Reason: "must be greater than zero"}
	}
	if l.SequenceDigits < 10 && uint64(l.MaxSequence) > maxToken(l.SequenceDigits) {
		return InvalidLimitError{Field: "MaxSequence", Reason: fmt.Sprintf("does not fit in %d digits", l.SequenceDigits)}
	}
	if l.Destinations > 0xFFFF {
		return InvalidLimitError{Field: "Destinations", Reason: "must fit in 16 bits"}
	}
	return nil
}

// maxToken is the largest value a token of the given width can hold
func maxToken(digits int) uint64 {
	v := uint64(1)
	for i := 0; i < digits; i++ {
		v *= 10
	}
	return v - 1
}

// InvalidLimitError indicates an unusable limit
type InvalidLimitError struct {
	Field  string
	Reason string
}

func (e InvalidLimitError) Error() string {
	return "invalid limit: " + e.Field + ": " + e.Reason
}
