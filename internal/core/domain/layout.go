// Package domain defines the core domain models for heapsight.
package domain

import (
	"errors"
	"fmt"
)

// Layout describes where the embedded runtime keeps the fields heapsight
// reads. Offsets are in bytes from the object address. The defaults match a
// 64-bit CPython 2.7 build; other builds need their own values.
type Layout struct {
	// WordSize is the pointer width. Only 8 is supported.
	WordSize uint64 `koanf:"word_size" json:"word_size"`

	// TypeOffset locates ob_type in every object header.
	TypeOffset uint64 `koanf:"type_offset" json:"type_offset"`
	// SizeOffset locates ob_size in variable-length objects.
	SizeOffset uint64 `koanf:"size_offset" json:"size_offset"`
	// TypeNameOffset locates tp_name in a type object.
	TypeNameOffset uint64 `koanf:"type_name_offset" json:"type_name_offset"`

	// DictUsedOffset, DictMaskOffset and DictTableOffset locate ma_used,
	// ma_mask and ma_table in a dict object.
	DictUsedOffset  uint64 `koanf:"dict_used_offset" json:"dict_used_offset"`
	DictMaskOffset  uint64 `koanf:"dict_mask_offset" json:"dict_mask_offset"`
	DictTableOffset uint64 `koanf:"dict_table_offset" json:"dict_table_offset"`
	// DictSlotSize is the size of one {hash, key, value} slot.
	DictSlotSize uint64 `koanf:"dict_slot_size" json:"dict_slot_size"`
	// DictMaxSlots is the sanity ceiling for a slot table.
	DictMaxSlots uint64 `koanf:"dict_max_slots" json:"dict_max_slots"`

	// InstanceDictOffset locates the __dict__ pointer of a class instance.
	InstanceDictOffset uint64 `koanf:"instance_dict_offset" json:"instance_dict_offset"`

	// ValueOffset locates the payload of int, bool and float objects.
	ValueOffset uint64 `koanf:"value_offset" json:"value_offset"`
	// IntWidth is the size of the int payload (4 for LLP64 builds).
	IntWidth uint64 `koanf:"int_width" json:"int_width"`
	// StrDataOffset locates the inline characters of a str object.
	StrDataOffset uint64 `koanf:"str_data_offset" json:"str_data_offset"`
	// UnicodeDataOffset locates the character buffer pointer of a unicode object.
	UnicodeDataOffset uint64 `koanf:"unicode_data_offset" json:"unicode_data_offset"`
	// UnicodeWidth is the size of one code unit (2 for UCS-2, 4 for UCS-4).
	UnicodeWidth uint64 `koanf:"unicode_width" json:"unicode_width"`
	// ListItemsOffset locates the item-array pointer of a list.
	ListItemsOffset uint64 `koanf:"list_items_offset" json:"list_items_offset"`
	// TupleItemsOffset locates the inline item array of a tuple.
	TupleItemsOffset uint64 `koanf:"tuple_items_offset" json:"tuple_items_offset"`
	// LongDigitsOffset locates the digit array of a long object.
	LongDigitsOffset uint64 `koanf:"long_digits_offset" json:"long_digits_offset"`
	// LongDigitBits is the number of value bits per digit (15 or 30).
	LongDigitBits uint64 `koanf:"long_digit_bits" json:"long_digit_bits"`
}

// DefaultLayout returns the 64-bit CPython 2.7 layout.
func DefaultLayout() Layout {
	return Layout{
		WordSize:           8,
		TypeOffset:         8,
		SizeOffset:         16,
		TypeNameOffset:     24,
		DictUsedOffset:     24,
		DictMaskOffset:     32,
		DictTableOffset:    40,
		DictSlotSize:       24,
		DictMaxSlots:       10000,
		InstanceDictOffset: 16,
		ValueOffset:        16,
		IntWidth:           8,
		StrDataOffset:      32,
		UnicodeDataOffset:  24,
		UnicodeWidth:       2,
		ListItemsOffset:    24,
		TupleItemsOffset:   24,
		LongDigitsOffset:   24,
		LongDigitBits:      30,
	}
}

// HeaderWords is the number of words the scan heuristic reads per candidate.
func (l Layout) HeaderWords() uint64 {
	return l.TypeNameOffset/l.WordSize + 1
}

// Validate checks that the layout is usable by the decoders.
func (l Layout) Validate() error {
	var errs []error
	if l.WordSize != 8 {
		errs = append(errs, fmt.Errorf("word_size must be 8, got %d", l.WordSize))
	}
	for name, off := range map[string]uint64{
		"type_offset":       l.TypeOffset,
		"type_name_offset":  l.TypeNameOffset,
		"dict_mask_offset":  l.DictMaskOffset,
		"dict_table_offset": l.DictTableOffset,
	} {
		if l.WordSize != 0 && off%l.WordSize != 0 {
			errs = append(errs, fmt.Errorf("%s must be word aligned, got %d", name, off))
		}
	}
	if l.WordSize != 0 && l.TypeOffset+l.WordSize > l.HeaderWords()*l.WordSize {
		errs = append(errs, fmt.Errorf("type_offset %d must lie inside the %d-word scanned header", l.TypeOffset, l.HeaderWords()))
	}
	if l.DictSlotSize < 3*l.WordSize {
		errs = append(errs, fmt.Errorf("dict_slot_size must hold three words, got %d", l.DictSlotSize))
	}
	if l.DictMaxSlots == 0 {
		errs = append(errs, errors.New("dict_max_slots must be positive"))
	}
	switch l.IntWidth {
	case 4, 8:
	default:
		errs = append(errs, fmt.Errorf("int_width must be 4 or 8, got %d", l.IntWidth))
	}
	switch l.UnicodeWidth {
	case 2, 4:
	default:
		errs = append(errs, fmt.Errorf("unicode_width must be 2 or 4, got %d", l.UnicodeWidth))
	}
	switch l.LongDigitBits {
	case 15, 30:
	default:
		errs = append(errs, fmt.Errorf("long_digit_bits must be 15 or 30, got %d", l.LongDigitBits))
	}
	if len(errs) > 0 {
		return ErrInvalidArgument.WithDetails("layout").WithCause(errors.Join(errs...))
	}
	return nil
}
