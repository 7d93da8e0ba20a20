package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestAddr_String(t *testing.T) {
	if got := Addr(0x7ffe1000).String(); got != "0x7FFE1000" {
		t.Errorf("String() = %q, want %q", got, "0x7FFE1000")
	}
}

func TestAddr_Add(t *testing.T) {
	a, ok := Addr(0x1000).Add(0x10)
	if !ok || a != 0x1010 {
		t.Errorf("Add() = %v, %v; want 0x1010, true", a, ok)
	}

	if _, ok := Addr(^uint64(0)).Add(1); ok {
		t.Error("Add() should report overflow")
	}
}

func TestParseAddr(t *testing.T) {
	tests := []struct {
		in      string
		want    Addr
		wantErr bool
	}{
		{"0x1F00", 0x1F00, false},
		{"4096", 4096, false},
		{" 0xABC ", 0xABC, false},
		{"zz", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddr(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAddr() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("error should be ErrInvalidArgument, got %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseAddr() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAddr_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A Addr `json:"a"`
	}{A: 0xBEEF})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"a":"0xBEEF"}` {
		t.Errorf("Marshal = %s", data)
	}

	var back struct {
		A Addr `json:"a"`
	}
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.A != 0xBEEF {
		t.Errorf("Unmarshal = %v", back.A)
	}
}

func TestCandidateSet(t *testing.T) {
	s := NewCandidateSet(3, 1, 2, 1)
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
	if !s.Contains(2) || s.Contains(4) {
		t.Error("Contains() mismatch")
	}

	sorted := s.Sorted()
	for i, want := range []Addr{1, 2, 3} {
		if sorted[i] != want {
			t.Errorf("Sorted()[%d] = %v, want %v", i, sorted[i], want)
		}
	}

	if _, ok := s.Single(); ok {
		t.Error("Single() should fail on three members")
	}
	one := NewCandidateSet(9)
	if a, ok := one.Single(); !ok || a != 9 {
		t.Errorf("Single() = %v, %v", a, ok)
	}

	s.Union(NewCandidateSet(4, 1))
	if !s.Equal(NewCandidateSet(1, 2, 3, 4)) {
		t.Errorf("Union result = %v", s.Sorted())
	}

	var nilSet CandidateSet
	if nilSet.Contains(1) || nilSet.Len() != 0 {
		t.Error("nil set should be empty")
	}
}

func TestDeriveWindow(t *testing.T) {
	w := DeriveWindow(0x7FF6_1234_5678, BuiltinWindowMask)
	if w.Min != 0x7FF6_1200_0000 {
		t.Errorf("Min = %v", w.Min)
	}
	if w.Max != 0x7FF6_12FF_FFFF {
		t.Errorf("Max = %v", w.Max)
	}
	if !w.Contains(0x7FF6_1234_5678) {
		t.Error("window should contain its source address")
	}
	if w.Contains(w.Max) {
		t.Error("window is half-open")
	}

	app := DeriveWindow(0x0000_0123_4567_89A0, AppWindowMask)
	if app.Min != 0x0000_0120_0000_0000 || app.Max != 0x0000_0123_FFFF_FFFF {
		t.Errorf("app window = %v", app)
	}
}

func TestAddressWindow_Overlaps(t *testing.T) {
	w := AddressWindow{Min: 0x1000, Max: 0x2000}
	tests := []struct {
		name string
		base Addr
		size uint64
		want bool
	}{
		{"before", 0x0, 0x1000, false},
		{"touching start", 0x800, 0x801, true},
		{"inside", 0x1800, 0x10, true},
		{"spanning", 0x0, 0x3000, true},
		{"at max", 0x2000, 0x10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.Overlaps(tt.base, tt.size); got != tt.want {
				t.Errorf("Overlaps(%v, %#x) = %v, want %v", tt.base, tt.size, got, tt.want)
			}
		})
	}
}

func TestWindowLatch_FirstWriterWins(t *testing.T) {
	var l WindowLatch
	if _, ok := l.Get(); ok {
		t.Fatal("empty latch should report unset")
	}

	first := AddressWindow{Min: 0x1000, Max: 0x2000}
	if !l.Set(first) {
		t.Fatal("first Set should succeed")
	}
	if l.Set(AddressWindow{Min: 0, Max: 0xFFFF}) {
		t.Error("second Set should be ignored")
	}

	got, ok := l.Get()
	if !ok || got != first {
		t.Errorf("Get() = %v, %v; want %v", got, ok, first)
	}
}

func TestMemoryRegion_Slice(t *testing.T) {
	r := MemoryRegion{Base: 0x1000, Content: make([]byte, 0x100)}

	if b, ok := r.Slice(0x1000, 0x100); !ok || len(b) != 0x100 {
		t.Error("full-region slice should succeed")
	}
	if _, ok := r.Slice(0x10F0, 0x20); ok {
		t.Error("overrunning slice should fail")
	}
	if _, ok := r.Slice(0xFFF, 1); ok {
		t.Error("slice before base should fail")
	}
	if _, ok := r.Slice(0x1100, 0); ok {
		t.Error("slice at end address should fail")
	}
}

func TestRegionInfo_Capturable(t *testing.T) {
	tests := []struct {
		name string
		prot Protection
		size uint64
		want bool
	}{
		{"readable committed", ProtCommitted | ProtRead, 0x1000, true},
		{"guard", ProtCommitted | ProtRead | ProtGuard, 0x1000, false},
		{"no access", ProtCommitted, 0x1000, false},
		{"reserved", ProtRead, 0x1000, false},
		{"empty", ProtCommitted | ProtRead, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ri := RegionInfo{Base: 0x1000, Size: tt.size, Protection: tt.prot}
			if got := ri.Capturable(); got != tt.want {
				t.Errorf("Capturable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLayout_Validate(t *testing.T) {
	if err := DefaultLayout().Validate(); err != nil {
		t.Fatalf("default layout invalid: %v", err)
	}

	bad := DefaultLayout()
	bad.TypeOffset = 5
	bad.IntWidth = 3
	err := bad.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestLayout_Validate_TypeOffsetInsideHeader(t *testing.T) {
	tests := []struct {
		name       string
		typeOffset uint64
		wantErr    bool
	}{
		{"first word", 0, false},
		{"default", 8, false},
		{"last header word", 24, false},
		{"past header", 32, true},
		{"far past header", 4096, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := DefaultLayout()
			l.TypeOffset = tt.typeOffset
			err := l.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(errors.Unwrap(err).Error(), "type_offset") {
				t.Errorf("Validate() cause = %v, want type_offset mentioned", errors.Unwrap(err))
			}
		})
	}
}

func TestLayout_HeaderWords(t *testing.T) {
	if got := DefaultLayout().HeaderWords(); got != 4 {
		t.Errorf("HeaderWords() = %d, want 4", got)
	}
}

func TestDictHeader_SlotCount(t *testing.T) {
	tests := []struct {
		name string
		mask uint64
		want uint64
		ok   bool
	}{
		{"eight", 7, 8, true},
		{"at max", 9999, 10000, true},
		{"over max", 10000, 0, false},
		{"wraps to zero", ^uint64(0), 0, false},
		{"negative", 1 << 63, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DictHeader{Mask: tt.mask}.SlotCount(10000)
			if got != tt.want || ok != tt.ok {
				t.Errorf("SlotCount() = %d, %v; want %d, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}
