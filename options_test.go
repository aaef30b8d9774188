package slabq

import (
	"strings"
	"testing"
	"time"
)

func TestWithName(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expectErr string
	}{
		{name: "name can be set", input: "orders"},
		{name: "empty name is rejected", input: "", expectErr: "name must not be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var o options[int]
			err := WithName[int](tt.input)(&o)
			if tt.expectErr == "" {
				if err != nil {
					t.Fatalf("Failed test: %s, unexpected error: %v", tt.name, err)
				}
				if o.name == nil || *o.name != tt.input {
					t.Errorf("Failed test: %s, name not applied", tt.name)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.expectErr) {
				t.Errorf("Failed test: %s, expect: %v, actual: %v", tt.name, tt.expectErr, err)
			}
		})
	}
}

func TestWithMaxSlabs(t *testing.T) {
	tests := []struct {
		name      string
		input     uint32
		expectErr string
	}{
		{name: "positive value accepted", input: 8},
		{name: "zero is rejected", input: 0, expectErr: "maxSlabs must be set to greater than 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var o options[int]
			err := WithMaxSlabs[int](tt.input)(&o)
			if tt.expectErr == "" {
				if err != nil {
					t.Fatalf("Failed test: %s, unexpected error: %v", tt.name, err)
				}
				if o.maxSlabs == nil || *o.maxSlabs != tt.input {
					t.Errorf("Failed test: %s, maxSlabs not applied", tt.name)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.expectErr) {
				t.Errorf("Failed test: %s, expect: %v, actual: %v", tt.name, tt.expectErr, err)
			}
		})
	}
}

func TestWithSlabBlockSize(t *testing.T) {
	var o options[int]
	if err := WithSlabBlockSize[int](0)(&o); err == nil {
		t.Errorf("Failed test: expected error for zero slabBlockSize")
	}
	if err := WithSlabBlockSize[int](4096)(&o); err != nil {
		t.Fatalf("Failed test: unexpected error: %v", err)
	}
	if o.slabBlockSize == nil || *o.slabBlockSize != 4096 {
		t.Errorf("Failed test: slabBlockSize not applied")
	}
}

func TestWithMessageCapacity(t *testing.T) {
	var o options[int]
	if err := WithMessageCapacity[int](0)(&o); err == nil {
		t.Errorf("Failed test: expected error for zero messageCapacity")
	}
	if err := WithMessageCapacity[int](1024)(&o); err != nil {
		t.Fatalf("Failed test: unexpected error: %v", err)
	}
	if o.messageCapacity == nil || *o.messageCapacity != 1024 {
		t.Errorf("Failed test: messageCapacity not applied")
	}
}

func TestWithSerializerAndDeserializerRejectNil(t *testing.T) {
	var o options[int]
	if err := WithSerializer[int](nil)(&o); err == nil {
		t.Errorf("Failed test: expected error for nil serializer")
	}
	if err := WithDeserializer[int](nil)(&o); err == nil {
		t.Errorf("Failed test: expected error for nil deserializer")
	}
}

func TestWithEqualRejectsNil(t *testing.T) {
	var o options[int]
	if err := WithEqual[int](nil)(&o); err == nil {
		t.Errorf("Failed test: expected error for nil equal func")
	}
	equal := func(a, b int) bool { return a == b }
	if err := WithEqual[int](equal)(&o); err != nil {
		t.Fatalf("Failed test: unexpected error: %v", err)
	}
	if o.equal == nil || !o.equal(2, 2) {
		t.Errorf("Failed test: equal func not applied")
	}
}

func TestWithPollInterval(t *testing.T) {
	var o options[int]
	if err := WithPollInterval[int](0)(&o); err == nil {
		t.Errorf("Failed test: expected error for non-positive pollInterval")
	}
	if err := WithPollInterval[int](10 * time.Millisecond)(&o); err != nil {
		t.Fatalf("Failed test: unexpected error: %v", err)
	}
	if o.pollInterval == nil || *o.pollInterval != 10*time.Millisecond {
		t.Errorf("Failed test: pollInterval not applied")
	}
}

func TestWithOrphanSweep(t *testing.T) {
	var o options[int]
	if err := WithOrphanSweep[int](false)(&o); err != nil {
		t.Fatalf("Failed test: unexpected error: %v", err)
	}
	if o.sweepOrphans == nil || *o.sweepOrphans != false {
		t.Errorf("Failed test: sweepOrphans not applied")
	}
}

func TestDefaultEqual(t *testing.T) {
	if !defaultEqual(5, 5) {
		t.Errorf("Failed test: defaultEqual(5, 5) = false, want true")
	}
	if defaultEqual(5, 6) {
		t.Errorf("Failed test: defaultEqual(5, 6) = true, want false")
	}
}
