// Copyright 2026 The Vegh Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeStandsStill(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	fake := Fake(start)

	if !fake.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", fake.Now(), start)
	}
	if !fake.Now().Equal(fake.Now()) {
		t.Error("fake clock moved without Advance")
	}

	fake.Advance(90 * time.Second)
	if want := start.Add(90 * time.Second); !fake.Now().Equal(want) {
		t.Errorf("after Advance: Now() = %v, want %v", fake.Now(), want)
	}

	later := start.Add(24 * time.Hour)
	fake.Set(later)
	if !fake.Now().Equal(later) {
		t.Errorf("after Set: Now() = %v, want %v", fake.Now(), later)
	}
}

func TestRealIsClose(t *testing.T) {
	before := time.Now()
	now := Real().Now()
	if now.Before(before) {
		t.Errorf("Real().Now() = %v is before %v", now, before)
	}
}
