package common

import (
	"strconv"
	"testing"
)

func TestRollingIndex(t *testing.T) {
	size := 10
	testSize := 3 * size
	rollingIndex := NewRollingIndex("test", size)

	items := []string{}
	for i := 0; i < testSize; i++ {
		item := strconv.Itoa(i)
		rollingIndex.Set(item, i)
		items = append(items, item)
	}

	cached, lastIndex := rollingIndex.GetLastWindow()

	expectedLastIndex := testSize - 1
	if lastIndex != expectedLastIndex {
		t.Fatalf("lastIndex = %d, want %d", lastIndex, expectedLastIndex)
	}

	start := (testSize / (2 * size)) * size
	for i := 0; i < len(cached); i++ {
		if cached[i] != items[start+i] {
			t.Fatalf("cached[%d] = %v, want %v", i, cached[i], items[start+i])
		}
	}

	err := rollingIndex.Set("PassedIndex", expectedLastIndex-2*size)
	if !IsStore(err, TooLate) {
		t.Fatalf("expected TooLate error, got %v", err)
	}

	_, err = rollingIndex.GetItem(lastIndex - 2*size)
	if !IsStore(err, TooLate) {
		t.Fatalf("expected TooLate error, got %v", err)
	}

	for i := start; i < testSize; i++ {
		item, err := rollingIndex.GetItem(i)
		if err != nil {
			t.Fatal(err)
		}
		if item != items[i] {
			t.Fatalf("GetItem(%d) = %v, want %v", i, item, items[i])
		}
	}

	_, err = rollingIndex.GetItem(lastIndex + 1)
	if !IsStore(err, KeyNotFound) {
		t.Fatalf("expected KeyNotFound error, got %v", err)
	}

	err = rollingIndex.Set("SkippedIndex", lastIndex+2)
	if !IsStore(err, SkippedIndex) {
		t.Fatalf("expected SkippedIndex error, got %v", err)
	}
}

func TestRollingIndexSkip(t *testing.T) {
	size := 10
	testSize := 25
	rollingIndex := NewRollingIndex("test", size)

	items := []string{}
	for i := 0; i < testSize; i++ {
		item := strconv.Itoa(i)
		rollingIndex.Set(item, i)
		items = append(items, item)
	}

	if _, err := rollingIndex.Get(-2); !IsStore(err, TooLate) {
		t.Fatalf("expected TooLate error, got %v", err)
	}

	skipIndex := 9
	expected := items[skipIndex+1:]
	cached, err := rollingIndex.Get(skipIndex)
	if err != nil {
		t.Fatal(err)
	}
	if len(cached) != len(expected) {
		t.Fatalf("cached length = %d, want %d", len(cached), len(expected))
	}
	for i := range expected {
		if cached[i] != expected[i] {
			t.Fatalf("cached[%d] = %v, want %v", i, cached[i], expected[i])
		}
	}

	//asking for items beyond the last index returns an empty slice
	cached, err = rollingIndex.Get(testSize)
	if err != nil {
		t.Fatal(err)
	}
	if len(cached) != 0 {
		t.Fatalf("expected empty result, got %d items", len(cached))
	}
}

func TestRollingIndexMap(t *testing.T) {
	size := 10
	rim := NewRollingIndexMap("test", size)

	for k := uint32(0); k < 3; k++ {
		if err := rim.AddKey(k); err != nil {
			t.Fatal(err)
		}
	}

	if err := rim.AddKey(0); !IsStore(err, KeyAlreadyExists) {
		t.Fatalf("expected KeyAlreadyExists, got %v", err)
	}

	for k := uint32(0); k < 3; k++ {
		for i := 0; i < 5; i++ {
			if err := rim.Set(k, strconv.Itoa(i), i); err != nil {
				t.Fatal(err)
			}
		}
	}

	last, err := rim.GetLast(1)
	if err != nil {
		t.Fatal(err)
	}
	if last != "4" {
		t.Fatalf("GetLast = %v, want 4", last)
	}

	known := rim.Known()
	for k := uint32(0); k < 3; k++ {
		if known[k] != 4 {
			t.Fatalf("known[%d] = %d, want 4", k, known[k])
		}
	}

	if _, err := rim.Get(9, 0); !IsStore(err, KeyNotFound) {
		t.Fatalf("expected KeyNotFound, got %v", err)
	}
}
