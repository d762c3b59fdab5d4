package flags

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBucketRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		b := Bucket(fmt.Sprintf("user-%d", i), "checkout-redesign")
		assert.GreaterOrEqual(t, b, 0)
		assert.Less(t, b, 100)
	}
}

func TestBucketDeterministic(t *testing.T) {
	first := Bucket("user-42", "new-dashboard")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Bucket("user-42", "new-dashboard"))
	}
}

func TestBucketVariesByFlagKey(t *testing.T) {
	// The same unit should land in different buckets for different flags
	// often enough that rollouts are independent per flag.
	differs := 0
	for i := 0; i < 100; i++ {
		unit := fmt.Sprintf("user-%d", i)
		if Bucket(unit, "flag-a") != Bucket(unit, "flag-b") {
			differs++
		}
	}
	assert.Greater(t, differs, 80)
}

func TestBucketSpread(t *testing.T) {
	counts := make([]int, 100)
	const n = 10000
	for i := 0; i < n; i++ {
		counts[Bucket(fmt.Sprintf("unit-%d", i), "spread-check")]++
	}

	// Every bucket should see traffic; a uniform split puts 100 units in
	// each.
	for b, c := range counts {
		assert.Greater(t, c, 0, "bucket %d is empty", b)
		assert.Less(t, c, 300, "bucket %d is overloaded", b)
	}
}
