package testutil

import "testing"

// Given, When, Then and And name subtests after the step they describe so a
// failing journey reads as the scenario it broke.
func Given(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Given "+desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("When "+desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Then "+desc, fn)
}

func And(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("And "+desc, fn)
}
