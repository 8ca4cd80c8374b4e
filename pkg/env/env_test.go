package env

import "testing"

func TestFirstPrefersEarlierKeys(t *testing.T) {
	t.Setenv("FASTIDP_TEST_A", "")
	t.Setenv("FASTIDP_TEST_B", "  second ")
	t.Setenv("FASTIDP_TEST_C", "third")

	if got := First("fallback", "FASTIDP_TEST_A", "FASTIDP_TEST_B", "FASTIDP_TEST_C"); got != "second" {
		t.Fatalf("expected second, got %q", got)
	}
	if got := Get("FASTIDP_TEST_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}
