package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("TEST_BOOL", "yes")
	if !ParseBoolEnv("TEST_BOOL", false) {
		t.Error("expected true for 'yes'")
	}

	t.Setenv("TEST_BOOL", "off")
	if ParseBoolEnv("TEST_BOOL", true) {
		t.Error("expected false for 'off'")
	}

	t.Setenv("TEST_BOOL", "banana")
	if !ParseBoolEnv("TEST_BOOL", true) {
		t.Error("expected default for invalid value")
	}

	if ParseBoolEnv("TEST_BOOL_UNSET", false) {
		t.Error("expected default for unset variable")
	}
}
