package testutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// AssertNoSecretLeak verifies that none of secrets appear in output.
//
// Example usage:
//
//	AssertNoSecretLeak(t, logs.GetOutput(), []string{"hunter2", "consumer-secret"})
func AssertNoSecretLeak(t *testing.T, output string, secrets []string) {
	t.Helper()

	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		assert.NotContains(t, output, secret,
			"Secret %q should never be written, but appears in output", secret)
	}
}

// AssertErrorContains verifies that an error occurred and contains substr.
func AssertErrorContains(t *testing.T, err error, substr string) {
	t.Helper()

	assert.Error(t, err, "Expected an error to occur")
	if err != nil {
		assert.Contains(t, err.Error(), substr,
			"Error message should contain %q", substr)
	}
}

// AssertLinesContain verifies that each expected fragment appears on some
// line of a multi-line output.
//
// Example usage:
//
//	AssertLinesContain(t, out, []string{"Wikidata", "* Wikimedia Commons"})
func AssertLinesContain(t *testing.T, output string, expectedLines []string) {
	t.Helper()

	lines := strings.Split(output, "\n")

	for _, expected := range expectedLines {
		found := false
		for _, line := range lines {
			if strings.Contains(line, expected) {
				found = true
				break
			}
		}

		assert.True(t, found,
			"Expected to find line containing %q in output", expected)
	}
}
