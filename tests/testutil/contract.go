package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// PrefStore is the read/write surface every preference store exposes.
type PrefStore interface {
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, value string) error
}

// PrefStoreTestCase describes a store under contract test.
type PrefStoreTestCase struct {
	// Name identifies the store in test output.
	Name string

	// New returns an empty store. It is called once per subtest.
	New func(t *testing.T) PrefStore

	// SkipConcurrency skips the concurrent write test.
	SkipConcurrency bool
}

// RunPrefStoreContractTests runs the behavioral contract every preference
// store must satisfy.
//
// Example usage:
//
//	testutil.RunPrefStoreContractTests(t, testutil.PrefStoreTestCase{
//	    Name: "http",
//	    New: func(t *testing.T) testutil.PrefStore {
//	        return prefs.NewHTTPStore(client)
//	    },
//	})
func RunPrefStoreContractTests(t *testing.T, tc PrefStoreTestCase) {
	t.Helper()

	require.NotNil(t, tc.New, "New cannot be nil")
	require.NotEmpty(t, tc.Name, "Test case name cannot be empty")

	t.Run("UnsetIsEmpty", func(t *testing.T) {
		testPrefUnset(t, tc)
	})
	t.Run("SetThenGet", func(t *testing.T) {
		testPrefSetGet(t, tc)
	})
	t.Run("Overwrite", func(t *testing.T) {
		testPrefOverwrite(t, tc)
	})
	t.Run("LargeDocument", func(t *testing.T) {
		testPrefLargeDocument(t, tc)
	})
	if !tc.SkipConcurrency {
		t.Run("Concurrency", func(t *testing.T) {
			testPrefConcurrency(t, tc)
		})
	}
}

func contractContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testPrefUnset(t *testing.T, tc PrefStoreTestCase) {
	t.Helper()

	store := tc.New(t)
	v, err := store.Get(contractContext(t), "contract.never-set")
	require.NoError(t, err, "%s: Get of an unset name must not fail", tc.Name)
	assert.Empty(t, v)
}

func testPrefSetGet(t *testing.T, tc PrefStoreTestCase) {
	t.Helper()

	ctx := contractContext(t)
	store := tc.New(t)

	require.NoError(t, store.Set(ctx, "contract.a", "alpha"))
	require.NoError(t, store.Set(ctx, "contract.b", "beta"))

	a, err := store.Get(ctx, "contract.a")
	require.NoError(t, err)
	b, err := store.Get(ctx, "contract.b")
	require.NoError(t, err)

	assert.Equal(t, "alpha", a)
	assert.Equal(t, "beta", b, "names must not share storage")
}

func testPrefOverwrite(t *testing.T, tc PrefStoreTestCase) {
	t.Helper()

	ctx := contractContext(t)
	store := tc.New(t)

	require.NoError(t, store.Set(ctx, "contract.selected", "Wikidata"))
	require.NoError(t, store.Set(ctx, "contract.selected", "Wikimedia Commons"))

	v, err := store.Get(ctx, "contract.selected")
	require.NoError(t, err)
	assert.Equal(t, "Wikimedia Commons", v)

	require.NoError(t, store.Set(ctx, "contract.selected", ""))
	v, err = store.Get(ctx, "contract.selected")
	require.NoError(t, err)
	assert.Empty(t, v)
}

// Manifest lists are stored as one JSON array, easily several kilobytes.
func testPrefLargeDocument(t *testing.T, tc PrefStoreTestCase) {
	t.Helper()

	ctx := contractContext(t)
	store := tc.New(t)

	var entries []string
	for i := 0; i < 50; i++ {
		entries = append(entries, fmt.Sprintf(`{"version":"1.0","mediawiki":{"name":"Wikibase %d ✓","root":"https://wb%d.example/wiki/Main_Page"}}`, i, i))
	}
	doc := "[" + strings.Join(entries, ",") + "]"

	require.NoError(t, store.Set(ctx, "contract.manifests", doc))
	v, err := store.Get(ctx, "contract.manifests")
	require.NoError(t, err)
	assert.Equal(t, doc, v)
}

func testPrefConcurrency(t *testing.T, tc PrefStoreTestCase) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping concurrency test in short mode")
	}

	ctx := contractContext(t)
	store := tc.New(t)

	const concurrency = 20
	var wg sync.WaitGroup
	errs := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			name := fmt.Sprintf("contract.concurrent.%d", id)
			if err := store.Set(ctx, name, fmt.Sprintf("value-%d", id)); err != nil {
				errs <- fmt.Errorf("goroutine %d: Set failed: %w", id, err)
				return
			}
			got, err := store.Get(ctx, name)
			if err != nil {
				errs <- fmt.Errorf("goroutine %d: Get failed: %w", id, err)
				return
			}
			if want := fmt.Sprintf("value-%d", id); got != want {
				errs <- fmt.Errorf("goroutine %d: got %q, want %q", id, got, want)
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	var failed int
	for err := range errs {
		t.Error(err)
		failed++
	}
	if failed > 0 {
		t.Fatalf("Concurrency test failed with %d errors", failed)
	}
}
