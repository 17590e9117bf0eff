package cache

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

// identifier-shaped strings: no spaces, so they survive the "key value"
// line format the way real site and project names do
func genName() gopter.Gen {
	return gen.RegexMatch(`[a-zA-Z][a-zA-Z0-9_./-]{0,20}`)
}

// site names double as cache file names, so no path separators
func genSite() gopter.Gen {
	return gen.RegexMatch(`[a-zA-Z][a-zA-Z0-9_.-]{0,20}`)
}

func genVersion() gopter.Gen {
	return gen.RegexMatch(`[a-zA-Z0-9][a-zA-Z0-9_. -]{0,20}`)
}

// TestStore_RoundTripProperty checks that flushing and reloading the store
// reproduces exactly the (site, project, version) set that was written.
func TestStore_RoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("flush then reload preserves all records", prop.ForAll(
		func(site, project, version string) bool {
			dir := t.TempDir()

			store, err := NewStore(dir)
			require.NoError(t, err)
			store.SetVersion(site, project, version)
			store.SetVersion(site, project+"x", version) // second project on the same site
			if err := store.Flush(); err != nil {
				return false
			}

			reopened, err := NewStore(dir)
			require.NoError(t, err)

			got, ok := reopened.LastVersion(site, project)
			if !ok || got != version {
				return false
			}
			got, ok = reopened.LastVersion(site, project+"x")
			return ok && got == version
		},
		genSite(),
		genName(),
		genVersion(),
	))

	properties.Property("feed identities survive reload", prop.ForAll(
		func(key, identity string) bool {
			dir := t.TempDir()

			store, err := NewStore(dir)
			require.NoError(t, err)
			store.SetLastSeen("http://example.com/"+key, identity)
			if err := store.Flush(); err != nil {
				return false
			}

			reopened, err := NewStore(dir)
			require.NoError(t, err)
			got, ok := reopened.LastSeen("http://example.com/" + key)
			return ok && got == identity
		},
		genName(),
		genVersion(),
	))

	properties.TestingRun(t)
}
