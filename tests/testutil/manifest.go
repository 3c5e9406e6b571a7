package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// ManifestDoc returns a minimal valid manifest document for a wikibase
// rooted at root.
func ManifestDoc(name, root string) string {
	return fmt.Sprintf(`{
  "version": "1.0",
  "mediawiki": {"name": %q, "root": %q, "main_page": %q, "api": %q},
  "wikibase": {"site_iri": %q, "maxlag": 5},
  "reconciliation": {"endpoint": %q}
}`, name, root, root+"Main_Page", root+"../w/api.php", root+"entity/", root+"reconcile/${lang}/api")
}

// ServeManifest serves doc as JSON on every path.
func ServeManifest(t *testing.T, doc string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(doc))
	}))
	t.Cleanup(srv.Close)
	return srv
}
