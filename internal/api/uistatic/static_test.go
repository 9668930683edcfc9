package uistatic

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/querychat/querychat/internal/session"
)

func TestHandlerRendersDefaultsWithoutPassword(t *testing.T) {
	defaults := session.Defaults()
	defaults.Password = "s3cret"
	h := Handler(Options{Defaults: defaults, RAG: true})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{`value="localhost"`, `value="3306"`, `value="sales_database"`, "Use schema retrieval"} {
		if !strings.Contains(body, want) {
			t.Fatalf("index missing %q", want)
		}
	}
	if strings.Contains(body, "s3cret") {
		t.Fatal("index leaked the default password")
	}
}

func TestHandlerServesAssetsAndFallsBackToIndex(t *testing.T) {
	h := Handler(Options{Defaults: session.Defaults()})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/app.js", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "/v1/ask") {
		t.Fatalf("app.js status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/some/page", nil))
	if !strings.Contains(rr.Body.String(), "Ask the question") {
		t.Fatalf("fallback did not serve index: %s", rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "Use schema retrieval") {
		t.Fatal("rag toggle rendered while retrieval is off")
	}
}
