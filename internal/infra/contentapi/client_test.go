package contentapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chanwatch/chanwatch/internal/core/domain"
)

func TestClassify(t *testing.T) {
	kinds := map[string]string{
		"v1": "none",
		"v2": "live",
		"v3": "upcoming",
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /v1/items/{id}/classification
		id := r.URL.Path[len("/v1/items/") : len(r.URL.Path)-len("/classification")]
		kind, ok := kinds[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(classifyResponse{ItemID: id, Kind: kind})
	}))
	defer server.Close()

	c := NewClient(server.URL, "", 5*time.Second)
	for id, want := range map[string]domain.ItemKind{
		"v1": domain.KindNone,
		"v2": domain.KindLive,
		"v3": domain.KindUpcoming,
	} {
		got, err := c.Classify(context.Background(), id)
		if err != nil {
			t.Fatalf("Classify(%s) failed: %v", id, err)
		}
		if got != want {
			t.Errorf("Classify(%s): expected %s, got %s", id, want, got)
		}
	}
}

func TestClassify_UnknownKindIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(classifyResponse{Kind: "premiere"})
	}))
	defer server.Close()

	c := NewClient(server.URL, "", time.Second)
	if _, err := c.Classify(context.Background(), "v1"); err == nil {
		t.Fatal("expected unknown kind rejected")
	}
}

func TestClassify_ServerErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(server.URL, "", time.Second)
	if _, err := c.Classify(context.Background(), "v1"); err == nil {
		t.Fatal("expected an error on 502")
	}
}
