package profile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRiderExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/profiles/7":
			w.Write([]byte(`{"auth_user_id":7}`))
		case "/profiles/8":
			http.Error(w, "profile not found", 404)
		default:
			http.Error(w, "boom", 500)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()

	ok, err := c.RiderExists(ctx, 7)
	if err != nil || !ok {
		t.Fatalf("expected exists, got ok=%v err=%v", ok, err)
	}
	ok, err = c.RiderExists(ctx, 8)
	if err != nil || ok {
		t.Fatalf("expected missing, got ok=%v err=%v", ok, err)
	}
	if _, err = c.RiderExists(ctx, 9); err == nil {
		t.Fatal("expected upstream error on 500")
	}
}
