package yandex

import (
	"net/url"
	"testing"
)

func TestRewriteQueryURL(t *testing.T) {
	current := "https://yandex.ru/maps/213/moscow/?ll=37.72%2C55.68&z=15&text=старый+запрос"

	got, err := RewriteQueryURL(current, "кофейня на набережной")
	if err != nil {
		t.Fatalf("RewriteQueryURL: %v", err)
	}

	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}
	q := u.Query()
	if q.Get("text") != "кофейня на набережной" {
		t.Errorf("text: got %q, want the new query", q.Get("text"))
	}
	// View state survives the rewrite.
	if q.Get("ll") != "37.72,55.68" {
		t.Errorf("ll: got %q, want 37.72,55.68", q.Get("ll"))
	}
	if q.Get("z") != "15" {
		t.Errorf("z: got %q, want 15", q.Get("z"))
	}
	if u.Path != "/maps/213/moscow/" {
		t.Errorf("path: got %q, want /maps/213/moscow/", u.Path)
	}
}

func TestRewriteQueryURL_AddsMissingTextParam(t *testing.T) {
	got, err := RewriteQueryURL("https://yandex.ru/maps/?z=12", "кофе")
	if err != nil {
		t.Fatalf("RewriteQueryURL: %v", err)
	}
	u, _ := url.Parse(got)
	if u.Query().Get("text") != "кофе" {
		t.Errorf("text: got %q, want кофе", u.Query().Get("text"))
	}
}

func TestRewriteQueryURL_InvalidURL(t *testing.T) {
	if _, err := RewriteQueryURL("://yandex.ru/maps", "кофе"); err == nil {
		t.Error("RewriteQueryURL: want error for malformed url")
	}
}
