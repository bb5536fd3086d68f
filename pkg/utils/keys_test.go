package utils

import (
	"net/url"
	"testing"
)

func TestKeywordKey(t *testing.T) {
	if KeywordKey("収納 ボックス") != KeywordKey("  収納　ボックス ") {
		t.Fatal("width and spacing variants should share a key")
	}
	if KeywordKey("収納") == KeywordKey("ボックス") {
		t.Fatal("different keywords share a key")
	}
	if n := len(KeywordKey("a")); n != 64 {
		t.Fatalf("key length = %d", n)
	}
}

func TestResolveURL(t *testing.T) {
	base, _ := url.Parse("https://www.amazon.co.jp/s?k=x")
	tests := []struct {
		base *url.URL
		ref  string
		want string
	}{
		{base, "/dp/B000000001", "https://www.amazon.co.jp/dp/B000000001"},
		{base, "//cbu01.alicdn.com/img/a.jpg", "https://cbu01.alicdn.com/img/a.jpg"},
		{nil, "/dp/B000000001", "/dp/B000000001"},
		{base, "https://detail.1688.com/offer/1.html", "https://detail.1688.com/offer/1.html"},
		{base, "  ", ""},
	}
	for _, tt := range tests {
		if got := ResolveURL(tt.base, tt.ref); got != tt.want {
			t.Errorf("ResolveURL(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}
