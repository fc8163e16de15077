package urlutil

import "testing"

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "adds root path", in: "https://Example.com", want: "https://example.com/"},
		{name: "drops fragment", in: "https://example.com/a#top", want: "https://example.com/a"},
		{name: "sorts query", in: "https://example.com/s?b=2&a=1", want: "https://example.com/s?a=1&b=2"},
		{name: "strips default https port", in: "https://example.com:443/x", want: "https://example.com/x"},
		{name: "strips default http port", in: "HTTP://example.com:80/", want: "http://example.com/"},
		{name: "keeps custom port", in: "http://localhost:8080/", want: "http://localhost:8080/"},
		{name: "keeps scheme distinct", in: "http://example.com/", want: "http://example.com/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			if err != nil {
				t.Fatalf("NormalizeURL(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeURL_SameKey(t *testing.T) {
	a, _ := NormalizeURL("https://EXAMPLE.com/?y=1&x=2#frag")
	b, _ := NormalizeURL("https://example.com:443/?x=2&y=1")
	if a != b {
		t.Errorf("expected equal keys, got %q and %q", a, b)
	}
}

func TestNormalizeURL_Invalid(t *testing.T) {
	if _, err := NormalizeURL("not a url"); err == nil {
		t.Error("expected error for URL without host")
	}
}

func TestHostname(t *testing.T) {
	if got := Hostname("https://WWW.Example.com:8443/x"); got != "www.example.com" {
		t.Errorf("Hostname() = %q", got)
	}
}

func TestContentHash(t *testing.T) {
	const emptySHA = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := ContentHash(nil); got != emptySHA {
		t.Errorf("ContentHash(nil) = %q", got)
	}
	if ContentHash([]byte("a")) == ContentHash([]byte("b")) {
		t.Error("different content produced the same hash")
	}
}
