package platform

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{name: "under limit", text: "hello", limit: 10, want: "hello"},
		{name: "exact", text: "hello", limit: 5, want: "hello"},
		{name: "cut", text: "hello world", limit: 8, want: "hello..."},
		{name: "runes", text: "héllo wörld", limit: 6, want: "hél..."},
		{name: "no limit", text: "hello", limit: 0, want: "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.text, tt.limit)
			if got != tt.want {
				t.Fatalf("Truncate(%q, %d) = %q, want %q", tt.text, tt.limit, got, tt.want)
			}
			if tt.limit > 0 && utf8.RuneCountInString(got) > tt.limit {
				t.Fatalf("result exceeds limit: %q", got)
			}
		})
	}
}

func TestCatalogMergeOverridesAndAdds(t *testing.T) {
	catalog := DefaultCatalog()
	data := []byte(`
platforms:
  - key: gmb
    available: true
  - key: threads
    name: Threads
    char_limit: 500
`)
	if err := catalog.Merge(data); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	gmb, _ := catalog.Lookup(GMB)
	if !gmb.Available || gmb.CharLimit != 1500 {
		t.Fatalf("gmb override lost defaults: %+v", gmb)
	}
	threads, ok := catalog.Lookup("threads")
	if !ok || threads.Name != "Threads" || threads.CharLimit != 500 {
		t.Fatalf("threads not added: %+v", threads)
	}
}

func TestCatalogMergeRejectsMissingKey(t *testing.T) {
	if err := DefaultCatalog().Merge([]byte("platforms:\n  - name: nope\n")); err == nil {
		t.Fatal("expected error for entry without key")
	}
}

func TestDefaultCatalogUnavailablePlatforms(t *testing.T) {
	catalog := DefaultCatalog()
	for _, key := range []string{GMB, Nextdoor} {
		if catalog[key].Available {
			t.Fatalf("%s should not be available by default", key)
		}
	}
	if !catalog.RequiresMedia(Instagram) || !catalog.RequiresMedia(IGPersonal) {
		t.Fatal("instagram platforms require media")
	}
}

func TestRegistryWrapDryRun(t *testing.T) {
	reg := NewRegistry(Unavailable(DefaultCatalog()[GMB]), NewFacebookAdapter(StaticCredentials{}))
	if keys := reg.Keys(); len(keys) != 2 || keys[0] != Facebook || keys[1] != GMB {
		t.Fatalf("Keys = %v", keys)
	}

	res := mustGet(t, reg, GMB).Publish(context.Background(), Content{Text: "hi"})
	if res.Success || !strings.Contains(res.Error, "Google Business") {
		t.Fatalf("unavailable result = %+v", res)
	}

	dry := reg.Wrap(DryRun)
	res = mustGet(t, dry, Facebook).Publish(context.Background(), Content{Text: "hi"})
	if !res.Success || res.ExternalPostID != "dry-run-facebook" {
		t.Fatalf("dry run result = %+v", res)
	}
}

func mustGet(t *testing.T, reg *Registry, key string) Adapter {
	t.Helper()
	a, ok := reg.Get(key)
	if !ok {
		t.Fatalf("adapter %s not registered", key)
	}
	return a
}

func TestOAuth1HeaderMatchesReferenceSignature(t *testing.T) {
	keys := TwitterKeys{
		ConsumerKey:    "xvz1evFS4wEEPTGEFPHBog",
		ConsumerSecret: "kAcSOqF21Fu85e7zjz7ZN2U4ZRhfV3WpwPAoE3Z7kBw",
		AccessToken:    "370773112-GmHxMAgYyLbNEtIKZeRNFsMKPR9EyMZeS9weJAEb",
		AccessSecret:   "LswwdoUaIvS8ltyTt5jkRh4J50vUPVVHtR2YPi5kE",
	}
	params := url.Values{
		"include_entities": {"true"},
		"status":           {"Hello Ladies + Gentlemen, a signed OAuth request!"},
	}
	header := oauth1Header(keys, "post", "https://api.twitter.com/1.1/statuses/update.json", params,
		"kYjzVBB8Y0ZFabxSWbWovY3uYSQ2pTgmZeNu2VS4cg", 1318622958)

	want := `oauth_signature="tnnArxj06cWHq44gCs1OSKk%2FjLY%3D"`
	if !strings.Contains(header, want) {
		t.Fatalf("header %q missing %s", header, want)
	}
	if !strings.HasPrefix(header, "OAuth ") {
		t.Fatalf("header %q missing scheme", header)
	}
}

func TestPercentEncode(t *testing.T) {
	if got := percentEncode("a b~c*"); got != "a%20b~c%2A" {
		t.Fatalf("percentEncode = %q", got)
	}
}

func TestTwitterAdapterSoftTruncatesAndUploadsMedia(t *testing.T) {
	var mu sync.Mutex
	var tweetText string
	var mediaIDs []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/img.jpg":
			w.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0})
		case "/upload":
			if !strings.HasPrefix(r.Header.Get("Authorization"), "OAuth ") {
				http.Error(w, "unsigned", http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"media_id_string":"m1"}`))
		case "/tweets":
			var body struct {
				Text  string `json:"text"`
				Media struct {
					MediaIDs []string `json:"media_ids"`
				} `json:"media"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			tweetText = body.Text
			mediaIDs = body.Media.MediaIDs
			mu.Unlock()
			w.Write([]byte(`{"data":{"id":"123"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	keys := TwitterKeys{ConsumerKey: "ck", ConsumerSecret: "cs", AccessToken: "at", AccessSecret: "as"}
	tw := NewTwitterAdapter(keys, 280).WithURLs(srv.URL+"/tweets", srv.URL+"/upload", srv.Client())

	res := tw.Publish(context.Background(), Content{
		Text:  strings.Repeat("a", 300),
		Media: []string{srv.URL + "/img.jpg"},
	})
	if !res.Success || res.ExternalPostID != "123" {
		t.Fatalf("result = %+v", res)
	}
	mu.Lock()
	defer mu.Unlock()
	if n := utf8.RuneCountInString(tweetText); n != 280 || !strings.HasSuffix(tweetText, "...") {
		t.Fatalf("tweet text not soft truncated: %d runes", n)
	}
	if len(mediaIDs) != 1 || mediaIDs[0] != "m1" {
		t.Fatalf("media ids = %v", mediaIDs)
	}
}

func TestTwitterAdapterMissingKeys(t *testing.T) {
	res := NewTwitterAdapter(TwitterKeys{}, 280).Publish(context.Background(), Content{Text: "hi"})
	if res.Success || res.Error == "" {
		t.Fatalf("expected failure, got %+v", res)
	}
}

func TestInstagramCarouselPublish(t *testing.T) {
	var mu sync.Mutex
	var containers []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/media_publish"):
			w.Write([]byte(`{"id":"published-1"}`))
		case strings.HasSuffix(r.URL.Path, "/media"):
			var payload map[string]any
			body, _ := io.ReadAll(r.Body)
			json.Unmarshal(body, &payload)
			mu.Lock()
			containers = append(containers, payload)
			id := len(containers)
			mu.Unlock()
			w.Write([]byte(`{"id":"c` + string(rune('0'+id)) + `"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	creds := StaticCredentials{Instagram: {AccountID: "acct", AccessToken: "tok"}}
	ig := NewInstagramAdapter(Instagram, creds).WithBaseURL(srv.URL, srv.Client())
	res := ig.Publish(context.Background(), Content{Text: "caption", Media: []string{"https://a/1.jpg", "https://a/2.jpg"}})
	if !res.Success || res.ExternalPostID != "published-1" {
		t.Fatalf("result = %+v", res)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(containers) != 3 {
		t.Fatalf("expected 2 children + 1 carousel container, got %d", len(containers))
	}
	children, _ := containers[2]["children"].([]any)
	if containers[2]["media_type"] != "CAROUSEL" || len(children) != 2 {
		t.Fatalf("carousel container = %v", containers[2])
	}
}

func TestInstagramRequiresMedia(t *testing.T) {
	ig := NewInstagramAdapter(Instagram, StaticCredentials{})
	if res := ig.Publish(context.Background(), Content{Text: "x"}); res.Success {
		t.Fatal("expected failure without media")
	}
}

func TestFacebookErrorStatusIsFailedResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad token"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	fb := NewFacebookAdapter(StaticCredentials{Facebook: {AccountID: "page", AccessToken: "tok"}}).WithBaseURL(srv.URL, srv.Client())
	res := fb.Publish(context.Background(), Content{Text: "hello"})
	if res.Success || !strings.Contains(res.Error, "bad token") {
		t.Fatalf("result = %+v", res)
	}
}

func TestLinkedInReadsRestliID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("x-restli-id", "urn:li:share:42")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	li := NewLinkedInAdapter(StaticCredentials{LinkedIn: {AccountID: "org", AccessToken: "tok"}}).WithURL(srv.URL, srv.Client())
	res := li.Publish(context.Background(), Content{Text: "hello"})
	if !res.Success || res.ExternalPostID != "urn:li:share:42" {
		t.Fatalf("result = %+v", res)
	}
}
