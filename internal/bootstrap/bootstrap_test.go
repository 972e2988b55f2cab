package bootstrap

import (
	"context"
	"strings"
	"testing"

	config "github.com/connorpauley-png/content-command-sub001/configs"
	"github.com/connorpauley-png/content-command-sub001/internal/platform"
)

func TestAdaptersCoverCatalog(t *testing.T) {
	cfg := &config.Config{}
	catalog := platform.DefaultCatalog()
	registry := Adapters(cfg, catalog, StaticCredentials(cfg))

	keys := registry.Keys()
	if strings.Join(keys, ",") != strings.Join(catalog.Keys(), ",") {
		t.Fatalf("registry keys = %v, catalog keys = %v", keys, catalog.Keys())
	}

	gmb, _ := registry.Get(platform.GMB)
	res := gmb.Publish(context.Background(), platform.Content{Text: "hello"})
	if res.Success || !strings.Contains(res.Error, "not connected") {
		t.Fatalf("unavailable platform result = %+v", res)
	}
}

func TestAdaptersDryRun(t *testing.T) {
	cfg := &config.Config{}
	cfg.Queue.DryRun = true
	registry := Adapters(cfg, platform.DefaultCatalog(), platform.StaticCredentials{})

	for _, key := range registry.Keys() {
		a, _ := registry.Get(key)
		res := a.Publish(context.Background(), platform.Content{Text: "hello"})
		if !res.Success || res.ExternalPostID != "dry-run-"+key {
			t.Fatalf("%s dry run result = %+v", key, res)
		}
	}
}

func TestStaticCredentials(t *testing.T) {
	cfg := &config.Config{FacebookPageID: "page-1", FacebookPageToken: "fb-token"}
	creds := StaticCredentials(cfg)

	got, err := creds.Credentials(context.Background(), platform.Facebook)
	if err != nil || got.AccountID != "page-1" || got.AccessToken != "fb-token" {
		t.Fatalf("facebook = %+v, %v", got, err)
	}
	if _, err := creds.Credentials(context.Background(), platform.LinkedIn); err == nil {
		t.Fatal("linkedin without a token should have no credentials")
	}
}
