package main

import (
	"path/filepath"
	"testing"
)

func TestResolveCachePathDefaultsToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(envToolrtCachePath, "")

	got, err := resolveCachePath("")
	if err != nil {
		t.Fatalf("resolveCachePath: %v", err)
	}
	want := filepath.Join(home, ".toolrt", "cache.db")
	if got != want {
		t.Fatalf("cachePath=%q want %q", got, want)
	}
}

func TestResolveCachePathHonorsConfiguredPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(envToolrtCachePath, "")

	got, err := resolveCachePath("~/custom/cache.db")
	if err != nil {
		t.Fatalf("resolveCachePath: %v", err)
	}
	want := filepath.Join(home, "custom", "cache.db")
	if got != want {
		t.Fatalf("cachePath=%q want %q", got, want)
	}
}

func TestResolveCachePathEnvOverridesConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(envToolrtCachePath, "~/from-env/cache.db")

	got, err := resolveCachePath("~/from-config/cache.db")
	if err != nil {
		t.Fatalf("resolveCachePath: %v", err)
	}
	want := filepath.Join(home, "from-env", "cache.db")
	if got != want {
		t.Fatalf("cachePath=%q want %q", got, want)
	}
}
