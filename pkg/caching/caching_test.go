package caching

import (
	"testing"
	"time"
)

func TestCache_SetGetDelete(t *testing.T) {
	c, err := NewCache(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("NewCache() failed: %v", err)
	}

	if _, ok := c.Get("example.com"); ok {
		t.Error("expected miss on empty cache")
	}
	if err := c.Set("example.com", []byte(`{"green":true}`)); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	data, ok := c.Get("example.com")
	if !ok || string(data) != `{"green":true}` {
		t.Errorf("Get() = %q, %v", data, ok)
	}

	if err := c.Set("example.com", []byte("v2")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if data, _ := c.Get("example.com"); string(data) != "v2" {
		t.Errorf("Get() after overwrite = %q", data)
	}

	if err := c.Delete("example.com"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, ok := c.Get("example.com"); ok {
		t.Error("expected miss after delete")
	}
	if err := c.Delete("example.com"); err != nil {
		t.Errorf("deleting a missing key should not fail: %v", err)
	}
}

func TestCache_Expiry(t *testing.T) {
	c, err := NewCache(t.TempDir(), time.Minute)
	if err != nil {
		t.Fatalf("NewCache() failed: %v", err)
	}
	if err := c.Set("k", []byte("v")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	c.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, ok := c.Get("k"); ok {
		t.Error("expected expired entry to miss")
	}
}
