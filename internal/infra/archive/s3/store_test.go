package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"limscore/internal/archive"
)

func TestMockBackedRoundTrip(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()

	if store.Driver() != archive.DriverS3 {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
	info, err := store.Put(ctx, "coa/S001.json", strings.NewReader(`{"id":"S001"}`), archive.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size == 0 {
		t.Fatalf("expected non-zero size, got %+v", info)
	}
	if _, err := store.Put(ctx, "coa/S001.json", strings.NewReader("again"), archive.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate put to fail")
	}

	got, rc, err := store.Get(ctx, "coa/S001.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"id":"S001"}` {
		t.Fatalf("unexpected body %q", body)
	}
	if got.ContentType != "application/json" {
		t.Fatalf("unexpected content type %q", got.ContentType)
	}
}

func TestMockBackedListAndDelete(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()

	for _, key := range []string{"coa/S002.json", "coa/S001.json", "manifests/m1.csv"} {
		if _, err := store.Put(ctx, key, strings.NewReader("data"), archive.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "coa/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "coa/S001.json" || infos[1].Key != "coa/S002.json" {
		t.Fatalf("unexpected listing %+v", infos)
	}

	if _, err := store.Delete(ctx, "coa/S001.json"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Head(ctx, "coa/S001.json"); err == nil {
		t.Fatalf("expected head after delete to fail")
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing bucket to be rejected")
	}
}
