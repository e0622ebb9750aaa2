package credential

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	perrors "github.com/matzehuels/psresget/pkg/errors"
	"github.com/matzehuels/psresget/pkg/feed"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "creds"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	cred, err := store.Get(ctx, "Internal")
	if err != nil || cred != nil {
		t.Fatalf("Get missing = %v, %v; want nil, nil", cred, err)
	}

	if err := store.Set(ctx, "Internal", feed.Credential{Username: "ci", Password: "s3cret"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	info, err := os.Stat(filepath.Join(store.Path(), "internal.json"))
	if err != nil {
		t.Fatalf("stat credential file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("credential file mode = %o, want 600", perm)
	}

	cred, err = store.Get(ctx, "INTERNAL")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cred == nil || cred.Username != "ci" || cred.Password != "s3cret" {
		t.Errorf("Get = %+v", cred)
	}

	if err := store.Delete(ctx, "internal"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "internal"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
	if cred, _ := store.Get(ctx, "Internal"); cred != nil {
		t.Errorf("Get after Delete = %+v, want nil", cred)
	}
}

func TestFileStoreRejects(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	tests := []struct {
		name string
		repo string
		cred feed.Credential
	}{
		{"traversal", "../escape", feed.Credential{APIKey: "k"}},
		{"empty name", "", feed.Credential{APIKey: "k"}},
		{"empty credential", "Internal", feed.Credential{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Set(ctx, tt.repo, tt.cred)
			if !perrors.Is(err, perrors.ErrCodeInvalidInput) {
				t.Errorf("Set = %v, want INVALID_INPUT", err)
			}
		})
	}
}

func TestAttach(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Set(ctx, "Internal", feed.Credential{APIKey: "stored"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	explicit := &feed.Credential{APIKey: "explicit"}
	repos := []feed.Repository{
		{Name: "PSGallery", URL: "https://www.powershellgallery.com/api/v2"},
		{Name: "Internal", URL: "https://nuget.example.com/api/v2"},
		{Name: "Other", URL: "https://other.example.com/api/v2", Credential: explicit},
	}
	got, err := store.Attach(ctx, repos)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	if got[0].Credential != nil {
		t.Errorf("PSGallery credential = %+v, want nil", got[0].Credential)
	}
	if got[1].Credential == nil || got[1].Credential.APIKey != "stored" {
		t.Errorf("Internal credential = %+v, want stored key", got[1].Credential)
	}
	if got[2].Credential != explicit {
		t.Errorf("explicit credential replaced")
	}
	if repos[1].Credential != nil {
		t.Errorf("Attach mutated its input")
	}
}
