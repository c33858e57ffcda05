package capture

import (
	"context"
	"testing"
)

func TestNewArchiverDisabledWithoutEndpoint(t *testing.T) {
	a, err := NewArchiver(context.Background(), ArchiveConfig{})
	if err != nil {
		t.Fatalf("NewArchiver: %v", err)
	}
	if a != nil {
		t.Fatal("expected a nil archiver when endpoint/bucket are unset")
	}
}

func TestRefFields(t *testing.T) {
	r := Ref{
		URI:      "s3://airgate-captures/abc/request.json",
		Checksum: "sha256:deadbeef",
		Size:     42,
	}
	if r.URI == "" || r.Checksum == "" || r.Size != 42 {
		t.Fatal("ref fields not set")
	}
}

func TestMirrorOnNilArchiverIsNoop(t *testing.T) {
	var a *Archiver
	a.Mirror("whatever.json", []byte(`{}`))
}
