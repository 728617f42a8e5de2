package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

func testCID(t *testing.T, data string) cid.Cid {
	t.Helper()
	mh, err := multihash.Sum([]byte(data), multihash.SHA2_256, -1)
	if err != nil {
		t.Fatalf("multihash.Sum: %v", err)
	}
	return cid.NewCidV1(cid.Raw, mh)
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(KindNetwork, cause, "HEAD %s", "/ipfs/x").WithName("docs/a.txt")
	if got, want := err.Error(), "docs/a.txt: HEAD /ipfs/x: connection refused"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause is not reachable through Unwrap")
	}
}

func TestKindThroughWrapping(t *testing.T) {
	base := NewError(KindPayloadTooLarge, "too big")
	wrapped := fmt.Errorf("submit: %w", base)
	if !IsKind(wrapped, KindPayloadTooLarge) || KindOf(wrapped) != KindPayloadTooLarge {
		t.Fatalf("kind lost through fmt wrapping")
	}
	if IsKind(errors.New("plain"), KindNetwork) || KindOf(nil) != "" {
		t.Fatalf("plain errors have no kind")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(NewError(KindNetwork, "timeout")) {
		t.Fatalf("network errors are retryable")
	}
	for _, k := range []Kind{KindConfiguration, KindUploadFailed, KindCIDMismatch, KindPayloadTooLarge} {
		if Retryable(NewError(k, "x")) {
			t.Fatalf("%s must not be retryable", k)
		}
	}
	if Retryable(errors.New("unknown")) {
		t.Fatalf("errors without a kind are terminal")
	}
}

func TestPendingCIDs(t *testing.T) {
	a, b := testCID(t, "a"), testCID(t, "b")
	err := fmt.Errorf("run: %w", NewError(KindUploadFailed, "2 blocks left").WithCIDs(a, b))
	got := PendingCIDs(err)
	if len(got) != 2 || !got[0].Equals(a) || !got[1].Equals(b) {
		t.Fatalf("PendingCIDs = %v", got)
	}
	if s := FormatCIDs(got); s != a.String()+", "+b.String() {
		t.Fatalf("FormatCIDs = %q", s)
	}
	if PendingCIDs(errors.New("plain")) != nil {
		t.Fatalf("plain errors carry no CIDs")
	}
}
