package walleterr

import (
	"errors"
	"testing"
)

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(KindTimeout, "peer.FetchCoin", "peer did not respond", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}
	if got := Of(err); got != KindTimeout {
		t.Errorf("expected Of(err)=%v, got %v", KindTimeout, got)
	}
}

func TestIsMatchesByKindNotIdentity(t *testing.T) {
	err := New(KindNotFound, "db.CoinByID", "no such coin")

	if !Is(err, KindNotFound) {
		t.Errorf("expected Is(err, KindNotFound) to be true")
	}
	if Is(err, KindRejected) {
		t.Errorf("expected Is(err, KindRejected) to be false")
	}
	if !errors.Is(err, NotFound) {
		t.Errorf("expected errors.Is(err, NotFound) sentinel match by kind")
	}
}

func TestOfReturnsUnknownForPlainErrors(t *testing.T) {
	if got := Of(errors.New("boom")); got != KindUnknown {
		t.Errorf("expected KindUnknown for a plain error, got %v", got)
	}
}

func TestErrorStringIncludesOpAndCause(t *testing.T) {
	cause := errors.New("EOF")
	err := Wrap(KindPeerMisbehaved, "peer.RequestCoinState", "malformed response", cause)

	got := err.Error()
	want := "peer.RequestCoinState: malformed response: EOF"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
