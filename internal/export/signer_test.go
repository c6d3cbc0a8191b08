package export

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDownloadTokenRoundTrip(t *testing.T) {
	signer := newDownloadSigner([]byte("test-secret"), time.Minute)
	jobID := uuid.New()
	now := time.Now()

	token := signer.Sign(jobID, now)
	if err := signer.Verify(jobID, token, now.Add(30*time.Second)); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
}

func TestDownloadTokenExpiry(t *testing.T) {
	signer := newDownloadSigner([]byte("test-secret"), time.Minute)
	jobID := uuid.New()
	now := time.Now()

	token := signer.Sign(jobID, now)
	if err := signer.Verify(jobID, token, now.Add(2*time.Minute)); err == nil {
		t.Fatalf("expired token accepted")
	}
}

func TestDownloadTokenBoundToJob(t *testing.T) {
	signer := newDownloadSigner([]byte("test-secret"), time.Minute)
	now := time.Now()

	token := signer.Sign(uuid.New(), now)
	if err := signer.Verify(uuid.New(), token, now); err == nil {
		t.Fatalf("token accepted for a different job")
	}
}

func TestDownloadTokenTamperedSignature(t *testing.T) {
	signer := newDownloadSigner([]byte("test-secret"), time.Minute)
	other := newDownloadSigner([]byte("other-secret"), time.Minute)
	jobID := uuid.New()
	now := time.Now()

	token := other.Sign(jobID, now)
	if err := signer.Verify(jobID, token, now); err == nil {
		t.Fatalf("token signed with a different key accepted")
	}

	if err := signer.Verify(jobID, "not-base64!!", now); err == nil {
		t.Fatalf("malformed token accepted")
	}
	if err := signer.Verify(jobID, "", now); err == nil {
		t.Fatalf("empty token accepted")
	}
}
