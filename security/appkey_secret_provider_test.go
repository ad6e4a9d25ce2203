package security

import (
	"bytes"
	"context"
	"testing"
)

func TestAppKeySecretProvider_SealsTenantTokens(t *testing.T) {
	ctx := context.Background()
	provider, err := NewAppKeySecretProviderFromString("tenant-token-key", WithKeyID("feishu-v1"), WithVersion(3))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if provider.KeyID() != "feishu-v1" || provider.Version() != 3 {
		t.Fatalf("unexpected key identity %s/%d", provider.KeyID(), provider.Version())
	}

	if _, err := provider.Encrypt(ctx, nil); err == nil {
		t.Fatalf("expected empty token to be rejected")
	}
	for _, token := range []string{"t-123", string(bytes.Repeat([]byte("x"), 4096))} {
		first, err := provider.Encrypt(ctx, []byte(token))
		if err != nil {
			t.Fatalf("encrypt %d bytes: %v", len(token), err)
		}
		second, err := provider.Encrypt(ctx, []byte(token))
		if err != nil {
			t.Fatalf("encrypt again: %v", err)
		}
		if !IsSealed(first) || bytes.Equal(first, second) {
			t.Fatalf("expected sealed envelopes with fresh nonces")
		}
		if bytes.Contains(first, []byte(token)) {
			t.Fatalf("expected sealed payload to hide the token")
		}
		opened, err := provider.Decrypt(ctx, second)
		if err != nil {
			t.Fatalf("decrypt %d bytes: %v", len(token), err)
		}
		if string(opened) != token {
			t.Fatalf("expected %d byte round trip, got %d bytes", len(token), len(opened))
		}
	}
}

func TestAppKeySecretProvider_RejectsUnknownKey(t *testing.T) {
	issuer, err := NewAppKeySecretProviderFromString("tenant-token-key", WithKeyID("feishu-v1"))
	if err != nil {
		t.Fatalf("new issuer provider: %v", err)
	}
	receiver, err := NewAppKeySecretProviderFromString("tenant-token-key", WithKeyID("feishu-v2"), WithVersion(2))
	if err != nil {
		t.Fatalf("new receiver provider: %v", err)
	}

	encrypted, err := issuer.Encrypt(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := receiver.Decrypt(context.Background(), encrypted); err == nil {
		t.Fatalf("expected key mismatch error")
	}
	if _, err := receiver.Decrypt(context.Background(), []byte("plain")); err == nil {
		t.Fatalf("expected missing prefix error")
	}
}

func TestAppKeySecretProvider_DecryptsWithRetiredKey(t *testing.T) {
	old, err := NewAppKeySecretProviderFromString("old-key", WithKeyID("feishu"))
	if err != nil {
		t.Fatalf("old provider: %v", err)
	}
	sealed, err := old.Encrypt(context.Background(), []byte("t-old"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	rotated, err := NewAppKeySecretProviderFromString("new-key",
		WithKeyID("feishu"),
		WithVersion(2),
		WithRetiredKey("feishu", 1, []byte("old-key")),
	)
	if err != nil {
		t.Fatalf("rotated provider: %v", err)
	}
	opened, err := rotated.Decrypt(context.Background(), sealed)
	if err != nil {
		t.Fatalf("decrypt with retired key: %v", err)
	}
	if string(opened) != "t-old" {
		t.Fatalf("unexpected plaintext %q", opened)
	}
	if _, err := NewAppKeySecretProviderFromString("k", WithRetiredKey("", 1, []byte("x"))); err == nil {
		t.Fatalf("expected retired key validation error")
	}
}
