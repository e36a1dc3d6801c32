package session

import (
	"context"
	"os"
	"testing"
)

// Runs only when DISPATCH_TEST_POSTGRES_DSN points at a scratch database.
func TestPostgresTokenRoundTrip(t *testing.T) {
	dsn := os.Getenv("DISPATCH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DISPATCH_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	p, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	defer p.Close()
	t.Cleanup(func() { _ = p.Clear(context.Background()) })

	if err := p.SetToken(ctx, "abc"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	if err := p.SetToken(ctx, "def"); err != nil {
		t.Fatalf("SetToken overwrite: %v", err)
	}
	if tok, _ := p.Token(ctx); tok != "def" {
		t.Fatalf("Token = %q", tok)
	}
	if err := p.SetToken(ctx, ""); err != nil {
		t.Fatalf("SetToken empty: %v", err)
	}
	if tok, _ := p.Token(ctx); tok != "" {
		t.Fatalf("Token after empty set = %q", tok)
	}
}

func TestOpenPostgresRequiresDSN(t *testing.T) {
	if _, err := OpenPostgres(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
}
