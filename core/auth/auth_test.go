package auth

import (
	"strings"
	"testing"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("qweasd2417")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if hash == "qweasd2417" {
		t.Fatal("hash equals the plain password")
	}
	if !VerifyPassword("qweasd2417", hash) {
		t.Error("VerifyPassword() rejected the right password")
	}
	if VerifyPassword("wrong", hash) {
		t.Error("VerifyPassword() accepted a wrong password")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	if err := Init("test-secret"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	token, err := GenerateToken("bot-frontend")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	claims, err := ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Client != "bot-frontend" {
		t.Errorf("Client = %q, want bot-frontend", claims.Client)
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		t.Error("token carries no lifetime claims")
	}
}

func TestTokenRejectsTampering(t *testing.T) {
	if err := Init("test-secret"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	token, err := GenerateToken("bot-frontend")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	tampered := token[:len(token)-2] + "xx"
	if _, err := ParseToken(tampered); err == nil {
		t.Error("ParseToken() accepted a tampered token")
	}
	if _, err := ParseToken("not-a-token"); err == nil {
		t.Error("ParseToken() accepted garbage")
	}

	// a token signed under another secret must not validate
	if err := Init("rotated-secret"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if _, err := ParseToken(token); err == nil || !strings.Contains(err.Error(), "token") {
		t.Errorf("ParseToken() after rotation error = %v, want signature failure", err)
	}
}

func TestInitRequiresSecret(t *testing.T) {
	if err := Init(""); err == nil {
		t.Error("Init(\"\") must fail")
	}
}
