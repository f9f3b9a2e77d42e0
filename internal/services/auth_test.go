package services

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestIsEvaluator(t *testing.T) {
	auth := NewAuthService([]string{"Boss@Example.com", " eva@example.com "}, "")
	if !auth.IsEvaluator("boss@example.com") {
		t.Fatal("allow-list must match case-insensitively")
	}
	if !auth.IsEvaluator("eva@example.com") {
		t.Fatal("allow-list entries must be trimmed")
	}
	if auth.IsEvaluator("petr@example.com") {
		t.Fatal("unlisted identity granted access")
	}
	if auth.IsEvaluator(AnonymousIdentity) || auth.IsEvaluator("") {
		t.Fatal("anonymous must never be an evaluator")
	}
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("open-sesame"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	auth := NewAuthService(nil, string(hash))
	if err := auth.Login("open-sesame"); err != nil {
		t.Fatalf("correct password rejected: %v", err)
	}
	if se, ok := AsServiceError(auth.Login("wrong")); !ok || se.Code != ErrorUnauthorized {
		t.Fatal("wrong password must be unauthorized")
	}

	unconfigured := NewAuthService(nil, "")
	if se, ok := AsServiceError(unconfigured.Login("any")); !ok || se.Code != ErrorInvalid {
		t.Fatal("login without a configured hash must be invalid")
	}
}
