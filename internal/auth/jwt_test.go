package auth

import "testing"

func TestGenerateAndValidateToken(t *testing.T) {
	token, err := GenerateToken("secret", 1, "admin", true)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	claims, err := ValidateToken("secret", token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.UserID != 1 || claims.Username != "admin" || !claims.IsAdmin {
		t.Fatalf("claims = %+v, want UserID=1 Username=admin IsAdmin=true", claims)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("secret", 1, "admin", true)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if _, err := ValidateToken("different-secret", token); err == nil {
		t.Fatal("expected ValidateToken to reject a token signed with a different secret")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	if _, err := ValidateToken("secret", "not-a-jwt"); err == nil {
		t.Fatal("expected ValidateToken to reject a malformed token")
	}
}
