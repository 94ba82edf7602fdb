package products

import (
	"errors"
	"testing"
)

func TestEnvCredentials(t *testing.T) {
	t.Setenv(DefaultTokenEnv, "  from-env \n")
	tok, err := EnvCredentials{}.Token(t.Context())
	if err != nil || tok != "from-env" {
		t.Errorf("Token = %q, %v", tok, err)
	}

	t.Setenv("OTHER_TOKEN", "")
	if _, err := (EnvCredentials{Var: "OTHER_TOKEN"}).Token(t.Context()); !errors.Is(err, ErrNoCredential) {
		t.Errorf("err = %v, want ErrNoCredential", err)
	}
}

func TestStaticCredentials(t *testing.T) {
	if tok, err := StaticCredentials("x").Token(t.Context()); err != nil || tok != "x" {
		t.Errorf("Token = %q, %v", tok, err)
	}
	if _, err := StaticCredentials("").Token(t.Context()); !errors.Is(err, ErrNoCredential) {
		t.Errorf("err = %v, want ErrNoCredential", err)
	}
}
