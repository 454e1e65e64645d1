package password

import (
	"strings"
	"testing"
)

func TestHashVerifyRoundTrip(t *testing.T) {
	phc, err := Hash(Default, "hunter22")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(phc, "$argon2id$v=19$") {
		t.Fatalf("formato PHC inesperado: %q", phc)
	}
	if !Verify("hunter22", phc) {
		t.Fatalf("la contraseña correcta debía verificar")
	}
	if Verify("hunter23", phc) {
		t.Fatalf("una contraseña incorrecta no debe verificar")
	}
}

func TestHashSaltsAreUnique(t *testing.T) {
	a, _ := Hash(Default, "hunter22")
	b, _ := Hash(Default, "hunter22")
	if a == b {
		t.Fatalf("dos hashes de la misma contraseña no deben coincidir")
	}
}

func TestHashEmptyPassword(t *testing.T) {
	if _, err := Hash(Default, ""); err == nil {
		t.Fatalf("contraseña vacía debía fallar")
	}
}

func TestVerifyMalformed(t *testing.T) {
	bad := []string{
		"",
		"no-es-phc",
		"$argon2i$v=19$m=65536,t=3,p=1$c2FsdA$ZGs",
		"$argon2id$v=18$m=65536,t=3,p=1$c2FsdA$ZGs",
		"$argon2id$v=19$m=65536$c2FsdA$ZGs",
		"$argon2id$v=19$m=65536,t=3,p=1$!!!$ZGs",
		"$argon2id$v=19$m=65536,t=3,p=1$c2FsdA$!!!",
	}
	for _, phc := range bad {
		if Verify("hunter22", phc) {
			t.Fatalf("PHC malformado verificó: %q", phc)
		}
	}
}
