package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/kawaismp/authgate/internal/store/core"
)

func TestCreateAndFindCaseInsensitive(t *testing.T) {
	s := New()
	ctx := context.Background()

	acct, err := s.CreateAccount(ctx, "Steve", "hunter22")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if acct.ID == "" || !acct.HasPassword() {
		t.Fatalf("cuenta incompleta: %+v", acct)
	}

	got, err := s.FindByUsername(ctx, "sTeVe")
	if err != nil || got.ID != acct.ID {
		t.Fatalf("FindByUsername = (%+v, %v)", got, err)
	}

	if _, err := s.CreateAccount(ctx, "STEVE", "otra-clave"); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("duplicado case-insensitive debía dar ErrConflict, dio %v", err)
	}
}

func TestVerifyPassword(t *testing.T) {
	s := New()
	acct, _ := s.CreateAccount(context.Background(), "Steve", "hunter22")

	if !s.VerifyPassword("hunter22", *acct.PasswordHash) {
		t.Fatalf("la contraseña correcta debía verificar")
	}
	if s.VerifyPassword("incorrecta", *acct.PasswordHash) {
		t.Fatalf("una contraseña incorrecta no debe verificar")
	}
}

func TestLinkLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	acct, _ := s.CreateAccount(ctx, "Steve", "hunter22")

	if err := s.LinkXbox(ctx, acct.ID, "2535400000001"); err != nil {
		t.Fatalf("LinkXbox: %v", err)
	}
	if got, err := s.FindByXboxID(ctx, "2535400000001"); err != nil || got.ID != acct.ID {
		t.Fatalf("FindByXboxID = (%+v, %v)", got, err)
	}

	if err := s.LinkDiscord(ctx, acct.ID, "123456789012345678"); err != nil {
		t.Fatalf("LinkDiscord: %v", err)
	}
	if n, _ := s.CountByDiscordID(ctx, "123456789012345678"); n != 1 {
		t.Fatalf("CountByDiscordID = %d", n)
	}
	if got, err := s.FindByDiscordID(ctx, "123456789012345678"); err != nil || got.ID != acct.ID {
		t.Fatalf("FindByDiscordID = (%+v, %v)", got, err)
	}

	if err := s.UnlinkXbox(ctx, acct.ID); err != nil {
		t.Fatalf("UnlinkXbox: %v", err)
	}
	if _, err := s.FindByXboxID(ctx, "2535400000001"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("el xbox id debía soltarse, err = %v", err)
	}
}

func TestFindMissing(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.FindByUsername(ctx, "nadie"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if _, err := s.FindByID(ctx, "no-existe"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if err := s.LinkXbox(ctx, "no-existe", "1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestClonesAreIsolated(t *testing.T) {
	s := New()
	ctx := context.Background()
	acct, _ := s.CreateAccount(ctx, "Steve", "hunter22")

	// Mutar la copia no toca el estado interno.
	acct.Username = "Hacker"
	got, _ := s.FindByID(ctx, acct.ID)
	if got.Username != "Steve" {
		t.Fatalf("el store devolvió un puntero compartido")
	}
}
