package core

// Account es la cuenta canónica del gateway. Inmutable para el resto del
// core: solo el repositorio la crea y la muta.
type Account struct {
	ID           string
	Username     string
	PasswordHash *string
	XboxUserID   *string
	DiscordID    *string
}

// Equal compara cuentas por ID.
func (a Account) Equal(b Account) bool { return a.ID == b.ID }

func (a Account) HasPassword() bool { return a.PasswordHash != nil && *a.PasswordHash != "" }

func (a Account) HasLinkedXbox() bool { return a.XboxUserID != nil && *a.XboxUserID != "" }

func (a Account) HasLinkedDiscord() bool { return a.DiscordID != nil && *a.DiscordID != "" }
