package login

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/kawaismp/authgate/internal/store/core"
)

const (
	MinPasswordLen = 6
	MaxPasswordLen = 64
)

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,16}$`)

// ValidUsername aplica el formato canónico de nombre de cuenta.
func ValidUsername(name string) bool {
	return usernameRe.MatchString(name)
}

// FingerprintID deriva el id estable de una conexión a partir del nombre
// pedido. Dos conexiones que piden el mismo nombre obtienen el mismo id,
// que es lo que permite reconocer reconexiones en el session cache.
func FingerprintID(requestedName string) uuid.UUID {
	return uuid.NewMD5(uuid.NameSpaceOID, []byte("OfflinePlayer:"+requestedName))
}

// AnonymousName genera el display name temporal con el que la conexión
// espera en el backend de autenticación. 12 hex chars: único en la
// práctica y sin pista del nombre real.
func AnonymousName() string {
	raw := uuid.New()
	return hex.EncodeToString(raw[:6])
}

// CanonicalID devuelve el uuid persistente de la cuenta, o uno derivado
// del username si el id almacenado no parsea.
func CanonicalID(acct core.Account) uuid.UUID {
	if id, err := uuid.Parse(acct.ID); err == nil {
		return id
	}
	return FingerprintID(acct.Username)
}

func equalFold(a, b string) bool { return strings.EqualFold(a, b) }
