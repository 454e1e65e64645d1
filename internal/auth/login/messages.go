package login

// Mensajes enviados al cliente. El host decide cómo renderizarlos.
const (
	MsgLoginReminder      = "Usá /login <contraseña> o /register <contraseña> <contraseña> para entrar."
	MsgLoginTimeout       = "Tiempo de autenticación agotado."
	MsgLoggingIn          = "Verificando credenciales..."
	MsgInvalidCredentials = "Usuario o contraseña incorrectos."
	MsgTooManyAttempts    = "Demasiados intentos fallidos."
	MsgTryAgainLater      = "No pudimos procesar el pedido, probá de nuevo en un rato."
	MsgAlreadyLoggedIn    = "Ya estás autenticado."
	MsgInvalidUsername    = "El nombre debe tener 3 a 16 caracteres: letras, números o _."
	MsgInvalidPassword    = "La contraseña debe tener entre 6 y 64 caracteres."
	MsgPasswordMismatch   = "Las contraseñas no coinciden."
	MsgUsernameTaken      = "Ese nombre ya está registrado."
	MsgRegistrationLimit  = "Ya se registraron demasiadas cuentas desde esta dirección."
	MsgVerifyReminder     = "Vinculá tu cuenta de Discord con /link para asegurarla."
	MsgWelcomeFmt         = "¡Bienvenido, %s!"
)
