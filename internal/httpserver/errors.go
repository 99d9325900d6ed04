package httpserver

// Diagnostic messages for the webhook JSON body. They are for humans reading
// delivery logs in the Meta console, not a machine contract.
const (
	MsgNoSignature     = "Acceso no autorizado (sin firma)"
	MsgBadSignature    = "Encabezado de firma inválido"
	MsgUnauthorized    = "Acceso no autorizado"
	MsgBadBody         = "Cuerpo inválido"
	MsgForeignBusiness = "Application not found"
	MsgNotFound        = "Not found"
	MsgInternal        = "Error interno"
	MsgDuplicate       = "Mensaje ya procesado"
)
