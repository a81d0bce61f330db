package i18n

// Message keys. Error codes returned by the API double as keys.
const (
	KeyInvalidCredentials     = "invalid_credentials"
	KeyInvalidRefreshToken    = "invalid_refresh_token"
	KeyNotAuthenticated       = "not_authenticated"
	KeyAccountLocked          = "account_locked"
	KeyAccountInactive        = "account_inactive"
	KeyEmailNotConfirmed      = "email_not_confirmed"
	KeyPhoneNotConfirmed      = "phone_not_confirmed"
	KeyEmailAlreadyRegistered = "email_already_registered"
	KeyInvalidCode            = "invalid_code"
	KeyInvalidEmail           = "invalid_email"
	KeyValidationFailed       = "validation_failed"
	KeyBadRequest             = "bad_request"
	KeyRateLimited            = "rate_limited"
	KeyInternal               = "internal_error"
	KeyNotFound               = "not_found"

	// Request field errors, keyed "invalid_<json field>".
	KeyInvalidPassword    = "invalid_password"
	KeyInvalidNewPassword = "invalid_new_password"
	KeyInvalidPhoneNumber = "invalid_phone_number"
)

var english = map[string]string{
	KeyInvalidCredentials:     "Invalid email or password.",
	KeyInvalidRefreshToken:    "The refresh token is invalid or has expired.",
	KeyNotAuthenticated:       "Authentication is required.",
	KeyAccountLocked:          "The account is temporarily locked. Try again later.",
	KeyAccountInactive:        "The account is disabled.",
	KeyEmailNotConfirmed:      "Confirm your email address before signing in.",
	KeyPhoneNotConfirmed:      "Confirm your phone number before signing in.",
	KeyEmailAlreadyRegistered: "An account with this email already exists.",
	KeyInvalidCode:            "The code is invalid or has expired.",
	KeyInvalidEmail:           "The email address is not valid.",
	KeyValidationFailed:       "The request could not be validated.",
	KeyBadRequest:             "The request body is malformed.",
	KeyRateLimited:            "Too many requests. Slow down.",
	KeyInternal:               "Something went wrong.",
	KeyNotFound:               "Not found.",
	KeyInvalidPassword:        "A password is required.",
	KeyInvalidNewPassword:     "A new password is required.",
	KeyInvalidPhoneNumber:     "The phone number must be in international format, like +15551234567.",

	"password_too_short":                 "The password is too short.",
	"password_requires_digit":            "The password must contain a digit.",
	"password_requires_lower":            "The password must contain a lowercase letter.",
	"password_requires_upper":            "The password must contain an uppercase letter.",
	"password_requires_non_alphanumeric": "The password must contain a symbol.",
	"password_requires_unique_chars":     "The password needs more distinct characters.",
	"password_too_long":                  "The password is too long.",
}

var spanish = map[string]string{
	KeyInvalidCredentials:     "Correo electrónico o contraseña incorrectos.",
	KeyInvalidRefreshToken:    "El token de actualización no es válido o ha caducado.",
	KeyNotAuthenticated:       "Se requiere autenticación.",
	KeyAccountLocked:          "La cuenta está bloqueada temporalmente. Inténtalo más tarde.",
	KeyAccountInactive:        "La cuenta está deshabilitada.",
	KeyEmailNotConfirmed:      "Confirma tu correo electrónico antes de iniciar sesión.",
	KeyPhoneNotConfirmed:      "Confirma tu número de teléfono antes de iniciar sesión.",
	KeyEmailAlreadyRegistered: "Ya existe una cuenta con este correo electrónico.",
	KeyInvalidCode:            "El código no es válido o ha caducado.",
	KeyInvalidEmail:           "La dirección de correo no es válida.",
	KeyValidationFailed:       "No se pudo validar la solicitud.",
	KeyBadRequest:             "El cuerpo de la solicitud no es válido.",
	KeyRateLimited:            "Demasiadas solicitudes. Espera un momento.",
	KeyInternal:               "Algo salió mal.",
	KeyNotFound:               "No encontrado.",
	KeyInvalidPassword:        "Se requiere una contraseña.",
	KeyInvalidNewPassword:     "Se requiere una contraseña nueva.",
	KeyInvalidPhoneNumber:     "El número de teléfono debe estar en formato internacional, como +15551234567.",

	"password_too_short":                 "La contraseña es demasiado corta.",
	"password_requires_digit":            "La contraseña debe contener un dígito.",
	"password_requires_lower":            "La contraseña debe contener una letra minúscula.",
	"password_requires_upper":            "La contraseña debe contener una letra mayúscula.",
	"password_requires_non_alphanumeric": "La contraseña debe contener un símbolo.",
	"password_too_long":                  "La contraseña es demasiado larga.",
}
