// Package i18n holds the user-facing strings of the contacts client.
// Spanish is the default locale; English is also available.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Key identifies a localized message.
type Key string

const (
	AppTitle   Key = "app.title"
	AppLoading Key = "app.loading"
	SignOut    Key = "nav.sign_out"

	LoginTitle      Key = "login.title"
	SignUpTitle     Key = "login.signup_title"
	LoginEmail      Key = "login.email"
	LoginPassword   Key = "login.password"
	LoginSubmit     Key = "login.submit"
	SignUpSubmit    Key = "login.signup_submit"
	LoginSubmitting Key = "login.submitting"
	LoginFailed     Key = "login.failed"
	SignUpDone      Key = "login.signup_done"
	LoginToggleHint Key = "login.toggle_hint"
	LoginForgotHint Key = "login.forgot_hint"
	LoginRequired   Key = "login.required"
	LoginHelp       Key = "login.help"

	ResetTitle       Key = "reset.title"
	ResetPlaceholder Key = "reset.placeholder"
	ResetSubmit      Key = "reset.submit"
	ResetSubmitting  Key = "reset.submitting"
	ResetBack        Key = "reset.back"
	ResetSent        Key = "reset.sent"
	ResetFailed      Key = "reset.failed"

	PasswordTitle              Key = "password.title"
	PasswordNew                Key = "password.new"
	PasswordConfirm            Key = "password.confirm"
	PasswordNewPlaceholder     Key = "password.new_placeholder"
	PasswordConfirmPlaceholder Key = "password.confirm_placeholder"
	PasswordSubmit             Key = "password.submit"
	PasswordSubmitting         Key = "password.submitting"
	PasswordMismatch           Key = "password.mismatch"
	PasswordUpdated            Key = "password.updated"
	PasswordUpdateFailed       Key = "password.update_failed"
	PasswordMinLength          Key = "password.min_length"

	ContactsSearch     Key = "contacts.search"
	ContactsNew        Key = "contacts.new"
	ContactsEmpty      Key = "contacts.empty"
	ContactsNoResults  Key = "contacts.no_results"
	ContactsLoadFailed Key = "contacts.load_failed"
	ContactsHelp       Key = "contacts.help"
	SortName           Key = "sort.name"
	SortCreatedAt      Key = "sort.created_at"

	ContactCreated       Key = "contact.created"
	ContactUpdated       Key = "contact.updated"
	ContactDeleted       Key = "contact.deleted"
	ContactSaveFailed    Key = "contact.save_failed"
	ContactDeleteFailed  Key = "contact.delete_failed"
	ContactConfirmDelete Key = "contact.confirm_delete"
	ContactRequired      Key = "contact.required"
	ContactBusy          Key = "contact.busy"

	ModalCreateTitle Key = "modal.create_title"
	ModalEditTitle   Key = "modal.edit_title"
	ModalName        Key = "modal.name"
	ModalEmail       Key = "modal.email"
	ModalPhone       Key = "modal.phone"
	ModalCancel      Key = "modal.cancel"
	ModalSave        Key = "modal.save"
	ModalUpdate      Key = "modal.update"
	ModalSaving      Key = "modal.saving"

	ConfirmYes Key = "confirm.yes"
	ConfirmNo  Key = "confirm.no"
)

var spanish = map[Key]string{
	AppTitle:   "Mis Contactos",
	AppLoading: "Cargando...",
	SignOut:    "Cerrar Sesión",

	LoginTitle:      "Iniciar Sesión",
	SignUpTitle:     "Crear Cuenta",
	LoginEmail:      "Email",
	LoginPassword:   "Contraseña",
	LoginSubmit:     "Iniciar Sesión",
	SignUpSubmit:    "Registrarse",
	LoginSubmitting: "Enviando...",
	LoginFailed:     "Error al iniciar sesión",
	SignUpDone:      "¡Cuenta creada! Ya puedes iniciar sesión",
	LoginToggleHint: "ctrl+n: alternar entre iniciar sesión y registrarse",
	LoginForgotHint: "ctrl+r: ¿Olvidaste tu contraseña?",
	LoginRequired:   "Email y contraseña son obligatorios",
	LoginHelp:       "tab: siguiente campo • enter: enviar • esc: salir",

	ResetTitle:       "Recuperar Contraseña",
	ResetPlaceholder: "Ingresa tu correo electrónico",
	ResetSubmit:      "Enviar enlace de recuperación",
	ResetSubmitting:  "Enviando...",
	ResetBack:        "esc: Volver al inicio de sesión",
	ResetSent:        "¡Revisa tu correo electrónico para restablecer tu contraseña!",
	ResetFailed:      "Error al enviar el enlace de recuperación",

	PasswordTitle:              "Actualizar Contraseña",
	PasswordNew:                "Nueva Contraseña",
	PasswordConfirm:            "Confirmar Contraseña",
	PasswordNewPlaceholder:     "Ingresa tu nueva contraseña",
	PasswordConfirmPlaceholder: "Confirma tu nueva contraseña",
	PasswordSubmit:             "Actualizar Contraseña",
	PasswordSubmitting:         "Actualizando...",
	PasswordMismatch:           "Las contraseñas no coinciden",
	PasswordUpdated:            "¡Contraseña actualizada correctamente! Redirigiendo...",
	PasswordUpdateFailed:       "Error al actualizar la contraseña",
	PasswordMinLength:          "La contraseña debe tener al menos %d caracteres",

	ContactsSearch:     "Buscar contactos...",
	ContactsNew:        "+ Nuevo Contacto",
	ContactsEmpty:      "No hay contactos aún",
	ContactsNoResults:  "No se encontraron contactos",
	ContactsLoadFailed: "Error al cargar los contactos",
	ContactsHelp:       "/: buscar • n: nuevo • e: editar • d: eliminar • s: ordenar por nombre • f: ordenar por fecha • ctrl+o: cerrar sesión",
	SortName:           "Nombre",
	SortCreatedAt:      "Fecha",

	ContactCreated:       "Contacto creado",
	ContactUpdated:       "Contacto actualizado",
	ContactDeleted:       "Contacto eliminado",
	ContactSaveFailed:    "Error al guardar el contacto",
	ContactDeleteFailed:  "Error al eliminar el contacto",
	ContactConfirmDelete: "¿Estás seguro de que quieres eliminar este contacto?",
	ContactRequired:      "Nombre y email son obligatorios",
	ContactBusy:          "Operación en curso, espera un momento",

	ModalCreateTitle: "Agregar Nuevo Contacto",
	ModalEditTitle:   "Editar Contacto",
	ModalName:        "Nombre *",
	ModalEmail:       "Email *",
	ModalPhone:       "Teléfono",
	ModalCancel:      "esc: Cancelar",
	ModalSave:        "Guardar Contacto",
	ModalUpdate:      "Actualizar Contacto",
	ModalSaving:      "Guardando...",

	ConfirmYes: "y: Sí, eliminar",
	ConfirmNo:  "n: Cancelar",
}

var english = map[Key]string{
	AppTitle:   "My Contacts",
	AppLoading: "Loading...",
	SignOut:    "Sign Out",

	LoginTitle:      "Sign In",
	SignUpTitle:     "Create Account",
	LoginEmail:      "Email",
	LoginPassword:   "Password",
	LoginSubmit:     "Sign In",
	SignUpSubmit:    "Sign Up",
	LoginSubmitting: "Sending...",
	LoginFailed:     "Sign in failed",
	SignUpDone:      "Account created! You can sign in now",
	LoginToggleHint: "ctrl+n: switch between sign in and sign up",
	LoginForgotHint: "ctrl+r: Forgot your password?",
	LoginRequired:   "Email and password are required",
	LoginHelp:       "tab: next field • enter: submit • esc: quit",

	ResetTitle:       "Recover Password",
	ResetPlaceholder: "Enter your email address",
	ResetSubmit:      "Send recovery link",
	ResetSubmitting:  "Sending...",
	ResetBack:        "esc: Back to sign in",
	ResetSent:        "Check your email to reset your password!",
	ResetFailed:      "Could not send the recovery link",

	PasswordTitle:              "Update Password",
	PasswordNew:                "New Password",
	PasswordConfirm:            "Confirm Password",
	PasswordNewPlaceholder:     "Enter your new password",
	PasswordConfirmPlaceholder: "Confirm your new password",
	PasswordSubmit:             "Update Password",
	PasswordSubmitting:         "Updating...",
	PasswordMismatch:           "Passwords do not match",
	PasswordUpdated:            "Password updated! Redirecting...",
	PasswordUpdateFailed:       "Could not update the password",
	PasswordMinLength:          "Password must be at least %d characters",

	ContactsSearch:     "Search contacts...",
	ContactsNew:        "+ New Contact",
	ContactsEmpty:      "No contacts yet",
	ContactsNoResults:  "No contacts found",
	ContactsLoadFailed: "Could not load contacts",
	ContactsHelp:       "/: search • n: new • e: edit • d: delete • s: sort by name • f: sort by date • ctrl+o: sign out",
	SortName:           "Name",
	SortCreatedAt:      "Date",

	ContactCreated:       "Contact created",
	ContactUpdated:       "Contact updated",
	ContactDeleted:       "Contact deleted",
	ContactSaveFailed:    "Could not save the contact",
	ContactDeleteFailed:  "Could not delete the contact",
	ContactConfirmDelete: "Are you sure you want to delete this contact?",
	ContactRequired:      "Name and email are required",
	ContactBusy:          "Operation in progress, please wait",

	ModalCreateTitle: "Add New Contact",
	ModalEditTitle:   "Edit Contact",
	ModalName:        "Name *",
	ModalEmail:       "Email *",
	ModalPhone:       "Phone",
	ModalCancel:      "esc: Cancel",
	ModalSave:        "Save Contact",
	ModalUpdate:      "Update Contact",
	ModalSaving:      "Saving...",

	ConfirmYes: "y: Yes, delete",
	ConfirmNo:  "n: Cancel",
}

var cat = build()

func build() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.Spanish))
	for k, v := range spanish {
		if err := b.SetString(language.Spanish, string(k), v); err != nil {
			panic(err)
		}
	}
	for k, v := range english {
		if err := b.SetString(language.English, string(k), v); err != nil {
			panic(err)
		}
	}
	return b
}

// Translator renders messages for one locale.
type Translator struct {
	tag     language.Tag
	printer *message.Printer
}

// New returns a Translator for locale. Unsupported locales fall back to Spanish.
func New(locale string) *Translator {
	tag := language.Spanish
	if parsed, err := language.Parse(locale); err == nil {
		if base, _ := parsed.Base(); base.String() == "en" {
			tag = language.English
		}
	}
	return &Translator{tag: tag, printer: message.NewPrinter(tag, message.Catalog(cat))}
}

// Tag returns the resolved language.
func (t *Translator) Tag() language.Tag {
	return t.tag
}

// T renders the message for k with optional format arguments.
func (t *Translator) T(k Key, args ...any) string {
	return t.printer.Sprintf(string(k), args...)
}
