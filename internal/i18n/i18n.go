// Package i18n holds the user-facing messages of yen-lens.
//
// Messages are registered in golang.org/x/text catalogs for Spanish (the
// default display language) and English. Keys are stable identifiers; the
// Spanish catalog carries the texts shown to travelers.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Key identifies a user-facing message
type Key string

const (
	InvalidAmount      Key = "invalid-amount"
	CameraDenied       Key = "camera-denied"
	CameraNotFound     Key = "camera-not-found"
	CameraNotReadable  Key = "camera-not-readable"
	CameraOverconstr   Key = "camera-overconstrained"
	CameraUnexpected   Key = "camera-unexpected"
	AnalysisFailed     Key = "analysis-failed"
	NoTextDetected     Key = "no-text-detected"
	NoPricesDetected   Key = "no-prices-detected"
	TranslationHeading Key = "translation-heading"
	PricesHeading      Key = "prices-heading"
	ConversionReply    Key = "conversion-reply"
	BotHelp            Key = "bot-help"
	ColumnYen          Key = "column-yen"
	ColumnEuro         Key = "column-euro"
)

// DefaultLanguage is the display language used when none is configured
var DefaultLanguage = language.Spanish

var catalogs = catalog.NewBuilder(catalog.Fallback(DefaultLanguage))

func set(tag language.Tag, key Key, msg string) {
	if err := catalogs.SetString(tag, string(key), msg); err != nil {
		panic(err)
	}
}

func init() {
	es := language.Spanish
	set(es, InvalidAmount, "Por favor, introduce un número positivo válido.")
	set(es, CameraDenied, "Permiso de cámara denegado. Permite el acceso en la configuración de tu navegador.")
	set(es, CameraNotFound, "No se encontró una cámara compatible en tu dispositivo.")
	set(es, CameraNotReadable, "Tu cámara podría estar en uso por otra aplicación.")
	set(es, CameraOverconstr, "La cámara trasera no está disponible en tu dispositivo.")
	set(es, CameraUnexpected, "Ocurrió un error inesperado con la cámara: %s")
	set(es, AnalysisFailed, "Error al obtener la traducción. Por favor, inténtalo de nuevo.")
	set(es, NoTextDetected, "No se detectó texto.")
	set(es, NoPricesDetected, "No se detectaron precios.")
	set(es, TranslationHeading, "Traducción (Español)")
	set(es, PricesHeading, "Conversión de Precios")
	set(es, ConversionReply, "%s JPY = %s")
	set(es, BotHelp, "Envía una cantidad en yenes para convertirla a euros, o una foto de un texto en japonés con precios.")
	set(es, ColumnYen, "Yen Japonés (JPY)")
	set(es, ColumnEuro, "Euros (EUR)")

	en := language.English
	set(en, InvalidAmount, "Please enter a valid positive number.")
	set(en, CameraDenied, "Camera permission denied. Allow access in your settings.")
	set(en, CameraNotFound, "No compatible camera was found on your device.")
	set(en, CameraNotReadable, "Your camera may be in use by another application.")
	set(en, CameraOverconstr, "The rear camera is not available on your device.")
	set(en, CameraUnexpected, "An unexpected camera error occurred: %s")
	set(en, AnalysisFailed, "Could not get the translation. Please try again.")
	set(en, NoTextDetected, "No text detected.")
	set(en, NoPricesDetected, "No prices detected.")
	set(en, TranslationHeading, "Translation (Spanish)")
	set(en, PricesHeading, "Price Conversion")
	set(en, ConversionReply, "%s JPY = %s")
	set(en, BotHelp, "Send an amount in yen to convert it to euros, or a photo of Japanese text with prices.")
	set(en, ColumnYen, "Japanese Yen (JPY)")
	set(en, ColumnEuro, "Euros (EUR)")
}

// Translator renders messages in one display language
type Translator struct {
	tag     language.Tag
	printer *message.Printer
}

// New returns a Translator for lang (a BCP 47 tag such as "es" or "en").
// Unknown or unsupported languages fall back to Spanish.
func New(lang string) *Translator {
	tag := DefaultLanguage
	if lang != "" {
		if parsed, err := language.Parse(lang); err == nil {
			supported := catalogs.Languages()
			_, index, confidence := language.NewMatcher(supported).Match(parsed)
			if confidence != language.No {
				tag = supported[index]
			}
		}
	}
	return &Translator{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(catalogs)),
	}
}

// Language returns the display language in use
func (t *Translator) Language() language.Tag {
	return t.tag
}

// T renders the message for key
func (t *Translator) T(key Key, args ...any) string {
	return t.printer.Sprintf(string(key), args...)
}
