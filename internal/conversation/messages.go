package conversation

import (
	"fmt"
	"strings"

	"debtbot/internal/domain"
)

const (
	OnboardingText = "Hola 👋 Soy tu asistente de trámites vehiculares. Te ayudo a consultar deudas, sanciones, " +
		"fecha límite y a generar el pago en minutos. ¿Cuál es la placa del vehículo? (ej.: ABC123 o ABC12D)"

	DeclinedText      = "Hecho. ¿Quieres hacer otra consulta?"
	AudioText         = "Por ahora no podemos procesar audios 🙏. Envíame tu consulta en texto por favor"
	DefaultText       = "¿En qué más te puedo ayudar? 🤔"
	LookupFailedText  = "Lo siento 🙏, no pude consultar la deuda en este momento. Intenta de nuevo en unos minutos."
	ExtractFailedText = "Lo siento 🙏, no pude leer tu mensaje. ¿Me escribes la placa del vehículo? (ej.: ABC123)"
	PaymentFailedText = "Lo siento 🙏, no pude generar el enlace de pago. Intenta de nuevo en unos minutos."
	MissingReportText = "No encontré una consulta reciente para generar el pago. ¿Me confirmas la placa del vehículo? (ej.: ABC123)"

	noDebtFormat      = "No encontré información de deuda para la placa %s. ¿Deseas intentar con otra placa?"
	paymentLinkFormat = "¡Perfecto! Ya generé tu enlace de pago para la placa %s.\n" +
		"Referencia de pago: %s\n" +
		"Transacción: %s\n" +
		"Paga en línea aquí: %s\n" +
		"Gracias por usar nuestro servicio."
)

func NoDebtText(plate string) string {
	return fmt.Sprintf(noDebtFormat, plate)
}

func PaymentLinkText(plate string, tx domain.Transaction) string {
	return fmt.Sprintf(paymentLinkFormat, plate, tx.PaymentReference, tx.TransactionID, tx.URL)
}

// FallbackSummary is the deterministic debt summary used when drafting fails
// or returns nothing. Penalty, interest and discount lines appear only when
// the amount is greater than zero.
func FallbackSummary(line domain.DebtLine) string {
	lines := []string{
		fmt.Sprintf("Hola, tu vehículo con placa %s tiene una vigencia hasta %s.", line.Plate, line.Period),
		fmt.Sprintf("Matrícula: %s, %s", line.Municipality, line.Department),
		"Importes:",
	}
	optional := []struct {
		label  string
		amount domain.Amount
	}{
		{"Sanción", line.Penalty},
		{"Interés", line.Interest},
		{"Descuento", line.Discount},
		{"Descuento sanción", line.PenaltyDisc},
		{"Descuento interés", line.InterestDisc},
	}
	for _, o := range optional {
		if o.amount.Positive() {
			lines = append(lines, fmt.Sprintf("• %s: %s", o.label, cop(o.amount)))
		}
	}
	lines = append(lines,
		"• Total: "+cop(line.Total),
		"Fecha límite: "+FormatDDMMYYYY(line.DueDate),
		"¡No olvides realizarlo a tiempo!",
	)
	return strings.Join(lines, "\n")
}
