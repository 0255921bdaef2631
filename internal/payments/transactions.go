package payments

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"

	"github.com/devportal/devportal/internal/model"
)

// mergeTransactions builds billing history from paid or open invoices and
// paid checkout sessions that produced no invoice, newest first.
func mergeTransactions(invoices []*stripe.Invoice, sessions []*stripe.CheckoutSession) []model.Transaction {
	out := make([]model.Transaction, 0, len(invoices)+len(sessions))

	for _, inv := range invoices {
		if inv == nil {
			continue
		}
		if inv.Status != stripe.InvoiceStatusPaid && inv.Status != stripe.InvoiceStatusOpen {
			continue
		}

		out = append(out, model.Transaction{
			ID:               inv.ID,
			Amount:           FromCents(inv.AmountPaid),
			Currency:         strings.ToUpper(string(inv.Currency)),
			Status:           string(inv.Status),
			Created:          inv.Created,
			InvoicePDF:       optional(inv.InvoicePDF),
			HostedInvoiceURL: optional(inv.HostedInvoiceURL),
			Description:      invoiceDescription(inv),
			Type:             model.TransactionInvoice,
		})
	}

	for _, cs := range sessions {
		if cs == nil || cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid || cs.Invoice != nil {
			continue
		}

		amount := sessionAmount(cs)
		currency := string(cs.Currency)
		if currency == "" {
			currency = currencyUSD
		}

		out = append(out, model.Transaction{
			ID:          cs.ID,
			Amount:      amount.InexactFloat64(),
			Currency:    strings.ToUpper(currency),
			Status:      model.PaymentStatusPaid,
			Created:     cs.Created,
			Description: fmt.Sprintf("%s - $%s", productName, amount.StringFixed(2)),
			Type:        model.TransactionCheckout,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Created > out[j].Created
	})

	return out
}

func invoiceDescription(inv *stripe.Invoice) string {
	if inv.Description != "" {
		return inv.Description
	}
	if inv.Lines != nil && len(inv.Lines.Data) > 0 && inv.Lines.Data[0] != nil && inv.Lines.Data[0].Description != "" {
		return inv.Lines.Data[0].Description
	}
	return productName
}

// sessionAmount prefers the amount recorded in metadata at checkout time.
func sessionAmount(cs *stripe.CheckoutSession) decimal.Decimal {
	if raw := cs.Metadata[model.MetadataAmount]; raw != "" {
		if d, err := decimal.NewFromString(raw); err == nil {
			return d
		}
	}
	return decimal.New(cs.AmountTotal, -2)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
