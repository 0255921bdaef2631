package payments

import (
	"testing"

	"github.com/stripe/stripe-go/v76"

	"github.com/devportal/devportal/internal/model"
)

func TestMergeTransactions(t *testing.T) {
	invoices := []*stripe.Invoice{
		{
			ID:               "in_paid",
			AmountPaid:       2500,
			Currency:         "usd",
			Status:           stripe.InvoiceStatusPaid,
			Created:          200,
			InvoicePDF:       "https://pay.example/in_paid.pdf",
			HostedInvoiceURL: "https://pay.example/in_paid",
			Lines: &stripe.InvoiceLineItemList{Data: []*stripe.InvoiceLineItem{
				{Description: "Credits Top-up x1"},
			}},
		},
		{ID: "in_draft", Status: stripe.InvoiceStatusDraft, Created: 500},
		{ID: "in_open", Status: stripe.InvoiceStatusOpen, Currency: "eur", Created: 100, Description: "Manual invoice"},
	}
	sessions := []*stripe.CheckoutSession{
		{
			ID:            "cs_meta",
			PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
			AmountTotal:   1100,
			Metadata:      map[string]string{"amount": "10"},
			Created:       300,
		},
		{
			ID:            "cs_total",
			PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
			AmountTotal:   750,
			Currency:      "usd",
			Created:       50,
		},
		{
			ID:            "cs_invoiced",
			PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
			Invoice:       &stripe.Invoice{ID: "in_paid"},
			Created:       400,
		},
		{ID: "cs_unpaid", PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid, Created: 600},
	}

	got := mergeTransactions(invoices, sessions)

	wantOrder := []string{"cs_meta", "in_paid", "in_open", "cs_total"}
	if len(got) != len(wantOrder) {
		t.Fatalf("expected %d transactions, got %d: %+v", len(wantOrder), len(got), got)
	}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, got[i].ID, id)
		}
	}

	byID := make(map[string]model.Transaction)
	for _, tx := range got {
		byID[tx.ID] = tx
	}

	paid := byID["in_paid"]
	if paid.Amount != 25 || paid.Currency != "USD" || paid.Type != model.TransactionInvoice {
		t.Errorf("unexpected paid invoice row: %+v", paid)
	}
	if paid.Description != "Credits Top-up x1" {
		t.Errorf("description = %q, want first line description", paid.Description)
	}
	if paid.InvoicePDF == nil || *paid.InvoicePDF != "https://pay.example/in_paid.pdf" {
		t.Errorf("invoice pdf = %v", paid.InvoicePDF)
	}

	open := byID["in_open"]
	if open.Description != "Manual invoice" || open.Currency != "EUR" || open.InvoicePDF != nil {
		t.Errorf("unexpected open invoice row: %+v", open)
	}

	meta := byID["cs_meta"]
	if meta.Amount != 10 || meta.Description != "Credits Top-up - $10.00" || meta.Currency != "USD" {
		t.Errorf("metadata amount should win: %+v", meta)
	}
	if meta.Type != model.TransactionCheckout || meta.Status != "paid" {
		t.Errorf("unexpected checkout row: %+v", meta)
	}

	total := byID["cs_total"]
	if total.Amount != 7.5 || total.Description != "Credits Top-up - $7.50" {
		t.Errorf("amount_total fallback: %+v", total)
	}
}

func TestMergeTransactions_Empty(t *testing.T) {
	got := mergeTransactions(nil, nil)
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}
