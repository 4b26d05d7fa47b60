package core

import (
	"fmt"
	"strings"
)

// TransactionFields is a transaction as read from a spreadsheet or CSV row.
type TransactionFields struct {
	Date          string
	Description   string
	Amount        string
	Category      string
	Subcategory   string
	PaymentMethod string
	Notes         string
}

// ParseTransaction validates raw fields into a Transaction for familyID.
// An empty payment method defaults to Efectivo.
func ParseTransaction(familyID int64, f TransactionFields) (Transaction, error) {
	date, err := ParseDate(f.Date)
	if err != nil {
		return Transaction{}, err
	}
	amount, err := ParseAmount(f.Amount)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse amount %q: %w", f.Amount, err)
	}
	cat, err := ParseCategory(f.Category)
	if err != nil {
		return Transaction{}, err
	}
	method := PaymentMethod(strings.TrimSpace(f.PaymentMethod))
	if method == "" {
		method = Efectivo
	}
	tx := Transaction{
		FamilyID:      familyID,
		Amount:        amount,
		Date:          date,
		Description:   strings.TrimSpace(f.Description),
		Category:      cat,
		Subcategory:   strings.TrimSpace(f.Subcategory),
		PaymentMethod: method,
		Notes:         strings.TrimSpace(f.Notes),
	}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}
