package google

import (
	"fmt"
	"strings"

	"contador/internal/core"
)

// Accepted header names per column, compared case-insensitively.
var (
	headerDate        = []string{"Fecha", "Date"}
	headerDescription = []string{"Descripción", "Descripcion", "Description"}
	headerAmount      = []string{"Monto", "Importe", "Amount"}
	headerCategory    = []string{"Categoría", "Categoria", "Category"}
	headerSubcategory = []string{"Subcategoría", "Subcategoria", "Subcategory"}
	headerPayment     = []string{"Método de pago", "Metodo de pago", "Método", "Payment"}
	headerNotes       = []string{"Notas", "Notes"}
)

// parseTransactions converts a values matrix (as returned by the Sheets API)
// into transactions within [from, to]. The first row must be a header naming at
// least the date, description, amount and category columns. Rows that fail
// validation are counted in skipped and left out.
func parseTransactions(values [][]interface{}, familyID int64, from, to core.Date) (txs []core.Transaction, skipped int, err error) {
	if len(values) == 0 {
		return nil, 0, nil
	}
	headers := toStrings(values[0])
	cols := map[string]int{
		"date":        indexOfAny(headers, headerDate),
		"description": indexOfAny(headers, headerDescription),
		"amount":      indexOfAny(headers, headerAmount),
		"category":    indexOfAny(headers, headerCategory),
	}
	var missing []string
	for _, name := range []string{"date", "description", "amount", "category"} {
		if cols[name] == -1 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, 0, fmt.Errorf("unexpected transactions header: missing %s; got headers=%v", strings.Join(missing, ","), headers)
	}
	colSub := indexOfAny(headers, headerSubcategory)
	colPay := indexOfAny(headers, headerPayment)
	colNotes := indexOfAny(headers, headerNotes)

	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		if isBlank(row) {
			continue
		}
		tx, perr := core.ParseTransaction(familyID, core.TransactionFields{
			Date:          safeGet(row, cols["date"]),
			Description:   safeGet(row, cols["description"]),
			Amount:        safeGet(row, cols["amount"]),
			Category:      safeGet(row, cols["category"]),
			Subcategory:   safeGet(row, colSub),
			PaymentMethod: safeGet(row, colPay),
			Notes:         safeGet(row, colNotes),
		})
		if perr != nil {
			skipped++
			continue
		}
		if tx.Date.Before(from.Time) || tx.Date.After(to.Time) {
			continue
		}
		// Row number doubles as a stable identifier.
		tx.ID = int64(i + 1)
		txs = append(txs, tx)
	}
	return txs, skipped, nil
}

func toStrings(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		if v == nil {
			continue
		}
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOfAny(arr []string, targets []string) int {
	for _, t := range targets {
		if i := indexOf(arr, t); i >= 0 {
			return i
		}
	}
	return -1
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

func isBlank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}
