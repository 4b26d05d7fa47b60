package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category is the closed set of spending categories. Identity is the
// constant itself; Label and Name are derived display properties.
type Category int

const (
	Almacen Category = iota + 1
	Vehiculos
	Hogar
	Salud
	Educacion
	Ocio
	Ropa
	Otros
)

type categoryInfo struct {
	label         string // canonical storage key
	name          string
	subcategories []string
}

var categoryTable = map[Category]categoryInfo{
	Almacen:   {"🛒 Almacén", "Almacén", []string{"Supermercado", "Verdulería", "Carnicería", "Panadería", "Delivery comida", "Kiosco", "Otros"}},
	Vehiculos: {"🚗 Vehículos", "Vehículos", []string{"Combustible", "Mantenimiento", "Reparaciones", "Seguro", "Patente", "Estacionamiento", "Peajes", "Lavado", "Otros"}},
	Hogar:     {"🏠 Hogar", "Hogar", []string{"Alquiler", "Luz", "Agua", "Gas", "Internet", "Teléfono", "Expensas", "Reparaciones", "Otros"}},
	Salud:     {"👨‍⚕️ Salud", "Salud", []string{"Obra social", "Medicamentos", "Consultas médicas", "Odontólogo", "Óptica", "Kinesiología", "Otros"}},
	Educacion: {"📚 Educación", "Educación", []string{"Cuota escolar", "Útiles", "Libros", "Cursos", "Universidad", "Transporte escolar", "Otros"}},
	Ocio:      {"🎉 Ocio", "Ocio", []string{"Restaurantes", "Cine", "Streaming", "Deportes", "Viajes", "Regalos", "Otros"}},
	Ropa:      {"👕 Ropa", "Ropa", []string{"Ropa adultos", "Ropa niños", "Calzado", "Accesorios", "Otros"}},
	Otros:     {"💳 Otros", "Otros", []string{"Impuestos", "Seguros", "Préstamos", "Varios"}},
}

// AllCategories lists every category in declaration order.
func AllCategories() []Category {
	return []Category{Almacen, Vehiculos, Hogar, Salud, Educacion, Ocio, Ropa, Otros}
}

// Valid reports whether c is one of the declared categories.
func (c Category) Valid() bool {
	_, ok := categoryTable[c]
	return ok
}

// Label returns the canonical stored value, emoji included.
func (c Category) Label() string {
	if info, ok := categoryTable[c]; ok {
		return info.label
	}
	return ""
}

// Name returns the label without its emoji prefix.
func (c Category) Name() string {
	if info, ok := categoryTable[c]; ok {
		return info.name
	}
	return ""
}

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return c.Label()
}

// Subcategories returns a copy of the category's subcategory list.
func (c Category) Subcategories() []string {
	info, ok := categoryTable[c]
	if !ok {
		return nil
	}
	out := make([]string, len(info.subcategories))
	copy(out, info.subcategories)
	return out
}

// ParseCategory accepts the canonical label or the plain name, case-insensitively.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range AllCategories() {
		info := categoryTable[c]
		if s == info.label || strings.EqualFold(s, info.name) || strings.EqualFold(s, info.label) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCategory, int(c))
	}
	return []byte(c.Label()), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// PaymentMethod is the stored payment method label.
type PaymentMethod string

const (
	Efectivo       PaymentMethod = "Efectivo"
	TarjetaDebito  PaymentMethod = "Tarjeta débito"
	TarjetaCredito PaymentMethod = "Tarjeta crédito"
	Transferencia  PaymentMethod = "Transferencia"
	OtroMedio      PaymentMethod = "Otro"
)

// PaymentMethods lists the known payment methods.
func PaymentMethods() []PaymentMethod {
	return []PaymentMethod{Efectivo, TarjetaDebito, TarjetaCredito, Transferencia, OtroMedio}
}

func (p PaymentMethod) Valid() bool {
	for _, m := range PaymentMethods() {
		if p == m {
			return true
		}
	}
	return false
}

type (
	Date struct {
		time.Time
	}

	// Transaction is a read-only ledger entry owned by the storage layer.
	Transaction struct {
		ID            int64
		FamilyID      int64
		Amount        decimal.Decimal
		Date          Date
		Description   string
		Category      Category
		Subcategory   string
		PaymentMethod PaymentMethod
		Notes         string
	}

	// Income is a household income entry, used to compute the monthly balance.
	Income struct {
		ID          int64
		FamilyID    int64
		MemberID    int64
		Amount      decimal.Decimal
		Date        Date
		Description string
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrInvalidPayment   = errors.New("invalid payment method")
	ErrInvalidFamily    = errors.New("invalid family id")
	ErrInvalidPeriod    = errors.New("invalid period")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate reads a YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(time.DateOnly)
}

// Period returns the year+month the date falls in.
func (d Date) Period() Period {
	return Period{Year: d.Year(), Month: d.Month()}
}

func (t Transaction) Validate() error {
	if t.FamilyID <= 0 {
		return ErrInvalidFamily
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len([]rune(t.Description)) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !t.Category.Valid() {
		return ErrUnknownCategory
	}
	if t.PaymentMethod != "" && !t.PaymentMethod.Valid() {
		return ErrInvalidPayment
	}
	if len([]rune(t.Notes)) > 500 {
		return errors.New("notes too long (max 500 characters)")
	}
	return nil
}
