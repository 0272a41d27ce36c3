package purchase

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// InvalidEmail replaces a generated address to exercise validation downstream.
const InvalidEmail = "correo_invalido@@"

var Header = []string{
	"id_transaccion", "fecha_emision", "nombre", "correo", "telefono",
	"direccion", "ciudad", "cantidad", "monto", "pago", "estado_pago",
	"ip", "timestamp", "observaciones",
}

var (
	cities        = []string{"Bogotá", "Medellín", "Cali", "Barranquilla", "Bucaramanga", "Cartagena", "Pereira", "Manizales"}
	paymentKinds  = []string{"completo", "fraccionado"}
	paymentStatus = []string{"exitoso", "fallido"}
	notes         = []string{"Cliente frecuente", "Promoción aplicada", "Cliente nuevo", ""}
)

// Purchase is one synthetic transaction. Amount is in Colombian pesos.
type Purchase struct {
	TransactionID int
	IssuedOn      string
	Name          string
	Email         string
	Phone         string
	Address       string
	City          string
	Quantity      int
	Amount        int
	Payment       string
	PaymentStatus string
	IP            string
	Timestamp     string
	Notes         string
}

func (p Purchase) row() []string {
	return []string{
		strconv.Itoa(p.TransactionID), p.IssuedOn, p.Name, p.Email, p.Phone,
		p.Address, p.City, strconv.Itoa(p.Quantity), strconv.Itoa(p.Amount),
		p.Payment, p.PaymentStatus, p.IP, p.Timestamp, p.Notes,
	}
}

type Generator struct {
	faker       *gofakeit.Faker
	invalidRate float64
}

// NewGenerator returns a Generator seeded with seed. A zero seed picks a
// random one.
func NewGenerator(seed uint64) *Generator {
	return &Generator{faker: gofakeit.New(seed), invalidRate: 0.1}
}

// Next returns a purchase issued at now.
func (g *Generator) Next(now time.Time) Purchase {
	f := g.faker
	quantity := f.IntRange(1, 10)

	p := Purchase{
		TransactionID: f.IntRange(100000, 999999),
		IssuedOn:      now.Format("2006-01-02"),
		Name:          f.Name(),
		Email:         f.Email(),
		Phone:         f.Phone(),
		Address:       f.Street(),
		City:          f.RandomString(cities),
		Quantity:      quantity,
		Amount:        quantity * f.IntRange(10000, 50000),
		Payment:       f.RandomString(paymentKinds),
		PaymentStatus: f.RandomString(paymentStatus),
		IP:            f.IPv4Address(),
		Timestamp:     now.Format("2006-01-02 15:04:05"),
		Notes:         f.RandomString(notes),
	}
	if f.Float64() < g.invalidRate {
		p.Email = InvalidEmail
	}
	return p
}

// WriteFiles creates dir if needed and writes n purchases to
// compras_YYYYMMDD_HHMM.csv (';' delimited) next to a
// log_errores_YYYYMMDD_HHMM.log holding one line per row that could not be
// written. It returns both paths.
func (g *Generator) WriteFiles(dir string, n int, now time.Time) (csvPath, logPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create output dir: %w", err)
	}

	stamp := now.Format("20060102_1504")
	csvPath = filepath.Join(dir, "compras_"+stamp+".csv")
	logPath = filepath.Join(dir, "log_errores_"+stamp+".log")

	csvFile, err := os.Create(csvPath)
	if err != nil {
		return "", "", fmt.Errorf("create purchases file: %w", err)
	}
	defer csvFile.Close()

	logFile, err := os.Create(logPath)
	if err != nil {
		return "", "", fmt.Errorf("create error log: %w", err)
	}
	defer logFile.Close()

	w := csv.NewWriter(csvFile)
	w.Comma = ';'
	if err := w.Write(Header); err != nil {
		return "", "", fmt.Errorf("write header: %w", err)
	}

	for i := range n {
		if err := w.Write(g.Next(now).row()); err != nil {
			fmt.Fprintf(logFile, "transaction %d: %v\n", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", "", fmt.Errorf("write purchases file: %w", err)
	}
	return csvPath, logPath, csvFile.Sync()
}
