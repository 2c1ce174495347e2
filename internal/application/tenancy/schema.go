package tenancy

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/repository"
)

var columnRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Schema mapeo entre una entidad y su tabla. Columns es la lista blanca de columnas escribibles
// (sin id, tenant_id, created_at ni updated_at); ninguna clave fuera de ella llega al SQL.
type Schema[T any] struct {
	Table    string
	Resource string // nombre en auditoría; vacío = Table
	Columns  []string
	ToRow    func(*T) repository.Row
	FromRow  func(repository.Row) (*T, error)

	allowed map[string]struct{}
}

func (s *Schema[T]) validate() error {
	if !columnRe.MatchString(s.Table) {
		return fmt.Errorf("tenancy: tabla inválida %q", s.Table)
	}
	if s.ToRow == nil || s.FromRow == nil {
		return fmt.Errorf("tenancy: schema %s sin ToRow/FromRow", s.Table)
	}
	s.allowed = make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		if !columnRe.MatchString(c) {
			return fmt.Errorf("tenancy: columna inválida %q en %s", c, s.Table)
		}
		if _, managed := managedColumns[c]; managed {
			return fmt.Errorf("tenancy: columna %q la gestiona el repositorio", c)
		}
		s.allowed[c] = struct{}{}
	}
	return nil
}

func (s *Schema[T]) resource() string {
	if s.Resource != "" {
		return s.Resource
	}
	return s.Table
}

// writable filtra la fila a la lista blanca, conservando el id si viene.
func (s *Schema[T]) writable(row repository.Row) repository.Row {
	out := make(repository.Row, len(s.allowed)+4)
	for k, v := range row {
		if _, ok := s.allowed[k]; ok {
			out[k] = v
		}
	}
	if id, ok := row["id"]; ok {
		out["id"] = id
	}
	return out
}

// checkFields rechaza cualquier columna fuera de la lista blanca.
func (s *Schema[T]) checkFields(fields Fields) (repository.Row, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: sin campos para actualizar", domain.ErrInvalidInput)
	}
	out := make(repository.Row, len(fields)+1)
	for k, v := range fields {
		if _, ok := s.allowed[k]; !ok {
			return nil, fmt.Errorf("%w: columna no permitida %q", domain.ErrInvalidInput, k)
		}
		out[k] = v
	}
	return out, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Lectura de filas (tolera los tipos que devuelve cada backend)
// ──────────────────────────────────────────────────────────────────────────────

// String lee una columna de texto.
func String(row repository.Row, key string) string {
	switch v := row[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int64 lee una columna entera.
func Int64(row repository.Row, key string) int64 {
	switch v := row[key].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// Time lee una columna de fecha; NULL devuelve el cero.
func Time(row repository.Row, key string) time.Time {
	switch v := row[key].(type) {
	case time.Time:
		return v
	case *time.Time:
		if v != nil {
			return *v
		}
	}
	return time.Time{}
}

// Decimal lee una columna NUMERIC.
func Decimal(row repository.Row, key string) (decimal.Decimal, error) {
	switch v := row[key].(type) {
	case decimal.Decimal:
		return v, nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("columna %s: %w", key, err)
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case nil:
		return decimal.Zero, nil
	default:
		return decimal.Zero, fmt.Errorf("columna %s: tipo %T no convertible a decimal", key, v)
	}
}

// nullableTime envía NULL para la fecha cero.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
