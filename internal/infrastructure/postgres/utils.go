package postgres

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/repository"
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// scopedTables tablas de negocio con tenant_id accesibles vía ScopedStore.
var scopedTables = map[string]struct{}{
	"events":                {},
	"orders":                {},
	"payments":              {},
	"nft_mint_transactions": {},
}

// checkTable rechaza tablas que no estén en la lista de tablas con tenant_id.
func checkTable(table string) error {
	if _, ok := scopedTables[table]; !ok {
		return fmt.Errorf("%w: tabla no permitida %q", domain.ErrInvalidInput, table)
	}
	return nil
}

// checkColumns rechaza nombres de columna que no sean identificadores simples.
// La lista blanca por entidad la aplica el repositorio; esto impide inyección si alguien la salta.
func checkColumns(row repository.Row) error {
	for col := range row {
		if !identRe.MatchString(col) {
			return fmt.Errorf("%w: columna inválida %q", domain.ErrInvalidInput, col)
		}
	}
	return nil
}

// validID indica si id es un UUID; las tablas con tenant_id usan id UUID.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// isUniqueViolation verifica si un error es una violación de constraint único (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// collectRows convierte el resultado en filas genéricas.
func collectRows(rows pgx.Rows) ([]repository.Row, error) {
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]repository.Row, 0, len(maps))
	for _, m := range maps {
		for k, v := range m {
			// RowToMap entrega UUID como [16]byte; el dominio trabaja con su forma texto.
			if b, ok := v.([16]byte); ok {
				m[k] = uuid.UUID(b).String()
			}
		}
		out = append(out, repository.Row(m))
	}
	return out, nil
}
