// registrant.go — чтение записей абитуриентов из таблицы pendaftar.
package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/dewasatria11/pondok-backend/internal/domain/model"
)

// RegistrantRepository — выборка записей абитуриентов по фильтру экспорта.
type RegistrantRepository interface {
	// ListByFilter возвращает записи, подходящие под фильтр,
	// упорядоченные по полному имени.
	ListByFilter(ctx context.Context, filter model.ExportFilter) ([]model.Registrant, error)
}

// registrantRepo — реализация RegistrantRepository.
type registrantRepo struct {
	db DBTX
}

// NewRegistrantRepository создаёт репозиторий записей абитуриентов.
func NewRegistrantRepository(db DBTX) RegistrantRepository {
	return &registrantRepo{db: db}
}

func (r *registrantRepo) ListByFilter(ctx context.Context, filter model.ExportFilter) ([]model.Registrant, error) {
	query, args := buildRegistrantQuery(filter)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки pendaftar: %w", err)
	}
	defer rows.Close()

	var registrants []model.Registrant
	for rows.Next() {
		var reg model.Registrant
		if err := rows.Scan(&reg.ID, &reg.NISN, &reg.FullName, &reg.Status, &reg.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки pendaftar: %w", err)
		}
		registrants = append(registrants, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка обхода строк pendaftar: %w", err)
	}

	return registrants, nil
}

// buildRegistrantQuery строит SQL и аргументы по фильтру экспорта.
// Статус сравнивается в верхнем регистре (так хранит managed-бэкенд),
// границы дат применяются к created_at включительно.
func buildRegistrantQuery(filter model.ExportFilter) (string, []any) {
	var conditions []string
	var args []any
	argNum := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("statusberkas = $%d", argNum))
		args = append(args, strings.ToUpper(filter.Status))
		argNum++
	}
	if filter.DateFrom != "" {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argNum))
		args = append(args, filter.DateFrom)
		argNum++
	}
	if filter.DateTo != "" {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argNum))
		args = append(args, filter.DateTo)
		argNum++
	}

	query := `SELECT id, nisn, namalengkap, statusberkas, created_at FROM pendaftar`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY namalengkap"
	query += fmt.Sprintf(" LIMIT $%d", argNum)
	args = append(args, filter.Limit)

	return query, args
}
