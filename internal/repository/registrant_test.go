package repository

import (
	"strings"
	"testing"

	"github.com/dewasatria11/pondok-backend/internal/domain/model"
)

func TestBuildRegistrantQuery_NoFilters(t *testing.T) {
	query, args := buildRegistrantQuery(model.ExportFilter{Limit: 200})

	if strings.Contains(query, "WHERE") {
		t.Errorf("запрос без фильтров не должен содержать WHERE: %s", query)
	}
	if !strings.Contains(query, "ORDER BY namalengkap") {
		t.Errorf("запрос должен сортировать по namalengkap: %s", query)
	}
	if !strings.Contains(query, "LIMIT $1") {
		t.Errorf("запрос должен содержать LIMIT $1: %s", query)
	}
	if len(args) != 1 || args[0] != 200 {
		t.Errorf("args: хотели [200], получили %v", args)
	}
}

func TestBuildRegistrantQuery_AllFilters(t *testing.T) {
	query, args := buildRegistrantQuery(model.ExportFilter{
		Status:   "diterima",
		DateFrom: "2026-01-01",
		DateTo:   "2026-06-30",
		Limit:    50,
	})

	if !strings.Contains(query, "statusberkas = $1") {
		t.Errorf("запрос должен фильтровать по statusberkas: %s", query)
	}
	if !strings.Contains(query, "created_at >= $2") {
		t.Errorf("запрос должен содержать нижнюю границу даты: %s", query)
	}
	if !strings.Contains(query, "created_at <= $3") {
		t.Errorf("запрос должен содержать верхнюю границу даты: %s", query)
	}
	if !strings.Contains(query, "LIMIT $4") {
		t.Errorf("запрос должен содержать LIMIT $4: %s", query)
	}

	// Статус уходит в БД в верхнем регистре
	if args[0] != "DITERIMA" {
		t.Errorf("статус должен приводиться к верхнему регистру: %v", args[0])
	}
	if len(args) != 4 {
		t.Fatalf("args: хотели 4 аргумента, получили %d", len(args))
	}
	if args[3] != 50 {
		t.Errorf("последний аргумент должен быть limit: %v", args[3])
	}
}

func TestBuildRegistrantQuery_OnlyDateFrom(t *testing.T) {
	query, args := buildRegistrantQuery(model.ExportFilter{
		DateFrom: "2026-01-01",
		Limit:    10,
	})

	if !strings.Contains(query, "created_at >= $1") {
		t.Errorf("нумерация placeholder-ов должна начинаться с $1: %s", query)
	}
	// statusberkas есть в SELECT-списке, но не в WHERE
	if strings.Contains(query, "statusberkas = $") {
		t.Errorf("запрос не должен фильтровать по статусу: %s", query)
	}
	if len(args) != 2 {
		t.Errorf("args: хотели 2 аргумента, получили %d", len(args))
	}
}
