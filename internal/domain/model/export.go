// Пакет model — доменные модели экспортного конвейера.
// Центральные типы: ExportRequest (запрос экспорта), CandidateFile
// (файл-кандидат в архив), FetchResult (результат скачивания),
// ArchiveArtifact (опубликованный архив).
package model

import (
	"time"
)

// RegistrantStatus — статус проверки документов абитуриента.
// Значения соответствуют колонке statusberkas таблицы pendaftar.
type RegistrantStatus string

const (
	StatusPending  RegistrantStatus = "PENDING"
	StatusVerified RegistrantStatus = "VERIFIED"
	StatusRejected RegistrantStatus = "REJECTED"
	StatusAccepted RegistrantStatus = "DITERIMA"
	StatusRevision RegistrantStatus = "REVISI"
	StatusDeclined RegistrantStatus = "DITOLAK"
)

// ValidStatusFilter проверяет, что строка фильтра — одно из допустимых
// значений статуса (в нижнем регистре, как приходит из query string).
func ValidStatusFilter(s string) bool {
	switch s {
	case "pending", "verified", "rejected", "diterima", "revisi", "ditolak":
		return true
	}
	return false
}

// Registrant — запись абитуриента из таблицы pendaftar.
// Внешнее хранилище владеет схемой; здесь только поля,
// нужные экспортному конвейеру.
type Registrant struct {
	// ID — первичный ключ записи
	ID int64
	// NISN — национальный номер учащегося (10 цифр),
	// одновременно namespace файлов в object storage
	NISN string
	// FullName — полное имя (namalengkap), основа slug-а в архиве
	FullName string
	// Status — статус проверки документов (statusberkas)
	Status RegistrantStatus
	// CreatedAt — дата регистрации
	CreatedAt time.Time
}

// ExportFilter — критерии отбора записей для экспорта.
// Неизменяем после принятия запроса.
type ExportFilter struct {
	// Only — пресет расширений: "all" или "images"
	Only string
	// Status — фильтр по статусу ("" — без фильтра)
	Status string
	// DateFrom — нижняя граница created_at (ISO-дата, "" — без границы)
	DateFrom string
	// DateTo — верхняя граница created_at
	DateTo string
	// Limit — максимум записей за один экспорт
	Limit int
}

// ExportRequest — принятый запрос экспорта.
type ExportRequest struct {
	// Filter — критерии отбора
	Filter ExportFilter
	// RequestedBy — идентификатор инициатора (sub из JWT, "" если auth выключен)
	RequestedBy string
}

// CandidateFile — файл-кандидат для включения в архив.
// Создаётся при обходе хранилища, далее только читается.
type CandidateFile struct {
	// SourcePath — путь объекта в бакете (nisn/имя-файла)
	SourcePath string
	// ArchivePath — путь внутри архива: {slug-имени}/{класс-документа}/{имя-файла}
	ArchivePath string
	// OwnerName — полное имя владельца записи (для отчёта об ошибках)
	OwnerName string
	// Class — семантический класс документа
	Class DocumentClass
}

// FetchResult — результат скачивания одного CandidateFile.
// Ровно один FetchResult на каждый CandidateFile.
type FetchResult struct {
	// File — исходный кандидат
	File CandidateFile
	// Data — содержимое файла (nil при неуспехе)
	Data []byte
	// Err — причина неуспеха ("" при успехе), обрезана до разумной длины
	Err string
}

// OK сообщает, успешно ли скачан файл.
func (r *FetchResult) OK() bool {
	return r.Err == ""
}

// ArchiveArtifact — опубликованный архив и метаданные для его получения.
type ArchiveArtifact struct {
	// Filename — имя архива (с таймстемпом для уникальности)
	Filename string
	// StoragePath — путь в бакете временных выгрузок
	StoragePath string
	// Size — размер архива в байтах
	Size int64
	// CreatedAt — время публикации
	CreatedAt time.Time
	// URL — подписанная ссылка на скачивание
	URL string
	// ExpiresIn — срок жизни ссылки
	ExpiresIn time.Duration
}

// ExportSummary — итог выполнения экспорта (состояние Done).
type ExportSummary struct {
	// Artifact — опубликованный архив
	Artifact *ArchiveArtifact
	// RegistrantsProcessed — сколько записей обработано
	RegistrantsProcessed int
	// TotalFiles — сколько файлов-кандидатов найдено
	TotalFiles int
	// SuccessCount — сколько файлов скачано и попало в архив
	SuccessCount int
	// FailedCount — сколько файлов не удалось скачать
	FailedCount int
	// FailedDetails — первые причины неуспеха (для диагностики)
	FailedDetails []string
	// Elapsed — полное время выполнения
	Elapsed time.Duration
	// FromCache — итог взят из кэша недавних экспортов
	FromCache bool
}
