// document.go — классификация документов абитуриента.
// Класс определяется по подстрокам в имени файла (без учёта регистра);
// файлы без совпадений попадают в класс "Lainnya".
package model

import (
	"strings"
)

// DocumentClass — семантический класс документа, он же имя папки в архиве.
type DocumentClass string

const (
	ClassIjazah        DocumentClass = "Ijazah"
	ClassBirthCert     DocumentClass = "Akta Kelahiran"
	ClassPhoto         DocumentClass = "Pas Foto 3x4"
	ClassBPJS          DocumentClass = "BPJS"
	ClassFamilyCard    DocumentClass = "Kartu Keluarga"
	ClassOther         DocumentClass = "Lainnya"
)

// classKeywords — таблица ключевых слов для классификации.
// Порядок важен: первый класс с совпадением выигрывает.
var classKeywords = []struct {
	class    DocumentClass
	keywords []string
}{
	{ClassIjazah, []string{"ijazah", "raport", "sttb"}},
	{ClassBirthCert, []string{"akta", "akte", "kelahiran"}},
	{ClassPhoto, []string{"foto", "pasfoto", "pas-foto", "3x4"}},
	{ClassBPJS, []string{"bpjs", "kartu-bpjs"}},
	{ClassFamilyCard, []string{"kk", "kartu-keluarga", "kartukeluarga"}},
}

// DetectDocumentClass определяет класс документа по имени файла.
func DetectDocumentClass(filename string) DocumentClass {
	lower := strings.ToLower(filename)
	for _, entry := range classKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.class
			}
		}
	}
	return ClassOther
}

// Пресеты расширений для фильтрации файлов-кандидатов.
var (
	// ImageExtensions — только изображения
	ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"}
	// AllExtensions — изображения и документы
	AllExtensions = append(append([]string{}, ImageExtensions...),
		".pdf", ".doc", ".docx", ".xlsx", ".xls")
)

// ExtensionAllowed проверяет имя файла против набора расширений.
func ExtensionAllowed(filename string, allowed []string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range allowed {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
