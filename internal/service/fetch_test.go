package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dewasatria11/pondok-backend/internal/domain/model"
)

func candidate(name string) model.CandidateFile {
	return model.CandidateFile{
		SourcePath:  "0012345678/" + name,
		ArchivePath: "ahmad-fauzi/Lainnya/" + name,
		OwnerName:   "Ahmad Fauzi",
		Class:       model.ClassOther,
	}
}

func TestFetchAll_OneResultPerFile(t *testing.T) {
	storage := newFakeStorage()
	var files []model.CandidateFile
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("doc-%d.pdf", i)
		storage.putObject(testFilesBucket, "0012345678", name, []byte("data-"+name))
		files = append(files, candidate(name))
	}

	fetcher := NewFetcher(storage, testFilesBucket, 4, quietLogger())
	results := fetcher.FetchAll(t.Context(), files)

	if len(results) != len(files) {
		t.Fatalf("хотели %d результатов, получили %d", len(files), len(results))
	}

	seen := make(map[string]bool)
	for _, res := range results {
		if seen[res.File.SourcePath] {
			t.Errorf("дубликат результата для %s", res.File.SourcePath)
		}
		seen[res.File.SourcePath] = true
		if !res.OK() {
			t.Errorf("%s: неожиданный неуспех: %s", res.File.SourcePath, res.Err)
		}
		if string(res.Data) != "data-"+strings.TrimPrefix(res.File.SourcePath, "0012345678/") {
			t.Errorf("%s: неверное содержимое", res.File.SourcePath)
		}
	}
}

func TestFetchAll_ReportsFailures(t *testing.T) {
	storage := newFakeStorage()
	storage.putObject(testFilesBucket, "0012345678", "ok.pdf", []byte("data"))
	storage.putObject(testFilesBucket, "0012345678", "empty.pdf", nil)
	storage.downloadErr["0012345678/broken.pdf"] = errors.New("хранилище недоступно")

	files := []model.CandidateFile{
		candidate("ok.pdf"),
		candidate("empty.pdf"),
		candidate("broken.pdf"),
	}

	fetcher := NewFetcher(storage, testFilesBucket, 2, quietLogger())
	results := fetcher.FetchAll(t.Context(), files)

	if len(results) != 3 {
		t.Fatalf("хотели 3 результата, получили %d", len(results))
	}

	byPath := make(map[string]model.FetchResult)
	for _, res := range results {
		byPath[res.File.SourcePath] = res
	}

	if res := byPath["0012345678/ok.pdf"]; !res.OK() {
		t.Errorf("ok.pdf: неожиданный неуспех: %s", res.Err)
	}
	if res := byPath["0012345678/empty.pdf"]; res.Err != "empty" {
		t.Errorf("empty.pdf: хотели Err \"empty\", получили %q", res.Err)
	}
	if res := byPath["0012345678/broken.pdf"]; res.OK() || !strings.Contains(res.Err, "недоступно") {
		t.Errorf("broken.pdf: хотели ошибку скачивания, получили %q", res.Err)
	}
}

func TestFetchAll_DeadlineReturnsPartialResults(t *testing.T) {
	storage := newFakeStorage()
	storage.downloadWait = 40 * time.Millisecond
	var files []model.CandidateFile
	for i := 0; i < 20; i++ {
		name := fmt.Sprintf("doc-%d.pdf", i)
		storage.putObject(testFilesBucket, "0012345678", name, []byte("data"))
		files = append(files, candidate(name))
	}

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	fetcher := NewFetcher(storage, testFilesBucket, 2, quietLogger())
	start := time.Now()
	results := fetcher.FetchAll(ctx, files)
	elapsed := time.Since(start)

	// Дедлайн соблюдён: возврат сразу после истечения, без ожидания хвоста
	if elapsed > 300*time.Millisecond {
		t.Errorf("FetchAll держал управление %v после дедлайна 100ms", elapsed)
	}
	if len(results) >= len(files) {
		t.Errorf("хотели частичные результаты, получили все %d", len(results))
	}

	seen := make(map[string]bool)
	for _, res := range results {
		if seen[res.File.SourcePath] {
			t.Errorf("дубликат результата для %s", res.File.SourcePath)
		}
		seen[res.File.SourcePath] = true
	}
}

func TestFetchAll_EmptyInput(t *testing.T) {
	fetcher := NewFetcher(newFakeStorage(), testFilesBucket, 2, quietLogger())
	if results := fetcher.FetchAll(t.Context(), nil); len(results) != 0 {
		t.Errorf("хотели 0 результатов, получили %d", len(results))
	}
}

func TestTrimErr(t *testing.T) {
	long := strings.Repeat("a", 300)
	if got := trimErr(long); len(got) != maxErrLen {
		t.Errorf("trimErr: хотели длину %d, получили %d", maxErrLen, len(got))
	}
	if got := trimErr("короткая"); got != "короткая" {
		t.Errorf("trimErr: короткое сообщение изменилось: %q", got)
	}
}
