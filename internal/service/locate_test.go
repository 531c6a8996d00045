package service

import (
	"errors"
	"testing"

	"github.com/dewasatria11/pondok-backend/internal/domain/model"
	"github.com/dewasatria11/pondok-backend/internal/objstore"
)

func TestLocate_ClassifiesAndBuildsArchivePaths(t *testing.T) {
	storage := newFakeStorage()
	storage.putObject(testFilesBucket, "0012345678", "ijazah-smp.pdf", []byte("a"))
	storage.putObject(testFilesBucket, "0012345678", "pas-foto-3x4.jpg", []byte("b"))
	storage.putObject(testFilesBucket, "0012345678", "dokumen.docx", []byte("c"))

	locator := NewLocator(storage, testFilesBucket, quietLogger())
	reg := model.Registrant{NISN: "0012345678", FullName: "Ahmad Fauzi"}

	files, err := locator.Locate(t.Context(), reg, model.AllExtensions)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("хотели 3 кандидата, получили %d", len(files))
	}

	want := map[string]string{
		"0012345678/ijazah-smp.pdf":   "ahmad-fauzi/Ijazah/ijazah-smp.pdf",
		"0012345678/pas-foto-3x4.jpg": "ahmad-fauzi/Pas Foto 3x4/pas-foto-3x4.jpg",
		"0012345678/dokumen.docx":     "ahmad-fauzi/Lainnya/dokumen.docx",
	}
	for _, f := range files {
		wantPath, ok := want[f.SourcePath]
		if !ok {
			t.Errorf("неожиданный кандидат %q", f.SourcePath)
			continue
		}
		if f.ArchivePath != wantPath {
			t.Errorf("ArchivePath для %s: хотели %q, получили %q", f.SourcePath, wantPath, f.ArchivePath)
		}
		if f.OwnerName != "Ahmad Fauzi" {
			t.Errorf("OwnerName: хотели %q, получили %q", "Ahmad Fauzi", f.OwnerName)
		}
	}
}

func TestLocate_ImagesPresetExcludesDocuments(t *testing.T) {
	storage := newFakeStorage()
	storage.putObject(testFilesBucket, "0012345678", "ijazah.pdf", []byte("a"))
	storage.putObject(testFilesBucket, "0012345678", "foto.jpg", []byte("b"))

	locator := NewLocator(storage, testFilesBucket, quietLogger())
	reg := model.Registrant{NISN: "0012345678", FullName: "Ahmad Fauzi"}

	files, err := locator.Locate(t.Context(), reg, model.ImageExtensions)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("хотели 1 кандидата, получили %d", len(files))
	}
	if files[0].SourcePath != "0012345678/foto.jpg" {
		t.Errorf("SourcePath: хотели foto.jpg, получили %q", files[0].SourcePath)
	}
}

func TestLocate_SkipsFoldersAndDisallowed(t *testing.T) {
	storage := newFakeStorage()
	storage.putObject(testFilesBucket, "0012345678", "notes.txt", []byte("a"))
	// "Папка": объект без metadata
	storage.listings[testFilesBucket+"/0012345678"] = append(
		storage.listings[testFilesBucket+"/0012345678"],
		objstore.ObjectInfo{Name: "subdir"},
		objstore.ObjectInfo{Name: ""},
	)

	locator := NewLocator(storage, testFilesBucket, quietLogger())
	reg := model.Registrant{NISN: "0012345678", FullName: "Ahmad Fauzi"}

	files, err := locator.Locate(t.Context(), reg, model.AllExtensions)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("хотели 0 кандидатов, получили %d", len(files))
	}
}

func TestLocate_ListError(t *testing.T) {
	storage := newFakeStorage()
	storage.listErr = errors.New("хранилище недоступно")

	locator := NewLocator(storage, testFilesBucket, quietLogger())
	reg := model.Registrant{NISN: "0012345678", FullName: "Ahmad Fauzi"}

	if _, err := locator.Locate(t.Context(), reg, model.AllExtensions); err == nil {
		t.Error("хотели ошибку листинга, получили nil")
	}
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Ahmad Fauzi", "ahmad-fauzi"},
		{"  Siti   Aminah  ", "siti-aminah"},
		{"O'Brien (test)", "obrien-test"},
		{"УЖЕ_нижний-регистр", "уже_нижний-регистр"},
		{"!!!", "unnamed"},
		{"", "unnamed"},
		{"Muh. Rizki Jr.", "muh-rizki-jr"},
	}

	for _, c := range cases {
		if got := Slugify(c.in); got != c.want {
			t.Errorf("Slugify(%q): хотели %q, получили %q", c.in, c.want, got)
		}
	}
}
