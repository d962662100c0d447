package testutil

import (
	"errors"
	"testing"

	"github.com/banshee-data/cavesweep/internal/monitoring"
)

func TestAssertNoError_FailurePath(t *testing.T) {
	t.Parallel()

	ok := t.Run("unexpected error", func(t *testing.T) {
		AssertNoError(t, errors.New("boom"))
	})
	if ok {
		t.Fatal("expected subtest to fail when error is non-nil")
	}
}

func TestAssertError_FailurePath(t *testing.T) {
	t.Parallel()

	ok := t.Run("missing error", func(t *testing.T) {
		AssertError(t, nil)
	})
	if ok {
		t.Fatal("expected subtest to fail when error is nil")
	}
}

func TestWriteFileAndReadCSV(t *testing.T) {
	dir := t.TempDir()
	path := WriteFile(t, dir, "nested/series.csv", "Age,d13C\n1200,-4.0\n")

	got := ReadCSV(t, path)
	if len(got) != 2 || got[0][1] != "d13C" || got[1][1] != "-4.0" {
		t.Errorf("ReadCSV = %v", got)
	}
}

func TestCaptureLogs(t *testing.T) {
	buf := CaptureLogs(t)
	monitoring.Logf("[test] %d configurations", 3)
	if got := buf.String(); got != "[test] 3 configurations\n" {
		t.Errorf("captured %q", got)
	}
}
