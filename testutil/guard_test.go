package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInternalImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"limscore/internal/core", true},
		{"limscore/internal/infra/archive/fs", true},
		{"limscore/pkg/domain", false},
		{"internal", false},
		{"example.com/internal", false},
		{"notinternal/pkg", false},
		{"", false},
	}
	for _, c := range cases {
		if got := InternalImportForbidden(c.in); got != c.want {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestInfraImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"limscore/internal/infra/persistence/sqlite", true},
		{"limscore/internal/infra/archive/s3", true},
		{"limscore/internal/core", false},
		{"limscore/internal/archive", false},
	}
	for _, c := range cases {
		if got := InfraImportForbidden(c.in); got != c.want {
			t.Fatalf("InfraImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestThirdPartyImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"github.com/google/uuid", true},
		{"go.uber.org/zap", true},
		{"modernc.org/sqlite", true},
		{"encoding/json", false},
		{"time", false},
		{"limscore/pkg/domain", false},
	}
	for _, c := range cases {
		if got := ThirdPartyImportForbidden(c.in); got != c.want {
			t.Fatalf("ThirdPartyImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestAssertNoDirectImports(t *testing.T) {
	dir := t.TempDir()
	src := []byte("package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}")
	if err := os.WriteFile(filepath.Join(dir, "x.go"), src, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	AssertNoDirectImports(t, dir, func(string) bool { return false }, "none")
}

func TestAssertNoDirectImportsIgnoresTestFilesAndSubdirs(t *testing.T) {
	dir := t.TempDir()
	safe := []byte("package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}")
	if err := os.WriteFile(filepath.Join(dir, "main.go"), safe, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	bad := []byte("package tmp\nimport \"forbidden/pkg\"\nfunc TestX(){}")
	if err := os.WriteFile(filepath.Join(dir, "main_test.go"), bad, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "sub.go"), []byte("package sub\nimport \"forbidden/pkg\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	AssertNoDirectImports(t, dir, func(ip string) bool { return ip == "forbidden/pkg" }, "tests and subdirs are out of scope")
}

type recordingLogger struct {
	msg string
}

func (r *recordingLogger) Fatalf(format string, args ...any) {
	r.msg = fmt.Sprintf(format, args...)
}

func TestFailIfDirectViolationsReportsAll(t *testing.T) {
	rec := &recordingLogger{}
	failIfDirectViolations(rec, "layering", []string{"a/internal/x (in one.go)", "b/internal/y (in two.go)"})
	if rec.msg == "" {
		t.Fatal("expected a failure message")
	}
	for _, want := range []string{"layering", "a/internal/x", "two.go"} {
		if !strings.Contains(rec.msg, want) {
			t.Fatalf("failure message %q missing %q", rec.msg, want)
		}
	}
	rec.msg = ""
	failIfDirectViolations(rec, "layering", nil)
	if rec.msg != "" {
		t.Fatalf("unexpected failure for empty violations: %q", rec.msg)
	}
}
