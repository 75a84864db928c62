package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_Repository(t *testing.T) {
	violations, err := check(filepath.Join("..", ".."))
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func fakeRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, pkg := range corePackages {
		require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg", pkg), 0o755))
	}
	return root
}

func TestCheck_FindsViolations(t *testing.T) {
	root := fakeRoot(t)
	src := `package sim

import (
	"context"

	"github.com/macawi-ai/domovoi/pkg/store"
)

var _ = context.Background
var _ store.Sink
`
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "sim", "leak.go"), []byte(src), 0o600))
	// Test files may import anything.
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "sim", "leak_test.go"),
		[]byte("package sim\n\nimport _ \"database/sql\"\n"), 0o600))

	violations, err := check(root)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "pkg/sim/leak.go", violations[0].File)
	assert.Equal(t, 6, violations[0].Line)
	assert.Equal(t, "domovoi/pkg/store", violations[0].Fragment)

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, run(root, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "LAYER VIOLATION")
}

func TestRun_Clean(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, run(fakeRoot(t), &stdout, &stderr))
	assert.Contains(t, stdout.String(), "passed")
}

func TestRun_MissingCore(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, run(t.TempDir(), &stdout, &stderr))
	assert.Contains(t, stderr.String(), "ERROR")
}
