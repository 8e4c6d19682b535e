package devenv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "cmd", "subplan-cli")
	err := os.MkdirAll(nested, 0777)
	if err != nil {
		t.Fatal(err)
	}
	err = os.WriteFile(filepath.Join(root, "go.mod"), []byte("module subplan-backend\n\ngo 1.22.2\n"), 0600)
	if err != nil {
		t.Fatal(err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	err = os.Chdir(nested)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Chdir(wd)
	})

	path, err := ResolvePath("state/plain.db")
	require.NoError(t, err)
	require.Equal(t, "state/plain.db", path)

	path, err = ResolvePath("<dev_state>/subplan.db")
	require.NoError(t, err)
	resolvedRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	resolvedPath, err := filepath.EvalSymlinks(filepath.Dir(path))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(resolvedRoot, "dev", ".state"), resolvedPath)
	require.Equal(t, "subplan.db", filepath.Base(path))
}
