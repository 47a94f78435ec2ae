package confkit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConf struct {
	Body string
}

func fakeLoader(path string) (*fakeConf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &fakeConf{Body: strings.TrimSpace(string(data))}, nil
}

func TestSectionHydrateResolvesRelativePath(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "risk.yaml"), []byte("gated\n"), 0o600))

	s := Section[fakeConf]{File: "risk.yaml"}
	require.NoError(t, s.Hydrate(base, fakeLoader))

	require.NotNil(t, s.Value)
	assert.Equal(t, "gated", s.Value.Body)
	assert.Equal(t, filepath.Join(base, "risk.yaml"), s.File, "File is rewritten to the resolved path")
}

func TestSectionHydrateExpandsEnvAndKeepsAbsolute(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broker.yaml"), []byte("venues"), 0o600))
	t.Setenv("CONF_DIR", dir)

	s := Section[fakeConf]{File: "${CONF_DIR}/broker.yaml"}
	require.NoError(t, s.Hydrate("/elsewhere", fakeLoader))

	require.NotNil(t, s.Value)
	assert.Equal(t, filepath.Join(dir, "broker.yaml"), s.File, "absolute paths ignore base")
}

func TestSectionHydrateWithoutFileIsNoop(t *testing.T) {
	s := Section[fakeConf]{}
	require.NoError(t, s.Hydrate(t.TempDir(), fakeLoader))
	assert.Nil(t, s.Value)
}

func TestSectionHydrateSurfacesLoaderError(t *testing.T) {
	s := Section[fakeConf]{File: "missing.yaml"}
	err := s.Hydrate(t.TempDir(), func(path string) (*fakeConf, error) {
		return nil, fmt.Errorf("boom: %s", path)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.yaml")
}

func TestProjectPathPointsInsideModule(t *testing.T) {
	p, err := ProjectPath("etc/tradeagent.yaml")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(p, filepath.Join("etc", "tradeagent.yaml")))

	root, err := ProjectRoot()
	require.NoError(t, err)
	assert.True(t, fileExists(filepath.Join(root, "go.mod")), "root is the directory holding go.mod")
}
