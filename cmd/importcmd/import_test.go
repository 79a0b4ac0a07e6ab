package importcmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"fjacquet/stmt-ledger/internal/config"
	"fjacquet/stmt-ledger/internal/container"
	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statement = `#Za okres:;01.08.2025;31.08.2025;
;
#Waluta;
PLN;
;
#Data księgowania;#Data operacji;#Opis operacji;#Tytuł;#Nadawca/Odbiorca;#Numer konta;#Kwota;#Saldo po operacji;
2025-08-01;2025-08-01;ZAKUP PRZY UŻYCIU KARTY;"ŻABKA 1234 WARSZAWA";"";'';-16,43 PLN;1 183,57 PLN;
2025-08-02;2025-08-02;PRZELEW PRZYCHODZĄCY;"WYNAGRODZENIE 08/2025";"ACME SP. Z O.O.";'';2 500,00 PLN;3 683,57 PLN;
;
`

func newContainer(t *testing.T) *container.Container {
	t.Helper()
	c, err := container.NewWithRepository(context.Background(), config.Default(), memory.NewStore(), logging.NewMockLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestJobs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte(statement), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0o600))
	single := filepath.Join(t.TempDir(), "b.csv")
	require.NoError(t, os.WriteFile(single, []byte(statement), 0o600))

	js, err := jobs("owner", []string{dir, single})
	require.NoError(t, err)
	require.Len(t, js, 2)
	assert.Equal(t, filepath.Join(dir, "a.csv"), js[0].Path)
	assert.Equal(t, single, js[1].Path)

	_, err = jobs("owner", []string{filepath.Join(dir, "missing.csv")})
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	c := newContainer(t)
	path := filepath.Join(t.TempDir(), "august.csv")
	require.NoError(t, os.WriteFile(path, []byte(statement), 0o600))

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), c, "owner", "text", []string{path}, &out))
	assert.Contains(t, out.String(), "august.csv")
	assert.Contains(t, out.String(), "completed")

	out.Reset()
	require.NoError(t, run(context.Background(), c, "owner", "text", []string{path}, &out))
	assert.Contains(t, out.String(), "duplicate")

	txs, err := c.GetRepository().ListTransactions(context.Background(), "owner")
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestRun_FailedFile(t *testing.T) {
	c := newContainer(t)
	path := filepath.Join(t.TempDir(), "broken.csv")
	require.NoError(t, os.WriteFile(path, []byte("not a statement\n"), 0o600))

	var out bytes.Buffer
	err := run(context.Background(), c, "owner", "json", []string{path}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 files failed")
	assert.Contains(t, out.String(), `"error"`)
}

func TestRun_EmptyDirectory(t *testing.T) {
	err := run(context.Background(), newContainer(t), "owner", "text", []string{t.TempDir()}, &bytes.Buffer{})
	assert.Error(t, err)
}
