package batches

import (
	"bytes"
	"context"
	"testing"

	"fjacquet/stmt-ledger/internal/config"
	"fjacquet/stmt-ledger/internal/container"
	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/models"
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
;
`

func setup(t *testing.T) (*container.Container, *models.ImportBatch) {
	t.Helper()
	ctx := context.Background()
	c, err := container.NewWithRepository(ctx, config.Default(), memory.NewStore(), logging.NewMockLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	b, err := c.GetImporter().Import(ctx, "anna", "august.csv", []byte(statement))
	require.NoError(t, err)
	return c, b
}

func TestList(t *testing.T) {
	c, b := setup(t)

	var out bytes.Buffer
	require.NoError(t, list(context.Background(), c, "anna", "text", &out))
	assert.Contains(t, out.String(), b.ID)
	assert.Contains(t, out.String(), "august.csv")
	assert.Contains(t, out.String(), "2025-08-01 .. 2025-08-01")

	out.Reset()
	require.NoError(t, list(context.Background(), c, "bob", "json", &out))
	assert.Equal(t, "[]\n", out.String())
}

func TestShow(t *testing.T) {
	c, b := setup(t)

	var out bytes.Buffer
	require.NoError(t, show(context.Background(), c, "anna", b.ID, "text", &out))
	assert.Contains(t, out.String(), "completed")
	assert.Regexp(t, `Imported:\s+1`, out.String())

	assert.Error(t, show(context.Background(), c, "bob", b.ID, "text", &out))
	assert.Error(t, show(context.Background(), c, "anna", "missing", "text", &out))
	assert.Error(t, show(context.Background(), c, "anna", b.ID, "xml", &out))
}
