package merchants

import (
	"bytes"
	"context"
	"testing"

	"fjacquet/stmt-ledger/internal/config"
	"fjacquet/stmt-ledger/internal/container"
	"fjacquet/stmt-ledger/internal/logging"
	"fjacquet/stmt-ledger/internal/merchant"
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
2025-08-02;2025-08-02;ZAKUP PRZY UŻYCIU KARTY;"ŻABKA 1234 WARSZAWA";"";'';-8,10 PLN;1 175,47 PLN;
2025-08-03;2025-08-03;ZAKUP PRZY UŻYCIU KARTY;"ŻABKA 0077 KRAKOW";"";'';-4,99 PLN;1 170,48 PLN;
;
`

func newContainer(t *testing.T) *container.Container {
	t.Helper()
	c, err := container.NewWithRepository(context.Background(), config.Default(), memory.NewStore(), logging.NewMockLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestList(t *testing.T) {
	c := newContainer(t)

	var out bytes.Buffer
	require.NoError(t, list(context.Background(), c, "text", &out))
	assert.Contains(t, out.String(), "CATEGORY")
	assert.Contains(t, out.String(), "biedronka")
}

func TestDiscover(t *testing.T) {
	ctx := context.Background()
	c := newContainer(t)
	_, err := c.GetImporter().Import(ctx, "anna", "august.csv", []byte(statement))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, discover(ctx, c, "anna", 3, "text", &out))
	assert.Regexp(t, `zabka\s+3\s+yes`, out.String())

	out.Reset()
	require.NoError(t, discover(ctx, c, "anna", 4, "json", &out))
	assert.Equal(t, "[]\n", out.String())
}

func TestAddPattern(t *testing.T) {
	ctx := context.Background()
	c := newContainer(t)

	var out bytes.Buffer
	require.NoError(t, addPattern(ctx, c, "Kawiarnia Pod Lipą", "POD LIPĄ", models.PatternSubstring, 20, &out))
	assert.Contains(t, out.String(), `"pod lipa"`)

	m, err := c.GetRepository().FindMerchantByName(ctx, "kawiarnia pod lipa")
	require.NoError(t, err)
	assert.Equal(t, "Kawiarnia Pod Lipą", m.DisplayName)

	res, err := c.GetExtractor().Extract(ctx, &models.Transaction{OwnerID: "anna", Title: "KAWIARNIA POD LIPĄ 12 KRAKOW"})
	require.NoError(t, err)
	require.NotNil(t, res.Merchant)
	assert.Equal(t, m.ID, res.Merchant.ID)
	assert.Equal(t, merchant.SourcePattern, res.Source)

	require.NoError(t, addPattern(ctx, c, "zabka", `^zabka \d{4}`, models.PatternRegex, 5, &out))
	assert.Error(t, addPattern(ctx, c, "zabka", `([`, models.PatternRegex, 5, &out))
	assert.Error(t, addPattern(ctx, c, "zabka", "x", models.PatternKind("fuzzy"), 5, &out))
	assert.Error(t, addPattern(ctx, c, "  ", "x", models.PatternSubstring, 5, &out))
}
