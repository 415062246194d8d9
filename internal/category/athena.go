package category

// athena.go is the remote side of the category lookup: a four-level
// self-join of the category hierarchy table, keyed by the fixed-width
// dotted category code sliced at positions 1, 5, 9 and 12.
//
// The warehouse is reached through a database/sql driver, so the result is
// scanned with the same table.FromRows path as a local store extraction.

import (
	"context"
	"database/sql"
	"fmt"

	drv "github.com/uber/athenadriver/go"

	"ruptura/internal/table"
)

// categoryQuery resolves each product's full hierarchy by padding the code
// prefix at every level back to the fixed dotted width.
const categoryQuery = `
	SELECT
		pm.prme_cd_produto,
		pm.prme_tx_descricao1 AS descprod,
		n1.capn_ds_categoria  AS nivel1,
		n2.capn_ds_categoria  AS nivel2,
		n3.capn_ds_categoria  AS nivel3,
		n4.capn_ds_categoria  AS nivel4
	FROM modelled.cosmos_v14b_dbo_produto_mestre AS pm
	INNER JOIN modelled.cosmos_v14b_dbo_categoria_produto_novo AS n1
	ON substring(pm.capn_cd_categoria, 1, 1)  || '.000.000.00.00.00.00.00' = n1.capn_cd_categoria
	INNER JOIN modelled.cosmos_v14b_dbo_categoria_produto_novo AS n2
	ON substring(pm.capn_cd_categoria, 1, 5)  || '.000.00.00.00.00.00' = n2.capn_cd_categoria
	INNER JOIN modelled.cosmos_v14b_dbo_categoria_produto_novo AS n3
	ON substring(pm.capn_cd_categoria, 1, 9)  || '.00.00.00.00.00' = n3.capn_cd_categoria
	INNER JOIN modelled.cosmos_v14b_dbo_categoria_produto_novo AS n4
	ON substring(pm.capn_cd_categoria, 1, 12) || '.00.00.00.00' = n4.capn_cd_categoria
`

// AthenaFetcher queries the category hierarchy from AWS Athena.
type AthenaFetcher struct {
	Creds Credentials
}

// NewAthenaFetcher returns a Fetcher backed by Athena with the given
// credentials.
func NewAthenaFetcher(creds Credentials) *AthenaFetcher {
	return &AthenaFetcher{Creds: creds}
}

// Fetch runs the hierarchy query and returns the normalized result.
func (f *AthenaFetcher) Fetch(ctx context.Context) (*table.Table, error) {
	conf, err := drv.NewDefaultConfig(
		f.Creds.S3StagingDir,
		f.Creds.Region,
		f.Creds.AccessKeyID,
		f.Creds.SecretAccessKey,
	)
	if err != nil {
		return nil, fmt.Errorf("build athena config: %w", err)
	}

	db, err := sql.Open(drv.DriverName, conf.Stringify())
	if err != nil {
		return nil, fmt.Errorf("open athena connection: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, categoryQuery)
	if err != nil {
		return nil, fmt.Errorf("execute category query: %w", err)
	}
	defer rows.Close()

	t, err := table.FromRows(rows)
	if err != nil {
		return nil, err
	}
	return table.Normalize(t), nil
}
