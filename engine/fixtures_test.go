package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clarity-bi/clarity/dataset"
)

// Two dealers, one linked claim.
var (
	basicSales = []byte(`Policy No,Dealer,Gross Premium
P1,A,1000
P2,B,2000
`)
	basicClaims = []byte(`Policy No,Claim Status,Total Auth Amount
P1,Approved,300
`)
)

// Four policies, two claims on P3 and one orphan claim (P9).
var (
	salesCSV = []byte(`Policy No,Dealer,Product,Make,Policy Sold Date,Gross Premium,Risk Premium,Country
P1,A,Gold,Toyota,2024-01-10,1000,300,UAE
P2,B,Silver,Honda,2024-02-15,2000,600,KSA
P3,A,Gold,Ford,2024-02-20,1500,450,UAE
P4,C,Silver,Toyota,2024-03-05,1500,500,KSA
`)
	claimsCSV = []byte(`Policy No,Claim Status,Total Auth Amount,Labor,Parts,Part Type,Failure Date
P1,Approved,300,100,200,Engine,2024-03-01
P3,Rejected,120,20,100,Gearbox,2024-04-11
P3,Approved,80,30,50,Engine,2024-05-02
P9,Pending,50,10,40,Brakes,2024-05-20
`)
)

func ingest(t *testing.T, sales, claims []byte) *dataset.Store {
	t.Helper()
	store, err := dataset.IngestCSV(context.Background(), sales, claims)
	require.NoError(t, err)
	return store
}

func newTestStore(t *testing.T) *dataset.Store {
	t.Helper()
	return ingest(t, salesCSV, claimsCSV)
}

func filterOf(kv ...string) FilterState {
	values := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		values[kv[i]] = kv[i+1]
	}
	return NewFilterState(values)
}
