package approval

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func BenchmarkApprovalChain(b *testing.B) {
	f := newServiceFixture(b)
	f.configure(b, DocumentTypeSalesOrder, []int64{roleManager}, []int64{roleDirector})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		doc := f.draft(b, fmt.Sprintf("SO-B%d", i))
		if _, err := f.svc.Submit(ctx, tenantID, doc.ID, clerk, ""); err != nil {
			b.Fatal(err)
		}
		if _, err := f.svc.Approve(ctx, tenantID, doc.ID, manager, ""); err != nil {
			b.Fatal(err)
		}
		if _, err := f.svc.Approve(ctx, tenantID, doc.ID, director, ""); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkListPending(b *testing.B) {
	f := newServiceFixture(b)
	f.configure(b, DocumentTypeSalesOrder, []int64{roleManager}, []int64{roleDirector})
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 500; i++ {
		seedPending(f, fmt.Sprintf("SO-P%d", i), 1+i%2, date.AddDate(0, 0, i%30))
	}
	ctx := context.Background()
	query := PendingQuery{TenantID: tenantID, DocumentType: DocumentTypeSalesOrder, Actor: manager, Limit: 50}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.svc.ListPending(ctx, query); err != nil {
			b.Fatal(err)
		}
	}
}
