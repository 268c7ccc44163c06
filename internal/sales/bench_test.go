package sales

import (
	"context"
	"testing"
)

func BenchmarkCompleteSaleParallel(b *testing.B) {
	store := newMemoryStore()
	for i := 0; i < 8; i++ {
		store.addProduct("SKU-"+string(rune('A'+i)), "2.50", 1<<30, 0)
	}
	svc := NewService(store, store, Options{}, Dependencies{}, nil)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		n := int64(0)
		for pb.Next() {
			n++
			first := n%8 + 1
			second := (n+3)%8 + 1
			input := CompleteSaleInput{
				CashierID:     1,
				PaymentMethod: PaymentCash,
				Lines: []LineRequest{
					{ProductID: second, Quantity: 1, UnitPrice: dec("2.50")},
					{ProductID: first, Quantity: 2, UnitPrice: dec("2.50")},
				},
			}
			if _, err := svc.CompleteSale(ctx, input); err != nil {
				b.Fatal(err)
			}
		}
	})
}
