package ledger_test

import (
	"context"
	"fmt"

	"github.com/regledger/regledger/pkg/ledger"
)

func Example() {
	ctx := context.Background()
	l, err := ledger.Open(ctx, ledger.Config{Path: ":memory:"})
	if err != nil {
		panic(err)
	}
	defer l.Close()

	txn, _ := l.Begin(ctx)
	_, _ = txn.Execute(ctx, "CREATE TABLE Person")
	_, _ = txn.Execute(ctx, "INSERT INTO Person ?", map[string]any{"GovId": "LEWISR261LL", "FirstName": "Raul"})
	if err := txn.Commit(ctx); err != nil {
		panic(err)
	}

	txn, _ = l.Begin(ctx)
	res, err := txn.Execute(ctx, "SELECT p.FirstName FROM Person AS p WHERE p.GovId = ?", "LEWISR261LL")
	if err != nil {
		panic(err)
	}
	for res.Next() {
		fmt.Println(res.Document()["FirstName"])
	}
	_ = txn.Commit(ctx)

	// Output: Raul
}

func ExampleIsConflict() {
	ctx := context.Background()
	l, _ := ledger.Open(ctx, ledger.Config{Path: ":memory:"})
	defer l.Close()

	setup, _ := l.Begin(ctx)
	_, _ = setup.Execute(ctx, "CREATE TABLE Counter")
	_, _ = setup.Execute(ctx, "INSERT INTO Counter ?", map[string]any{"Name": "visits", "Value": 0})
	_ = setup.Commit(ctx)

	a, _ := l.Begin(ctx)
	b, _ := l.Begin(ctx)
	_, _ = a.Execute(ctx, "UPDATE Counter SET Value = 1 WHERE Name = 'visits'")
	_, _ = b.Execute(ctx, "UPDATE Counter SET Value = 2 WHERE Name = 'visits'")

	fmt.Println(a.Commit(ctx) == nil)
	fmt.Println(ledger.IsConflict(b.Commit(ctx)))

	// Output:
	// true
	// true
}
