// Package fedsearch embeds the federated search engine in a Go program: the
// resource catalog, the record backends and the side buffer run in process.
//
// # Quick start
//
//	client, _ := fedsearch.New(ctx,
//	    fedsearch.WithCatalogFile("config/catalog.yaml"),
//	    fedsearch.WithRedis("localhost:6379", ""),
//	)
//	defer client.Close()
//
//	rs, _ := client.Search(ctx, fedsearch.Query{
//	    Resources: []string{"orders", "invoices_archive"},
//	    Text:      "acme",
//	    Sort:      "amount DESC",
//	})
//	rows, _ := rs.Rows(0)
//
// # Paging across calls
//
// A result set can be put aside and picked up later, by the same caller,
// under the returned id:
//
//	id, _ := rs.PutAside(ctx, 10*time.Minute, "")
//	rs, _ = client.Reintegrate(ctx, id)
//	more, _ := rs.NextPage(ctx)
package fedsearch
