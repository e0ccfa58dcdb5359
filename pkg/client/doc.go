// Package client is the Go SDK for the chaind HTTP API.
//
// # Reading the chain
//
//	c, err := client.New("http://localhost:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ov, err := c.Overview(ctx)
//	fmt.Println(ov.Length, ov.Head)
//
// # Submitting a block
//
// Appends are optimistic: the request names the head it builds on. When
// another submitter got there first the server answers 409 and AppendBlock
// returns an error matching ErrConflict. AppendOnHead refetches the head and
// resubmits for you:
//
//	c, _ := client.New(base, client.WithBearerToken(token))
//	idx, err := c.AppendOnHead(ctx, identityRoot, stateRoot, cert, 5)
//
// # Commitments
//
// BuildRoot, BuildProof and VerifyProof call the stateless commitment
// endpoints, which is convenient for clients that do not link pkg/idmerkle.
package client
