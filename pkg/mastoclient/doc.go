// Package mastoclient provides the primary entry point for constructing a
// Mastodon API client that implements the masto.Client interface.
//
// It layers configuration, HTTP transport, authentication, server version
// negotiation and the streaming subscriber on top of the resource interfaces
// and types defined in the masto package.
//
// Quick start
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/fivetwenty-io/masto/pkg/masto"
//	  "github.com/fivetwenty-io/masto/pkg/mastoclient"
//	)
//
//	func example() {
//	  ctx := context.Background()
//
//	  cli, err := mastoclient.New(ctx, &masto.Config{
//	    URL:         "https://mastodon.social",
//	    AccessToken: "token",
//	  })
//	  if err != nil { log.Fatal(err) }
//	  defer cli.Close()
//
//	  status, err := cli.Statuses().Create(ctx, &masto.CreateStatusParams{Status: "hello"})
//	  if err != nil { log.Fatal(err) }
//
//	  home := cli.Timelines().Home(&masto.ListParams{Limit: 20})
//	  for s, err := range home.Items(ctx) {
//	    if err != nil { log.Fatal(err) }
//	    log.Println(s.Account.Acct, s.Content)
//	  }
//
//	  _ = status
//	}
//
// # Server version
//
// New asks the instance for its version unless Config.ServerVersion is set.
// Operations newer than the negotiated version fail locally with a
// masto.KindValidation error and never reach the network.
//
// # Streaming
//
// Client.Streaming returns one shared subscriber per client. Subscriptions are
// replayed after reconnects; Client.Close shuts the connection down.
//
// # Helpers
//
// The package also provides convenience constructors NewWithEndpoint,
// NewWithToken and NewWithClientCredentials that wrap New with the
// appropriate configuration.
package mastoclient
