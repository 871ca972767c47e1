// Package cloudlibrary talks to the cloudLibrary lending service and the
// Findaway audio API behind it.
//
// # Sessions
//
// An Authenticator turns Credentials into a model.Session, either by
// logging in or by adopting a session token as is:
//
//	auth := cloudlibrary.NewAuthenticator(client)
//	sess, err := auth.Establish(ctx, "mylib", cloudlibrary.Credentials{
//	    Username: "12345678",
//	    Password: "0000",
//	})
//
// The session is a plain value. Every other call takes it as a parameter,
// and nothing here logs in again on its own.
//
// # Catalog and Lending
//
// Catalog lists loans and fetches title metadata. Lender borrows and
// returns titles, re-reading the loan list after each request:
//
//	catalog := cloudlibrary.NewCatalog(client)
//	lender := cloudlibrary.NewLender(client, catalog)
//
//	t, err := lender.Borrow(ctx, sess, "abc123")
//	if cloudlibrary.IsNoOp(err) {
//	    // already on loan
//	}
//
// # Errors
//
// Failures are typed: *ConfigurationError, *AuthError, *CatalogError and
// *StateError, each with a Kind. Use errors.As, or errors.Is against a
// value with the wanted Kind:
//
//	if errors.Is(err, cloudlibrary.ErrTokenExpired) {
//	    // ask for a new token
//	}
package cloudlibrary
