// Package authcore implements the account and token lifecycle for the
// TuneVault catalog backend: credential storage with argon2id hashing,
// stateless signed access tokens, email verification and password reset
// flows with one-shot hashed challenge tokens, failed-login lockout, and
// the request gate that ties them together.
//
// The package is storage-agnostic. Callers supply an [AccountStore]
// implementation (see the mongostore and memstore subpackages) and an
// optional [Mailer] for dispatching verification and reset messages,
// then build an [Engine]:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithStore(store).
//		WithMailer(mailer).
//		Build()
//
// HTTP integration lives in the middleware subpackage.
package authcore
