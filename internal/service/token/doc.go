// Package token manages per-tenant OAuth credentials for one provider.
//
// A Manager hands out valid bearer tokens, refreshing them synchronously when
// fewer than five minutes remain before expiry. Token material is stored only
// as vault ciphertext. Concurrent refreshes for the same tenant are not
// deduplicated; the last write wins.
package token
