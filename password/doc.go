// Package password hashes and verifies account passwords with Argon2id.
//
// # Output format
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher.NeedsUpgrade] reports hashes made with weaker parameters so a
// credential store can rehash after the next successful sign-in.
//
// [Hasher.Equalize] burns the cost of one verification against a dummy hash.
// Credential stores call it when an email has no account, so that a miss
// takes as long as a wrong password.
//
// # What this package must NOT do
//
//   - Store passwords or hashes.
//   - Import any other goGuard package.
//   - Log plaintext passwords.
package password
