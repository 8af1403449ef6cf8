// Package password hashes and verifies account passwords.
//
// New hashes are argon2id PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher] additionally verifies bcrypt hashes ($2a$, $2b$, $2y$) left over
// from accounts imported from older systems, and reports them as needing an
// upgrade so the caller can re-hash after the next successful sign-in.
//
// The package never stores passwords and never logs them.
package password
