// Package secure keeps credentials typed into login forms out of plain Go
// memory until the moment they are posted to the backend.
//
// Values are held in memguard enclaves (encrypted at rest, mlocked when the
// platform allows it). A Fields set is built from the submitted form, and
// Encode opens every enclave only long enough to produce the form body:
//
//	fields := secure.NewFields()
//	defer fields.Destroy()
//	fields.Set("wb-username", "alice", false)
//	fields.Set("wb-password", pw, true)
//	body := fields.Encode()
//
// It does NOT protect against attackers with access to the running process.
package secure
