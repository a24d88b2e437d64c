// Package keys manages the signing keys a board uses to sign result
// certificates.
//
// Keys are 32-byte seeds kept on the local filesystem. A board root seed can
// derive role seeds (for example "controller" or "certificates") so day to
// day signing never needs the root. Every seed can act as either an Ed25519
// or a Dilithium3 key; public keys are exchanged as "<alg>:<base64>" strings.
package keys
