// Package git reports how a vault file and its keyfile relate to git.
//
// The vault file is safe to commit; the keyfile is not.
package git
