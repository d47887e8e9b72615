// Package jwt signs and verifies the session cookie issued after a
// completed login. The token carries the user id, the Redis session id and
// the method that satisfied the second factor; the session record itself
// lives in package session.
package jwt
