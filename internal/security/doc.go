// Package security derives the security posture report of a configured
// engine. It only reads policy values and never touches a backend.
package security
