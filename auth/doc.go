// Package auth authenticates callers of a worker agent and authorizes
// probe runs and bundle access.
//
// The controller signs short-lived HS256 tokens with a Signer; the agent
// validates them with a JWTAuthenticator and checks each request against a
// SimpleRBACAuthorizer. Permissions take the forms "<action>",
// "<resource>:<action>" or "<type>:<resource>:<action>", with "*" as a
// wildcard in any position.
package auth
