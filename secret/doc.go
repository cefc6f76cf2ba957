// Package secret resolves the secret values referenced from nodediag
// configuration, such as the agent signing key.
//
// A value is first expanded against the environment (see ExpandEnvStrict).
// If the result has the form "secretref:<provider>:<ref>" it is then handed
// to the named Provider:
//
//	secretref:file:/etc/nodediag/agent.key
//	secretref:env:NODEDIAG_AGENT_KEY
package secret
