// Package policy embeds the Open Policy Agent engine so operators can add Rego
// admission rules on top of the built-in execution gates.
//
// Rules receive the resolved authority, runtime, capability class and the
// flattened execution policy, and return an allow or deny decision. Prepared
// queries and decisions are cached so evaluation stays off the hot path.
package policy
