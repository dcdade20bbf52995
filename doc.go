/*
Package cdn refreshes a domain's DNS A records from a curated list of
preferred IP addresses.

Usage will always start with [cdn.New],
which returns the Client implementation.
New requires the domain name whose records will be replaced,
a [Source] for the candidate addresses,
and a [Provider] implementation for a DNS provider.
Additional client configuration options are listed in the docs for New.
*/
package cdn
