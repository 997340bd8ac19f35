// Package clientip resolves the address a request originated from.
//
// Proxy headers are consulted before the socket address, in this order:
// CF-Connecting-IP, DO-Connecting-IP, X-Forwarded-For, X-Real-IP, then
// RemoteAddr. The first header holding a valid, non-unspecified address wins;
// malformed values are skipped rather than reported.
//
//	key := "ip:" + clientip.GetIP(r)
//
// X-Forwarded-For chains resolve to their leftmost entry:
//
//	ip, ok := clientip.FirstForwarded("203.0.113.7, 10.0.0.2") // "203.0.113.7", true
//
// Returned addresses are normalized through net.IP, so IPv4-mapped IPv6
// input comes back in dotted form. Only trust these headers when every
// hop in front of the service rewrites them.
package clientip
