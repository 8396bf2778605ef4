// Package headers models HTTP headers as they cross the host boundary: an
// ordered set of names, each with its values in order.
//
// Requests take headers from the host in the host's order and apply them to
// the outgoing request. Responses come back through FromHTTP, which
// lower-cases names, keeps repeated values such as Set-Cookie as separate
// entries, and decodes bytes that are not valid UTF-8 as ISO-8859-1.
package headers
