// Package irma contains the messages exchanged between IRMA requestors and the IRMA server:
// session requests for disclosure, signing and issuance, the builders that assemble them, and the
// session packages and results the IRMA server returns. It also contains the HTTP transport with
// which the requestor package talks to the server.
package irma
