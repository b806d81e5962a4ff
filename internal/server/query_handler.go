// Package server implements shared DNS protocol plumbing: rate limiting,
// query/response statistics, and the wire-level error-response builders used
// by internal/frontend when a request can't even be parsed far enough to
// reach the resolution pipeline.
package server

import (
	"github.com/jroosing/resolverd/internal/dns"
)

// BuildParseErrorResponse builds a FORMERR response for a request that
// failed to parse, for callers (the frontend package) that parse requests
// themselves ahead of dispatching to the worker pipeline.
func BuildParseErrorResponse(reqBytes []byte) []byte {
	return tryBuildErrorFromRaw(reqBytes, uint16(dns.RCodeFormErr))
}

// tryBuildErrorFromRaw attempts to construct an error response from raw bytes.
// This is used when request parsing fails but we can still extract enough
// information (transaction ID, question) to build a valid error response.
//
// Returns nil if even the header cannot be parsed.
func tryBuildErrorFromRaw(reqBytes []byte, rcode uint16) []byte {
	off := 0
	h, err := dns.ParseHeader(reqBytes, &off)
	if err != nil {
		return nil
	}

	// Try to include the question in the error response
	var questions []dns.Question
	if h.QDCount > 0 {
		q, err := dns.ParseQuestion(reqBytes, &off)
		if err == nil {
			questions = make([]dns.Question, 1)
			questions[0] = q
		}
	}

	p := dns.Packet{Header: dns.Header{ID: h.ID, Flags: h.Flags}, Questions: questions}
	b, _ := dns.BuildErrorResponse(p, rcode).Marshal()
	return b
}
