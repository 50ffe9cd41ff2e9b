// Package httpx provides a resilient HTTP client adapter for
// chcommon.
//
// Client runs each request through chcommon.Execute with a
// retry policy and a status code classifier that maps HTTP
// response codes to error kinds. Request bodies are replayed
// through Request.GetBody between attempts.
package httpx
