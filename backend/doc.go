// Package backend provides the model-backend client for the harness.
//
// The backend is a locally hosted model served by Ollama. It accepts an
// ordered list of role-tagged text turns and returns one text completion
// per request. No structured tool-call channel is assumed: the response is
// plain text, and recovering caller intent from it is the job of the
// harness package's extractor.
//
// The package wraps gollm's Ollama provider behind a small Completer
// interface so the harness can be driven by a fake in tests. Requests are
// retried with exponential backoff for transient failures only; errors are
// classified into a small taxonomy so callers can distinguish a dead
// backend from a bad request.
package backend
