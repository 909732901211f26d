// Package harness implements the agent loop that drives a local language
// model through stateless completion requests: render the transcript, ask
// for a completion, recover tool-call intent from the free-form text,
// execute the calls through the capability registry, append the results,
// and repeat until the session halts.
//
// The model cannot be assumed to emit well-formed structured output, so the
// extractor recognizes several call syntaxes embedded in prose, the loop
// guard suppresses recently repeated calls, and the progress monitor flags
// sessions that stop producing visible effects. Every capability fault is
// converted into a failed result turn; nothing a capability does can tear
// down the session.
package harness
