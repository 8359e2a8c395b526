// Package model defines the language-model collaborator contract used by the
// intent classifier and the response experts. From the engine's perspective a
// completion is a plain blocking call with a timeout: prompt in, text out.
// Provider adapters live in sub-packages (model/openai, model/anthropic); the
// mock implementation here keeps the engine fully testable without network
// access.
package model
