// Package generation provides interfaces and error types for interacting
// with external AI services for content generation. It abstracts the details
// of LLM and image-model API integration (Gemini, Imagen), allowing the
// expansion pipeline to generate node text and illustrations without coupling
// to specific external services.
package generation
