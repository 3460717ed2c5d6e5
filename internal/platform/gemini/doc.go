// Package gemini implements the generation interfaces using Google's Gemini
// API: node text through structured JSON completions and node illustrations
// through Imagen, uploaded to media storage.
package gemini
