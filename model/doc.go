// Package model defines the provider-neutral completion interface the
// reasoning and routing nodes drive, plus the fast/deep tier pairing.
// Concrete adapters for OpenAI, Anthropic and Ollama live in subpackages.
package model
