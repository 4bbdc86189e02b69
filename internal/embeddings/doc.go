// Package embeddings turns text into vectors using hosted embedding models.
//
// OpenAI-compatible endpoints go through langchaingo; Gemini uses the genai
// SDK. Service checks every vector against the deployment dimension before
// it reaches the memory index.
package embeddings
