// Package embeddings provides embedding generation via multiple providers.
//
// Supports TEI (external service) and FastEmbed (local ONNX) providers.
// Factory pattern enables provider selection at runtime with automatic
// dimension detection for common models. The TEI client rate-limits and
// retries transient failures; FastEmbed requires a CGO build.
package embeddings
