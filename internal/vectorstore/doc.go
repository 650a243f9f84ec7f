// Package vectorstore provides vector storage for events and decision
// memories.
//
// Two implementations back the Store interface: QdrantStore speaks gRPC
// to a Qdrant server and is the production default, ChromemStore embeds
// chromem-go for local runs and as the degrade target when the remote
// store is down. A HealthMonitor caches connectivity status so callers
// can decide between them without probing on the hot path.
package vectorstore
