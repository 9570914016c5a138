// Package node implements the four agents of the workflow graph: the router
// that classifies queries, the retriever that searches external indexes, the
// reasoner that synthesizes the answer, and the enricher that attaches
// metadata to recommended items. The set is closed; the engine wires the
// nodes into the fixed topology.
package node
